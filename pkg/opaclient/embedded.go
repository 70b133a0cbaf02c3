package opaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/polisai/polis-authz/pkg/domain"
)

// Embedded is an in-process decision point backed by the OPA SDK. It serves
// the same DecisionClient contract as the HTTP client, which makes it a
// drop-in for development, tests, and sidecar-free deployments.
//
// The URL passed to Evaluate is interpreted as a decision path: its path
// component, with any leading "v1/data" stripped, becomes the dotted rego
// query (e.g. "http://local/v1/data/users" and plain "/users" both query
// "data.users"). The evaluation payload is passed as the input document
// directly, the same logical depth as the HTTP client's single "input"
// envelope.
type Embedded struct {
	mu       sync.RWMutex
	parsed   map[string]*ast.Module
	order    []string
	prepared map[string]*rego.PreparedEvalQuery
}

// NewEmbedded compiles the supplied rego modules (name -> source) into an
// embedded decision point.
func NewEmbedded(modules map[string]string) (*Embedded, error) {
	e := &Embedded{}
	if err := e.Reload(modules); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload replaces all modules atomically and drops the prepared query cache.
// In-flight evaluations finish against the old modules.
func (e *Embedded) Reload(modules map[string]string) error {
	if len(modules) == 0 {
		return errors.New("embedded decision point requires at least one rego module")
	}

	order := make([]string, 0, len(modules))
	for name := range modules {
		order = append(order, name)
	}
	sort.Strings(order)

	parsed := make(map[string]*ast.Module, len(modules))
	for _, name := range order {
		module, err := ast.ParseModuleWithOpts(name, modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsed[name] = module
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.parsed = parsed
	e.order = order
	e.prepared = make(map[string]*rego.PreparedEvalQuery)

	return nil
}

// Evaluate implements authz.DecisionClient.
func (e *Embedded) Evaluate(ctx context.Context, rawURL string, input domain.EvaluationRequest) (domain.Decision, error) {
	query, err := queryForURL(rawURL)
	if err != nil {
		return domain.Decision{}, err
	}

	prepared, err := e.preparedQuery(ctx, query)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("prepare query %s: %w", query, err)
	}

	doc, err := inputDocument(input)
	if err != nil {
		return domain.Decision{}, err
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("evaluate %s: %w", query, err)
	}

	// Undefined results mean the policy made no decision; an empty result
	// document denies, same as a missing allow key from a remote OPA.
	result := map[string]any{}
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		value, ok := results[0].Expressions[0].Value.(map[string]any)
		if !ok {
			return domain.Decision{}, fmt.Errorf("evaluate %s: unexpected result type %T", query, results[0].Expressions[0].Value)
		}
		result = value
	}

	return domain.Decision{
		DecisionID: uuid.NewString(),
		Result:     domain.NewDecisionResult(result),
	}, nil
}

func (e *Embedded) preparedQuery(ctx context.Context, query string) (*rego.PreparedEvalQuery, error) {
	e.mu.RLock()
	if prepared, ok := e.prepared[query]; ok {
		e.mu.RUnlock()
		return prepared, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Another goroutine may have prepared the query meanwhile.
	if prepared, ok := e.prepared[query]; ok {
		return prepared, nil
	}

	opts := make([]func(*rego.Rego), 0, len(e.order)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range e.order {
		opts = append(opts, rego.ParsedModule(e.parsed[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	e.prepared[query] = &prepared
	return &prepared, nil
}

// queryForURL maps a decision point URL onto a rego data query.
func queryForURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("decision path: %w", err)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "v1/data" {
		path = ""
	}
	path = strings.TrimPrefix(path, "v1/data/")
	path = strings.Trim(path, "/")
	if path == "" {
		return "", fmt.Errorf("decision path missing in %q", raw)
	}

	return "data." + strings.ReplaceAll(path, "/", "."), nil
}

// inputDocument converts the evaluation request to the generic document shape
// the rego evaluator expects, reusing the canonical JSON layout.
func inputDocument(input domain.EvaluationRequest) (map[string]any, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode evaluation request: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode evaluation request: %w", err)
	}
	return doc, nil
}
