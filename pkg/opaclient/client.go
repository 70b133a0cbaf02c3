package opaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-authz/pkg/domain"
)

const (
	defaultTimeout  = 5 * time.Second
	maxErrorSnippet = 512
)

// Config holds the HTTP client settings.
type Config struct {
	// HTTPClient overrides the default otelhttp-instrumented client.
	HTTPClient *http.Client
	// Timeout bounds each decision call. Zero selects the default.
	Timeout time.Duration
	// RawInput posts the evaluation payload bare instead of wrapping it in
	// the OPA Data API's {"input": ...} envelope. Use it for decision points
	// that define their own request shape.
	RawInput bool
	// Headers are set verbatim on every request, e.g. an Authorization
	// header for a protected decision point.
	Headers map[string]string
}

// Client posts evaluation requests to a remote decision point over HTTP.
//
// The payload contract is explicit: the evaluation request is wrapped in
// exactly one {"input": ...} envelope, matching the OPA Data API. No retries,
// no caching, no fallback decisions; transport and protocol failures wrap
// domain.ErrDecisionUnavailable and are left to the caller.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	rawInput   bool
	headers    map[string]string
}

// New constructs a Client from the supplied configuration.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := make(map[string]string, len(cfg.Headers))
	for name, value := range cfg.Headers {
		headers[name] = value
	}

	return &Client{
		httpClient: httpClient,
		timeout:    timeout,
		rawInput:   cfg.RawInput,
		headers:    headers,
	}
}

type inputEnvelope struct {
	Input domain.EvaluationRequest `json:"input"`
}

// Evaluate implements authz.DecisionClient.
func (c *Client) Evaluate(ctx context.Context, url string, input domain.EvaluationRequest) (domain.Decision, error) {
	var payload any = inputEnvelope{Input: input}
	if c.rawInput {
		payload = input
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("encode evaluation request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("build decision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrDecisionUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.Decision{}, fmt.Errorf("%w: status %d: %s",
			domain.ErrDecisionUnavailable, resp.StatusCode, errorSnippet(resp.Body))
	}

	var decision domain.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return domain.Decision{}, fmt.Errorf("%w: decode response: %v", domain.ErrDecisionUnavailable, err)
	}

	return decision, nil
}

func errorSnippet(body io.Reader) string {
	snippet, err := io.ReadAll(io.LimitReader(body, maxErrorSnippet))
	if err != nil || len(snippet) == 0 {
		return "<no body>"
	}
	return string(snippet)
}
