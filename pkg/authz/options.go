package authz

import (
	"context"
	"net/http"

	"github.com/polisai/polis-authz/pkg/domain"
)

// FieldExtractor derives one named value from the incoming request. A nil
// return with no error is a legitimate value; an error (or panic) degrades
// the field to null without affecting other fields.
type FieldExtractor func(r *http.Request) (any, error)

// RequiredFields maps field names to their extractors. Keys are caller
// defined; each entry writes an independent key of the evaluation payload.
type RequiredFields map[string]FieldExtractor

// PathResolver derives the decision-point sub-path for a request. The result
// is appended to the configured base address. Implementations must be pure:
// resolving the same request twice yields the same string.
type PathResolver interface {
	Resolve(r *http.Request) string
}

// PathResolverFunc adapts a function to the PathResolver interface.
type PathResolverFunc func(r *http.Request) string

// Resolve implements PathResolver.
func (f PathResolverFunc) Resolve(r *http.Request) string { return f(r) }

// RequestBuilder assembles the evaluation payload from the request and the
// already-extracted required fields.
type RequestBuilder interface {
	Build(r *http.Request, fields map[string]any) domain.EvaluationRequest
}

// RequestBuilderFunc adapts a function to the RequestBuilder interface.
type RequestBuilderFunc func(r *http.Request, fields map[string]any) domain.EvaluationRequest

// Build implements RequestBuilder.
func (f RequestBuilderFunc) Build(r *http.Request, fields map[string]any) domain.EvaluationRequest {
	return f(r, fields)
}

// DecisionHandler interprets a completed evaluation. Returning nil lets the
// request proceed; returning an error rejects it. Handlers may write their
// own response body before returning the error; the middleware only renders
// its default rejection when nothing has been written. In dry-run mode the
// handler runs against a discarded response writer.
type DecisionHandler interface {
	Handle(w http.ResponseWriter, r *http.Request, eval *domain.Evaluation) error
}

// DecisionHandlerFunc adapts a function to the DecisionHandler interface.
type DecisionHandlerFunc func(w http.ResponseWriter, r *http.Request, eval *domain.Evaluation) error

// Handle implements DecisionHandler.
func (f DecisionHandlerFunc) Handle(w http.ResponseWriter, r *http.Request, eval *domain.Evaluation) error {
	return f(w, r, eval)
}

// DecisionClient performs the call to the decision point. url is the base
// address with the resolved decision path already appended. The middleware
// performs no retries and no caching around it.
type DecisionClient interface {
	Evaluate(ctx context.Context, url string, input domain.EvaluationRequest) (domain.Decision, error)
}

// DecisionClientFunc adapts a function to the DecisionClient interface.
type DecisionClientFunc func(ctx context.Context, url string, input domain.EvaluationRequest) (domain.Decision, error)

// Evaluate implements DecisionClient.
func (f DecisionClientFunc) Evaluate(ctx context.Context, url string, input domain.EvaluationRequest) (domain.Decision, error) {
	return f(ctx, url, input)
}

// Options configures the pluggable stages of one middleware registration.
// Unset fields fall back through the layered defaults: built-in defaults,
// then factory defaults, then these per-route options.
type Options struct {
	// Required names the fields gathered before building the payload.
	Required RequiredFields
	// Resolver derives the decision path. Default: ResourcePathResolver.
	Resolver PathResolver
	// Builder assembles the evaluation payload. Default: DefaultRequestBuilder.
	Builder RequestBuilder
	// Handler interprets the decision. Default: AllowHandler.
	Handler DecisionHandler
	// Client reaches the decision point. No built-in default: it must be
	// supplied by the factory defaults or the route options.
	Client DecisionClient
}

// merge overlays over on top of o, field by field. Required maps merge per
// key with the overlay winning; the other stages are replaced wholesale when
// set, matching their role as indivisible strategies.
func (o Options) merge(over Options) Options {
	out := o

	if len(over.Required) > 0 {
		merged := make(RequiredFields, len(o.Required)+len(over.Required))
		for name, extract := range o.Required {
			merged[name] = extract
		}
		for name, extract := range over.Required {
			merged[name] = extract
		}
		out.Required = merged
	}

	if over.Resolver != nil {
		out.Resolver = over.Resolver
	}
	if over.Builder != nil {
		out.Builder = over.Builder
	}
	if over.Handler != nil {
		out.Handler = over.Handler
	}
	if over.Client != nil {
		out.Client = over.Client
	}

	return out
}

func builtinOptions() Options {
	return Options{
		Resolver: ResourcePathResolver{},
		Builder:  DefaultRequestBuilder{},
		Handler:  AllowHandler{},
	}
}

// resolveOptions merges the three option layers in precedence order:
// built-in defaults, factory defaults, per-route options.
func resolveOptions(defaults, route Options) Options {
	return builtinOptions().merge(defaults).merge(route)
}
