package authz

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/polisai/polis-authz/pkg/domain"
)

// ResourcePathResolver is the default PathResolver. It maps RESTful resource
// routes onto policy package paths without per-route configuration: BasePath
// plus one segment per named URL parameter of the matched chi route, in
// declaration order, with any trailing "_id" stripped. A route mounted as
// /users/{user_id}/documents/{document_id} therefore resolves to
// "<BasePath>/user/document".
//
// The "_id" convention is replaceable, not a contract: supply a custom
// PathResolver where resource names follow a different style.
type ResourcePathResolver struct {
	// BasePath is prepended to the parameter segments. Empty means the
	// decision path consists of the parameter segments alone.
	BasePath string
}

// Resolve implements PathResolver.
func (p ResourcePathResolver) Resolve(r *http.Request) string {
	var sb strings.Builder
	sb.WriteString(p.BasePath)

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for _, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			sb.WriteString("/")
			sb.WriteString(strings.TrimSuffix(key, "_id"))
		}
	}

	return sb.String()
}

// routeParams collects the named URL parameters of the matched chi route.
// Requests served outside a chi router yield an empty map.
func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return map[string]string{}
	}

	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}

// DefaultRequestBuilder is the default RequestBuilder. It shallow-merges the
// required fields with a "req" sub-object holding the HTTP method and the
// route's path parameters. Headers, body and query string are deliberately
// excluded; callers wanting them in the policy input add extractors to the
// Required mapping instead.
type DefaultRequestBuilder struct{}

// Build implements RequestBuilder.
func (DefaultRequestBuilder) Build(r *http.Request, fields map[string]any) domain.EvaluationRequest {
	return domain.EvaluationRequest{
		Request: domain.RequestMeta{
			Method: r.Method,
			Params: routeParams(r),
		},
		Fields: fields,
	}
}
