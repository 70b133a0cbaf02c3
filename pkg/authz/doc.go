// Package authz implements an HTTP middleware that delegates authorization
// decisions to an external policy decision point.
//
// A Factory is constructed once per process with the decision point address
// and optional defaults for the pluggable pipeline stages (required-field
// extraction, decision-path resolution, payload building, decision handling,
// and the decision client itself). Each route registration merges its own
// options over the factory defaults field by field and yields a standard
// func(http.Handler) http.Handler middleware.
//
// Per request the middleware gathers the configured required fields, builds
// the evaluation payload, posts it to the decision point, attaches the
// resulting Evaluation to the request context, and either enforces the
// verdict or, in dry-run mode, reports it through a response header while
// letting the request proceed.
package authz
