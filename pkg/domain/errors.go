package domain

import "errors"

// Common domain errors
var (
	// ErrPolicyForbidden is returned by the default decision handler when the
	// decision point does not allow the request.
	ErrPolicyForbidden = errors.New("policy decision: FORBIDDEN")

	// ErrDecisionUnavailable wraps transport and protocol failures reaching
	// the decision point.
	ErrDecisionUnavailable = errors.New("decision point unavailable")

	// ErrNoDecisionClient signals that neither the factory defaults nor the
	// route options supplied a decision client.
	ErrNoDecisionClient = errors.New("no decision client configured")
)

// ErrorResponse defines the standard JSON error model written by the
// middleware when it terminates a request. It exposes a stable
// machine-readable code without leaking decision internals.
// TraceID should carry the current OpenTelemetry trace identifier when
// available to aid diagnostics.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., POLICY_FORBIDDEN)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
