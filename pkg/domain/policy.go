package domain

import (
	"encoding/json"
	"fmt"
)

// RequestMeta is the "req" sub-object of an evaluation request. It carries
// the HTTP method and the named path parameters of the matched route.
type RequestMeta struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

// EvaluationRequest is the payload posted to the decision point. Required
// fields sit at the top level of the JSON object alongside the "req" key.
// The key "req" is reserved: a required field named "req" is dropped in
// favor of the request metadata. Fields whose extraction failed are present
// with a null value.
type EvaluationRequest struct {
	Request RequestMeta
	Fields  map[string]any
}

// MarshalJSON flattens the required fields next to the "req" sub-object.
func (e EvaluationRequest) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(e.Fields)+1)
	for name, value := range e.Fields {
		if name == "req" {
			continue
		}
		merged[name] = value
	}
	merged["req"] = e.Request
	return json.Marshal(merged)
}

// UnmarshalJSON restores the req/fields split produced by MarshalJSON.
func (e *EvaluationRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("evaluation request: %w", err)
	}

	if reqRaw, ok := raw["req"]; ok {
		if err := json.Unmarshal(reqRaw, &e.Request); err != nil {
			return fmt.Errorf("evaluation request: req: %w", err)
		}
		delete(raw, "req")
	}

	e.Fields = make(map[string]any, len(raw))
	for name, value := range raw {
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("evaluation request: field %q: %w", name, err)
		}
		e.Fields[name] = decoded
	}
	return nil
}

// DecisionResult holds the result object returned by the decision point.
// Only the "allow" key is interpreted; everything else passes through
// untouched and stays available to custom decision handlers.
type DecisionResult struct {
	raw map[string]any
}

// NewDecisionResult builds a result from a raw result document. The map is
// not copied; callers hand over ownership.
func NewDecisionResult(raw map[string]any) DecisionResult {
	return DecisionResult{raw: raw}
}

// Allow reports whether the result carries a true "allow" boolean. A missing
// or non-boolean value means deny.
func (r DecisionResult) Allow() bool {
	allowed, _ := r.raw["allow"].(bool)
	return allowed
}

// Value returns the raw result value for key.
func (r DecisionResult) Value(key string) (any, bool) {
	value, ok := r.raw[key]
	return value, ok
}

// Raw returns the full result document. The returned map must be treated as
// read-only; it is shared with the Decision that produced it.
func (r DecisionResult) Raw() map[string]any {
	return r.raw
}

// MarshalJSON emits the raw result document unchanged.
func (r DecisionResult) MarshalJSON() ([]byte, error) {
	if r.raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.raw)
}

// UnmarshalJSON captures the full result document.
func (r *DecisionResult) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decision result: %w", err)
	}
	r.raw = raw
	return nil
}

// Decision is the decision point's response to an evaluation request.
type Decision struct {
	DecisionID string         `json:"decision_id"`
	Result     DecisionResult `json:"result"`
}

// Allowed reports the allow verdict of the decision.
func (d Decision) Allowed() bool {
	return d.Result.Allow()
}

// Evaluation records one completed policy evaluation. It is created fresh
// per request, attached to that request's context, and never shared.
type Evaluation struct {
	Request  EvaluationRequest `json:"request"`
	Decision Decision          `json:"decision"`
	Path     string            `json:"path"`
}
