package domain

import (
	"encoding/json"
	"testing"
)

func TestEvaluationRequestMarshalFlattensFields(t *testing.T) {
	req := EvaluationRequest{
		Request: RequestMeta{
			Method: "GET",
			Params: map[string]string{"user_id": "42"},
		},
		Fields: map[string]any{
			"tenant": "acme",
			"role":   nil,
			"req":    "must-not-clobber",
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["tenant"] != "acme" {
		t.Errorf("expected tenant at top level, got %v", decoded["tenant"])
	}

	if value, present := decoded["role"]; !present || value != nil {
		t.Errorf("expected failed field to marshal as null, got %v (present=%v)", value, present)
	}

	reqObj, ok := decoded["req"].(map[string]any)
	if !ok {
		t.Fatalf("expected req sub-object, got %T", decoded["req"])
	}
	if reqObj["method"] != "GET" {
		t.Errorf("expected req.method GET, got %v", reqObj["method"])
	}

	params, ok := reqObj["params"].(map[string]any)
	if !ok || params["user_id"] != "42" {
		t.Errorf("expected req.params.user_id 42, got %v", reqObj["params"])
	}
}

func TestEvaluationRequestRoundTrip(t *testing.T) {
	original := EvaluationRequest{
		Request: RequestMeta{Method: "POST", Params: map[string]string{"doc_id": "7"}},
		Fields:  map[string]any{"tenant": "acme"},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored EvaluationRequest
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.Request.Method != "POST" {
		t.Errorf("expected method POST, got %q", restored.Request.Method)
	}
	if restored.Request.Params["doc_id"] != "7" {
		t.Errorf("expected doc_id param, got %v", restored.Request.Params)
	}
	if restored.Fields["tenant"] != "acme" {
		t.Errorf("expected tenant field, got %v", restored.Fields)
	}
}

func TestDecisionAllowed(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"allow true", `{"decision_id":"x","result":{"allow":true}}`, true},
		{"allow false", `{"decision_id":"x","result":{"allow":false}}`, false},
		{"allow absent", `{"decision_id":"x","result":{}}`, false},
		{"allow non-boolean", `{"decision_id":"x","result":{"allow":"yes"}}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decision Decision
			if err := json.Unmarshal([]byte(tc.body), &decision); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decision.Allowed() != tc.want {
				t.Errorf("Allowed() = %v, want %v", decision.Allowed(), tc.want)
			}
		})
	}
}

func TestDecisionResultPassesThroughExtraKeys(t *testing.T) {
	body := `{"decision_id":"d-1","result":{"allow":true,"reason":"vip","ttl":30}}`

	var decision Decision
	if err := json.Unmarshal([]byte(body), &decision); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	reason, ok := decision.Result.Value("reason")
	if !ok || reason != "vip" {
		t.Errorf("expected reason to pass through, got %v (ok=%v)", reason, ok)
	}

	data, err := json.Marshal(decision.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	var roundTripped map[string]any
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if roundTripped["ttl"] != float64(30) {
		t.Errorf("expected ttl to survive round trip, got %v", roundTripped["ttl"])
	}
}
