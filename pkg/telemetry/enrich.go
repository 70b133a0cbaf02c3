package telemetry

import (
	"github.com/polisai/polis-authz/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordEvaluation annotates the provided span with the decision outcome.
func RecordEvaluation(span trace.Span, eval *domain.Evaluation, mode string) {
	if span == nil || !span.IsRecording() || eval == nil {
		return
	}

	span.SetAttributes(
		attribute.Bool("policy.decision.allow", eval.Decision.Allowed()),
		attribute.String("policy.decision.path", eval.Path),
		attribute.String("policy.enforcement.mode", mode),
	)

	if eval.Decision.DecisionID != "" {
		span.SetAttributes(attribute.String("policy.decision.id", eval.Decision.DecisionID))
	}

	if !eval.Decision.Allowed() {
		span.AddEvent("policy.rejected")
	}
}
