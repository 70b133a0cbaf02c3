package authz

import (
	"context"

	"github.com/polisai/polis-authz/pkg/domain"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey struct{}

// WithEvaluation returns a context carrying the completed policy evaluation.
func WithEvaluation(ctx context.Context, eval *domain.Evaluation) context.Context {
	return context.WithValue(ctx, contextKey{}, eval)
}

// EvaluationFromContext extracts the policy evaluation attached by the
// middleware. Downstream handlers use it to inspect the decision that let
// the request through.
func EvaluationFromContext(ctx context.Context) (*domain.Evaluation, bool) {
	eval, ok := ctx.Value(contextKey{}).(*domain.Evaluation)
	return eval, ok
}
