package authz

import (
	"net/http"

	"github.com/polisai/polis-authz/pkg/domain"
)

// AllowHandler is the default DecisionHandler: it lets allowed requests
// proceed and rejects everything else with domain.ErrPolicyForbidden. It
// never writes to the response, leaving rejection rendering to the
// middleware. Replace it to serve custom authorization responses, e.g.
// writing the full decision document back to the client.
type AllowHandler struct{}

// Handle implements DecisionHandler.
func (AllowHandler) Handle(_ http.ResponseWriter, _ *http.Request, eval *domain.Evaluation) error {
	if eval != nil && eval.Decision.Allowed() {
		return nil
	}
	return domain.ErrPolicyForbidden
}
