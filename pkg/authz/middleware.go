package authz

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-authz/pkg/domain"
	"github.com/polisai/polis-authz/pkg/telemetry"
)

// Literal values written to the dry-run header.
const (
	VerdictAllow  = "allow"
	VerdictReject = "reject"
)

// Error codes used in the default JSON error responses.
const (
	CodePolicyForbidden          = "POLICY_FORBIDDEN"
	CodeDecisionPointUnavailable = "DECISION_POINT_UNAVAILABLE"
	CodeMisconfigured            = "AUTHZ_MISCONFIGURED"
)

// ErrorHandler renders errors that terminate request processing: decision
// client failures and missing-client misconfiguration. Policy rejections are
// rendered separately through the DecisionHandler contract.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// FactoryConfig holds everything needed to construct a Factory.
type FactoryConfig struct {
	// Config carries the decision point address and enforcement flags.
	Config Config
	// Defaults are overlaid on the built-in defaults and overridden field by
	// field by per-route options.
	Defaults Options
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
	// Metrics is optional; nil disables metric recording.
	Metrics *telemetry.Metrics
	// OnError replaces the default JSON error rendering.
	OnError ErrorHandler
}

// Factory produces route middlewares that share one decision point
// configuration. It is safe for concurrent use: the configuration and the
// merged options are computed at construction and registration time and
// never mutated afterwards.
type Factory struct {
	cfg      Config
	defaults Options
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	onError  ErrorHandler
}

// NewFactory constructs a middleware factory. The decision point URL is not
// validated here: misconfiguration surfaces on the first decision call, so
// callers wanting early feedback run cfg.Config.Validate() themselves.
func NewFactory(cfg FactoryConfig) *Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	onError := cfg.OnError
	if onError == nil {
		onError = defaultErrorHandler
	}

	return &Factory{
		cfg:      cfg.Config,
		defaults: cfg.Defaults,
		logger:   logger,
		metrics:  cfg.Metrics,
		onError:  onError,
	}
}

// Middleware resolves the effective options for one route registration and
// returns the request-handling middleware. The merge happens once, here;
// the returned handler only reads the result.
func (f *Factory) Middleware(route Options) func(http.Handler) http.Handler {
	eff := resolveOptions(f.defaults, route)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.serve(eff, next, w, r)
		})
	}
}

func (f *Factory) serve(eff Options, next http.Handler, w http.ResponseWriter, r *http.Request) {
	mode := telemetry.ModeEnforced
	if f.cfg.dryRun() {
		mode = telemetry.ModeDryRun
	}

	fields := ExtractFields(r, eff.Required, f.logger, f.metrics)
	input := eff.Builder.Build(r, fields)
	fullPath := f.cfg.URL + eff.Resolver.Resolve(r)

	if eff.Client == nil {
		f.metrics.RecordDecision(telemetry.OutcomeError, mode, 0)
		f.logger.Error("policy evaluation failed", "path", fullPath, "error", domain.ErrNoDecisionClient)
		f.onError(w, r, domain.ErrNoDecisionClient)
		return
	}

	start := time.Now()
	decision, err := eff.Client.Evaluate(r.Context(), fullPath, input)
	elapsed := time.Since(start)
	if err != nil {
		f.metrics.RecordDecision(telemetry.OutcomeError, mode, elapsed)
		f.logger.Error("policy evaluation failed", "path", fullPath, "error", err)
		f.onError(w, r, err)
		return
	}

	eval := &domain.Evaluation{Request: input, Decision: decision, Path: fullPath}
	allowed := decision.Allowed()

	outcome := telemetry.OutcomeDeny
	tag := "KO"
	if allowed {
		outcome = telemetry.OutcomeAllow
		tag = "OK"
	}
	f.metrics.RecordDecision(outcome, mode, elapsed)
	telemetry.RecordEvaluation(trace.SpanFromContext(r.Context()), eval, mode)

	f.logger.Debug("policy decision "+tag,
		"allow", allowed,
		"path", fullPath,
		"decision_id", decision.DecisionID,
		slog.Any("decision", decision.Result.Raw()),
		slog.Any("input", input),
	)

	r = r.WithContext(WithEvaluation(r.Context(), eval))

	if f.cfg.dryRun() {
		f.serveDryRun(eff, next, w, r, eval)
		return
	}

	rec := &statusRecorder{ResponseWriter: w}
	if handlerErr := eff.Handler.Handle(rec, r, eval); handlerErr != nil {
		if !rec.wrote {
			writeError(rec, r, http.StatusForbidden, CodePolicyForbidden, handlerErr.Error())
		}
		return
	}

	next.ServeHTTP(w, r)
}

// serveDryRun runs the decision handler for its verdict only: the handler
// sees a discarded response writer, the verdict lands in the dry-run header,
// and the request always proceeds.
func (f *Factory) serveDryRun(eff Options, next http.Handler, w http.ResponseWriter, r *http.Request, eval *domain.Evaluation) {
	handlerErr := eff.Handler.Handle(newDiscardWriter(), r, eval)

	verdict := VerdictAllow
	if handlerErr != nil {
		verdict = VerdictReject
	}

	if f.cfg.Production {
		f.logger.Error("admission control disabled, decision not enforced",
			"verdict", verdict,
			"allow", eval.Decision.Allowed(),
			"path", eval.Path,
			"decision_id", eval.Decision.DecisionID,
			slog.Any("decision", eval.Decision.Result.Raw()),
			slog.Any("input", eval.Request),
		)
	}

	w.Header().Set(f.cfg.DryRunHeader(), verdict)
	next.ServeHTTP(w, r)
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	code := CodeDecisionPointUnavailable
	if errors.Is(err, domain.ErrNoDecisionClient) {
		status = http.StatusInternalServerError
		code = CodeMisconfigured
	}
	writeError(w, r, status, code, err.Error())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := domain.ErrorResponse{Code: code, Message: message}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		resp.TraceID = sc.TraceID().String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder tracks whether a decision handler already wrote a response,
// so the middleware does not stack its default rejection on top.
type statusRecorder struct {
	http.ResponseWriter
	wrote  bool
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wrote {
		return
	}
	sr.wrote = true
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wrote {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

// discardWriter swallows everything a decision handler writes in dry-run mode.
type discardWriter struct {
	header http.Header
}

func newDiscardWriter() *discardWriter {
	return &discardWriter{header: make(http.Header)}
}

func (d *discardWriter) Header() http.Header { return d.header }

func (d *discardWriter) WriteHeader(int) {}

func (d *discardWriter) Write(b []byte) (int, error) { return len(b), nil }
