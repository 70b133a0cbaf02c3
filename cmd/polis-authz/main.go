// Package main is the entry point for the polis-authz binary.
// It runs a demo HTTP service whose routes are guarded by the policy
// authorization middleware, against either a remote decision point or an
// embedded engine loaded from a policy directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-authz/pkg/authz"
	"github.com/polisai/polis-authz/pkg/logging"
	"github.com/polisai/polis-authz/pkg/opaclient"
	"github.com/polisai/polis-authz/pkg/telemetry"
)

const (
	defaultListen   = ":8080"
	defaultLogLevel = "info"

	shutdownTimeout = 10 * time.Second
)

// CLIConfig holds the parsed CLI configuration
type CLIConfig struct {
	Config       string
	Listen       string
	LogLevel     string
	Pretty       bool
	PolicyDir    string
	OTLPEndpoint string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-authz
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-authz",
		Short: "Policy authorization middleware demo service",
		Long: `An HTTP service whose routes are guarded by policy decisions.

Decisions come from a remote decision point (the url in the config file)
or, when --policy-dir is set, from an embedded engine that loads .rego
modules from that directory and hot-reloads them on change.

Example:
  polis-authz --config authz.yaml --policy-dir ./policies --listen :8080`,
		RunE: runServer,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().String("listen", defaultListen, "Address to listen on")
	rootCmd.Flags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("pretty", false, "Human-readable log output")
	rootCmd.Flags().String("policy-dir", "", "Directory of .rego modules for the embedded engine")
	rootCmd.Flags().String("otlp-endpoint", "", "OTLP gRPC endpoint for trace export")

	return rootCmd
}

// parseCLIConfig parses command line arguments and returns a CLIConfig
func parseCLIConfig(cmd *cobra.Command) (*CLIConfig, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return nil, fmt.Errorf("failed to get listen flag: %w", err)
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return nil, fmt.Errorf("failed to get pretty flag: %w", err)
	}

	policyDir, err := cmd.Flags().GetString("policy-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get policy-dir flag: %w", err)
	}

	otlpEndpoint, err := cmd.Flags().GetString("otlp-endpoint")
	if err != nil {
		return nil, fmt.Errorf("failed to get otlp-endpoint flag: %w", err)
	}

	return &CLIConfig{
		Config:       configPath,
		Listen:       listen,
		LogLevel:     logLevel,
		Pretty:       pretty,
		PolicyDir:    policyDir,
		OTLPEndpoint: otlpEndpoint,
	}, nil
}

// buildClient selects the decision client: embedded when a policy directory
// is given, HTTP otherwise. The embedded engine starts a watcher goroutine
// that hot-reloads modules until ctx is done.
func buildClient(ctx context.Context, cliConfig *CLIConfig, logger *slog.Logger) (authz.DecisionClient, error) {
	if cliConfig.PolicyDir == "" {
		return opaclient.New(opaclient.Config{}), nil
	}

	modules, err := opaclient.LoadModulesDir(cliConfig.PolicyDir)
	if err != nil {
		return nil, err
	}

	engine, err := opaclient.NewEmbedded(modules)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := opaclient.WatchModules(ctx, cliConfig.PolicyDir, engine, logger); err != nil {
			logger.Error("policy watcher stopped", "error", err)
		}
	}()

	logger.Info("embedded policy engine ready", "dir", cliConfig.PolicyDir, "modules", len(modules))
	return engine, nil
}

// runServer is the main entry point for the polis-authz command
func runServer(cmd *cobra.Command, args []string) error {
	cliConfig, err := parseCLIConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cliConfig.LogLevel,
		Pretty: cliConfig.Pretty,
	})
	slog.SetDefault(logger)

	cfg := authz.Config{URL: "http://localhost:8181/v1/data"}
	if cliConfig.Config != "" {
		cfg, err = authz.LoadConfig(cliConfig.Config)
		if err != nil {
			logger.Error("Failed to load configuration", "error", err)
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "polis-authz",
		Endpoint:    cliConfig.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		logger.Error("Failed to set up tracing", "error", err)
		return err
	}

	client, err := buildClient(ctx, cliConfig, logger)
	if err != nil {
		logger.Error("Failed to build decision client", "error", err)
		return err
	}

	metrics := telemetry.NewMetrics()
	factory := authz.NewFactory(authz.FactoryConfig{
		Config:   cfg,
		Defaults: authz.Options{Client: client},
		Logger:   logger,
		Metrics:  metrics,
	})

	router := newRouter(factory, metrics)

	server := &http.Server{
		Addr:              cliConfig.Listen,
		Handler:           otelhttp.NewHandler(router, "polis-authz"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting polis-authz",
			"listen", cliConfig.Listen,
			"decision_point", cfg.URL,
			"dry_run", cfg.DryRun.Enabled,
			"admission_control_disabled", cfg.DisableAdmissionControl,
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("Error flushing traces", "error", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}

// newRouter wires the demo routes. The user document routes resolve to the
// /user and /user/document decision paths and carry the caller identity from
// the X-Subject header as a required field.
func newRouter(factory *authz.Factory, metrics *telemetry.Metrics) chi.Router {
	router := chi.NewRouter()

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	guard := factory.Middleware(authz.Options{
		Required: authz.RequiredFields{
			"subject": func(r *http.Request) (any, error) {
				subject := r.Header.Get("X-Subject")
				if subject == "" {
					return nil, fmt.Errorf("missing X-Subject header")
				}
				return subject, nil
			},
		},
	})

	router.Group(func(g chi.Router) {
		g.Use(guard)
		g.Get("/users/{user_id}", showResource)
		g.Get("/users/{user_id}/documents/{document_id}", showResource)
	})

	return router
}

func showResource(w http.ResponseWriter, r *http.Request) {
	eval, _ := authz.EvaluationFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"params":      chi.RouteContext(r.Context()).URLParams,
		"decision_id": eval.Decision.DecisionID,
	})
}
