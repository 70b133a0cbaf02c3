package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-authz/pkg/authz"
	"github.com/polisai/polis-authz/pkg/domain"
	"github.com/polisai/polis-authz/pkg/telemetry"
)

func TestParseCLIConfigDefaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := parseCLIConfig(cmd)
	require.NoError(t, err)

	require.Equal(t, defaultListen, cfg.Listen)
	require.Equal(t, defaultLogLevel, cfg.LogLevel)
	require.Empty(t, cfg.PolicyDir)
}

func TestParseCLIConfigFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--listen", ":9090",
		"--log-level", "debug",
		"--pretty",
		"--policy-dir", "/tmp/policies",
	}))

	cfg, err := parseCLIConfig(cmd)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.Pretty)
	require.Equal(t, "/tmp/policies", cfg.PolicyDir)
}

func TestBuildClientEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.rego"), []byte(`package users

default allow := false

allow if input.req.method == "GET"
`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := buildClient(ctx, &CLIConfig{PolicyDir: dir}, nil)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestBuildClientMissingPolicyDir(t *testing.T) {
	_, err := buildClient(context.Background(), &CLIConfig{PolicyDir: filepath.Join(t.TempDir(), "absent")}, nil)
	require.Error(t, err)
}

func TestRouterHealthAndMetricsUnguarded(t *testing.T) {
	factory := authz.NewFactory(authz.FactoryConfig{
		Config: authz.Config{URL: "http://opa:8181/v1/data"},
	})
	router := newRouter(factory, telemetry.NewMetrics())

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouterGuardsUserRoutes(t *testing.T) {
	allowAll := authz.DecisionClientFunc(func(_ context.Context, _ string, _ domain.EvaluationRequest) (domain.Decision, error) {
		return domain.Decision{
			DecisionID: "test",
			Result:     domain.NewDecisionResult(map[string]any{"allow": true}),
		}, nil
	})

	factory := authz.NewFactory(authz.FactoryConfig{
		Config:   authz.Config{URL: "http://opa:8181/v1/data"},
		Defaults: authz.Options{Client: allowAll},
	})
	router := newRouter(factory, telemetry.NewMetrics())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	req.Header.Set("X-Subject", "alice")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"decision_id":"test"`)
}
