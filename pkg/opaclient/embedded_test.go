package opaclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-authz/pkg/domain"
)

const usersPolicy = `package users

default allow := false

allow if input.req.method == "GET"
`

func newUsersEmbedded(t *testing.T) *Embedded {
	t.Helper()
	e, err := NewEmbedded(map[string]string{"users.rego": usersPolicy})
	require.NoError(t, err)
	return e
}

func methodInput(method string) domain.EvaluationRequest {
	return domain.EvaluationRequest{
		Request: domain.RequestMeta{Method: method, Params: map[string]string{}},
		Fields:  map[string]any{},
	}
}

func TestEmbeddedAllowsPerPolicy(t *testing.T) {
	e := newUsersEmbedded(t)

	decision, err := e.Evaluate(context.Background(), "/users", methodInput("GET"))
	require.NoError(t, err)
	require.True(t, decision.Allowed())
	require.NotEmpty(t, decision.DecisionID)

	decision, err = e.Evaluate(context.Background(), "/users", methodInput("DELETE"))
	require.NoError(t, err)
	require.False(t, decision.Allowed())
}

func TestEmbeddedStripsDataAPIPrefix(t *testing.T) {
	e := newUsersEmbedded(t)

	decision, err := e.Evaluate(context.Background(), "http://opa.local/v1/data/users", methodInput("GET"))
	require.NoError(t, err)
	require.True(t, decision.Allowed())
}

func TestEmbeddedUnknownPathDenies(t *testing.T) {
	e := newUsersEmbedded(t)

	decision, err := e.Evaluate(context.Background(), "/nonexistent", methodInput("GET"))
	require.NoError(t, err)
	require.False(t, decision.Allowed())
}

func TestEmbeddedMissingPathErrors(t *testing.T) {
	e := newUsersEmbedded(t)

	_, err := e.Evaluate(context.Background(), "http://opa.local/v1/data", methodInput("GET"))
	require.Error(t, err)
}

func TestEmbeddedReloadSwapsModules(t *testing.T) {
	e := newUsersEmbedded(t)

	decision, err := e.Evaluate(context.Background(), "/users", methodInput("DELETE"))
	require.NoError(t, err)
	require.False(t, decision.Allowed())

	err = e.Reload(map[string]string{"users.rego": `package users

default allow := true
`})
	require.NoError(t, err)

	decision, err = e.Evaluate(context.Background(), "/users", methodInput("DELETE"))
	require.NoError(t, err)
	require.True(t, decision.Allowed())
}

func TestEmbeddedRejectsEmptyModuleSet(t *testing.T) {
	_, err := NewEmbedded(nil)
	require.Error(t, err)
}

func TestEmbeddedRejectsInvalidModule(t *testing.T) {
	_, err := NewEmbedded(map[string]string{"bad.rego": "this is not rego"})
	require.Error(t, err)
}

func TestQueryForURL(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"/users", "data.users"},
		{"/users/documents", "data.users.documents"},
		{"http://opa:8181/v1/data/users", "data.users"},
		{"users", "data.users"},
	}

	for _, tc := range cases {
		query, err := queryForURL(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, query, tc.raw)
	}

	_, err := queryForURL("http://opa:8181/")
	require.Error(t, err)
}
