package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func constExtractor(value string) FieldExtractor {
	return func(*http.Request) (any, error) { return value, nil }
}

func extractorValue(t *testing.T, extract FieldExtractor) string {
	t.Helper()
	value, err := extract(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return value.(string)
}

func TestResolveOptionsBuiltinDefaults(t *testing.T) {
	eff := resolveOptions(Options{}, Options{})

	require.IsType(t, ResourcePathResolver{}, eff.Resolver)
	require.IsType(t, DefaultRequestBuilder{}, eff.Builder)
	require.IsType(t, AllowHandler{}, eff.Handler)
	require.Nil(t, eff.Client, "client has no built-in default")
}

func TestResolveOptionsRouteWinsPerField(t *testing.T) {
	defaultResolver := PathResolverFunc(func(*http.Request) string { return "/from-defaults" })
	routeHandler := DecisionHandlerFunc(AllowHandler{}.Handle)

	eff := resolveOptions(
		Options{Resolver: defaultResolver, Handler: AllowHandler{}},
		Options{Handler: routeHandler},
	)

	// The route layer only set Handler; Resolver must survive from the
	// factory defaults, never be wiped wholesale.
	require.Equal(t, "/from-defaults", eff.Resolver.Resolve(httptest.NewRequest(http.MethodGet, "/", nil)))
	require.IsType(t, DecisionHandlerFunc(nil), eff.Handler)
}

func TestResolveOptionsRequiredMergesPerKey(t *testing.T) {
	eff := resolveOptions(
		Options{Required: RequiredFields{
			"a": constExtractor("default-a"),
			"b": constExtractor("default-b"),
		}},
		Options{Required: RequiredFields{
			"b": constExtractor("route-b"),
			"c": constExtractor("route-c"),
		}},
	)

	require.Len(t, eff.Required, 3)
	require.Equal(t, "default-a", extractorValue(t, eff.Required["a"]))
	require.Equal(t, "route-b", extractorValue(t, eff.Required["b"]))
	require.Equal(t, "route-c", extractorValue(t, eff.Required["c"]))
}

func TestMergeDoesNotMutateLayers(t *testing.T) {
	defaults := Options{Required: RequiredFields{"a": constExtractor("default-a")}}
	route := Options{Required: RequiredFields{"b": constExtractor("route-b")}}

	_ = resolveOptions(defaults, route)

	require.Len(t, defaults.Required, 1)
	require.Len(t, route.Required, 1)
}

func TestRequiredMergePrecedenceProperty(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}

	genLayer := rapid.MapOfN(
		rapid.SampledFrom(keys),
		rapid.StringMatching(`^[a-z]{1,5}$`),
		0, len(keys),
	)

	rapid.Check(t, func(t *rapid.T) {
		layers := []map[string]string{
			genLayer.Draw(t, "defaults"),
			genLayer.Draw(t, "route"),
		}

		toRequired := func(layer map[string]string) RequiredFields {
			required := make(RequiredFields, len(layer))
			for key, value := range layer {
				required[key] = constExtractor(value)
			}
			return required
		}

		eff := resolveOptions(
			Options{Required: toRequired(layers[0])},
			Options{Required: toRequired(layers[1])},
		)

		// Last writer wins per key, earlier layers fill the gaps.
		expected := make(map[string]string)
		for _, layer := range layers {
			for key, value := range layer {
				expected[key] = value
			}
		}

		if len(eff.Required) != len(expected) {
			t.Fatalf("expected %d keys, got %d", len(expected), len(eff.Required))
		}
		for key, want := range expected {
			value, err := eff.Required[key](httptest.NewRequest(http.MethodGet, "/", nil))
			if err != nil {
				t.Fatalf("extractor %s: %v", key, err)
			}
			if value != want {
				t.Fatalf("key %s: expected %q, got %v", key, want, value)
			}
		}
	})
}
