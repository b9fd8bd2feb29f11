package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscribe/chainscribe/pkg/config"
)

func twoProviders() []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "zerog", URL: "https://compute.example", APIKey: "k-1"},
		{Name: "backup", URL: "https://backup.example", APIKey: "k-2", Type: "anthropic"},
	}
}

func TestResolveNoProviders(t *testing.T) {
	_, err := New(config.InferenceConfig{}).Resolve("m")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestResolveDefaultsToFirstProvider(t *testing.T) {
	r := New(config.InferenceConfig{Providers: twoProviders()})
	routes, err := r.Resolve("chainscribe-docusense-v1")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "zerog", routes[0].Provider.Name)
	assert.Equal(t, "chainscribe-docusense-v1", routes[0].Model)
}

func TestResolveFallbackChain(t *testing.T) {
	r := New(config.InferenceConfig{
		Providers: twoProviders(),
		Routes: []config.RouteConfig{{
			Model: "chainscribe-change-analyzer",
			Targets: []config.RouteTarget{
				{Provider: "zerog", Model: "llama-3b"},
				{Provider: "backup", Model: "claude-haiku-4-5"},
			},
		}},
	})
	routes, err := r.Resolve("chainscribe-change-analyzer")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "llama-3b", routes[0].Model)
	assert.Equal(t, "backup", routes[1].Provider.Name)
	assert.Equal(t, "claude-haiku-4-5", routes[1].Model)
}

func TestResolveEmptyTargetModelUsesKey(t *testing.T) {
	r := New(config.InferenceConfig{
		Providers: twoProviders(),
		Routes:    []config.RouteConfig{{Model: "m", Targets: []config.RouteTarget{{Provider: "backup"}}}},
	})
	routes, err := r.Resolve("m")
	require.NoError(t, err)
	assert.Equal(t, "m", routes[0].Model)
	assert.Equal(t, "backup", routes[0].Provider.Name)
}

func TestResolveSkipsUnknownProvider(t *testing.T) {
	r := New(config.InferenceConfig{
		Providers: twoProviders(),
		Routes: []config.RouteConfig{{Model: "m", Targets: []config.RouteTarget{
			{Provider: "unknown", Model: "x"},
			{Provider: "zerog", Model: "y"},
		}}},
	})
	routes, err := r.Resolve("m")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "zerog", routes[0].Provider.Name)
}

func TestResolveAllUnknownProviders(t *testing.T) {
	r := New(config.InferenceConfig{
		Providers: twoProviders(),
		Routes:    []config.RouteConfig{{Model: "bad", Targets: []config.RouteTarget{{Provider: "unknown"}}}},
	})
	_, err := r.Resolve("bad")
	assert.Error(t, err)
}
