package router

import (
	"errors"
	"fmt"

	"github.com/chainscribe/chainscribe/pkg/config"
)

// ErrNoProviders is returned when no compute provider is configured.
var ErrNoProviders = errors.New("no inference providers configured")

// Route represents a resolved provider and upstream model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves model keys to ordered provider+model chains.
type Router struct {
	providers []config.ProviderConfig
	index     map[string]config.ProviderConfig
	routes    map[string][]config.RouteTarget
}

// New creates a Router from the inference configuration.
func New(cfg config.InferenceConfig) *Router {
	r := &Router{
		providers: cfg.Providers,
		index:     make(map[string]config.ProviderConfig, len(cfg.Providers)),
		routes:    make(map[string][]config.RouteTarget, len(cfg.Routes)),
	}
	for _, p := range cfg.Providers {
		r.index[p.Name] = p
	}
	for _, rc := range cfg.Routes {
		if _, dup := r.routes[rc.Model]; dup {
			continue // first definition wins
		}
		r.routes[rc.Model] = rc.Targets
	}
	return r
}

// Resolve returns an ordered list of routes for a model key.
// If the key matches a configured route, its targets are returned in order.
// Otherwise the first provider is used with the key as the upstream model.
func (r *Router) Resolve(modelKey string) ([]Route, error) {
	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}

	targets, ok := r.routes[modelKey]
	if !ok {
		return []Route{{Provider: r.providers[0], Model: modelKey}}, nil
	}

	var routes []Route
	for _, target := range targets {
		provider, ok := r.index[target.Provider]
		if !ok {
			continue
		}
		model := target.Model
		if model == "" {
			model = modelKey
		}
		routes = append(routes, Route{Provider: provider, Model: model})
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("route %q: all providers unknown", modelKey)
	}
	return routes, nil
}
