// Package dispatch presents a uniform, never-failing calling surface over a
// possibly-missing or possibly-disabled module implementation, so callers
// never need presence checks.
package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/registry"
)

// Resolver resolves a module's enabled flag and live API.
// *registry.Registry satisfies it.
type Resolver interface {
	Enabled(id string) bool
	API(id string) (registry.API, bool)
}

// Proxy wraps one module id. It re-resolves the real API on every call, so
// enabling a module after the proxy was created upgrades subsequent calls
// without recreating the proxy.
type Proxy struct {
	resolver Resolver
	moduleID string
	log      zerolog.Logger
}

// New creates a proxy for the given module id.
func New(resolver Resolver, moduleID string, log zerolog.Logger) *Proxy {
	return &Proxy{
		resolver: resolver,
		moduleID: moduleID,
		log:      log.With().Str("component", "dispatch").Str("module", moduleID).Logger(),
	}
}

// Invoke calls method on the underlying module if it is enabled, live, and
// implements the method; this is the only path with observable side effects
// on real module state. Every other case degrades to a typed safe default,
// logged or silent according to the method-name category. Invoke never fails.
func (p *Proxy) Invoke(method string, args []interface{}) interface{} {
	if p.resolver.Enabled(p.moduleID) {
		if api, ok := p.resolver.API(p.moduleID); ok {
			if api.Has(method) {
				value, err := api.Call(method, args)
				if err != nil {
					p.log.Error().Str("method", method).Err(err).Msg("module call failed")
					return nil
				}
				return value
			}
			// Live API without the method: a caller assumption mismatch.
			value, _ := defaultFor(p.moduleID, method)
			p.log.Warn().Str("method", method).Msg("module does not implement method")
			return value
		}
	}

	// Disabled or absent: no resolution attempt, category decides logging.
	value, warn := defaultFor(p.moduleID, method)
	if warn {
		p.log.Warn().Str("method", method).Msg("call on disabled or absent module")
	}
	return value
}
