// Package metatools implements the engine's privileged builtin tools: the
// self-modifying surface that creates SQL tools, prompts, resources,
// macros, and dashboards at runtime, plus the diagnostic and lifecycle
// tools (manual management, verification, last-error lookup, database
// session control) and the workflow chain entry point.
//
// Meta-tools are ordinary tools from the dispatcher's point of view: they
// resolve by name, execute with a capability set, and are audited like
// everything else. Their only privilege is holding references to the
// registry and artifact store.
package metatools

import (
	"chimera/internal/dashboard"
	"chimera/internal/dispatch"
	"chimera/internal/sqltmpl"
)

// Provider implements dispatch.BuiltinProvider.
type Provider struct {
	engine     *dispatch.Dispatcher
	renderer   *sqltmpl.Renderer
	dashboards *dashboard.Manager
}

// NewProvider builds the builtin provider. dashboards may be nil when the
// feature is disabled.
func NewProvider(engine *dispatch.Dispatcher, renderer *sqltmpl.Renderer, dashboards *dashboard.Manager) *Provider {
	return &Provider{engine: engine, renderer: renderer, dashboards: dashboards}
}

// Has reports whether a name belongs to the builtin set.
func (p *Provider) Has(name string) bool {
	_, ok := handlerNames[name]
	return ok
}
