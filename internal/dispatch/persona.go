package dispatch

import (
	"context"

	"chimera/internal/api"
)

// personaKey is the well-known context slot the dispatcher reads the
// persona from. Persona scopes listings; it is a namespace, not an access
// control boundary.
type personaKey struct{}

// WithPersona stores a persona in the context. Empty personas normalize to
// the default.
func WithPersona(ctx context.Context, persona string) context.Context {
	if persona == "" {
		persona = api.DefaultPersona
	}
	return context.WithValue(ctx, personaKey{}, persona)
}

// PersonaFromContext reads the persona slot, defaulting when absent.
func PersonaFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(personaKey{}).(string); ok && p != "" {
		return p
	}
	return api.DefaultPersona
}
