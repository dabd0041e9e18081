// Package sqltmpl renders SQL tool bodies. A body is a Go text/template
// (with the sprig function map) evaluated against the call's argument bag;
// every active macro from the registry is prepended as a {{define}} block so
// bodies can reuse shared fragments with {{template "name" .}}. Rendering
// shapes the statement only; values always travel as :name placeholders
// bound at execution time.
package sqltmpl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"chimera/internal/api"
	"chimera/pkg/logging"
)

const subsystem = "SQLTemplate"

// MacroSource lists the active macros in their prelude order.
type MacroSource interface {
	ListActiveMacros(ctx context.Context) ([]api.MacroRecord, error)
}

// Renderer renders bodies with a cached macro prelude.
type Renderer struct {
	macros MacroSource

	mu      sync.RWMutex
	prelude string
	loaded  bool
}

// NewRenderer builds a renderer over a macro source.
func NewRenderer(macros MacroSource) *Renderer {
	return &Renderer{macros: macros}
}

// Invalidate drops the cached prelude. Called after every macro upsert so
// the next render sees the new set.
func (r *Renderer) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.prelude = ""
	r.mu.Unlock()
}

// Prelude returns the concatenated active macro templates, loading and
// caching them on first use.
func (r *Renderer) Prelude(ctx context.Context) (string, error) {
	r.mu.RLock()
	if r.loaded {
		p := r.prelude
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	macros, err := r.macros.ListActiveMacros(ctx)
	if err != nil {
		return "", fmt.Errorf("loading macro prelude: %w", err)
	}
	// Define blocks produce no output, but any text between them would be
	// emitted verbatim at the top of every rendered statement. Concatenate
	// trimmed blocks with no separator.
	var b strings.Builder
	for _, m := range macros {
		b.WriteString(strings.TrimSpace(m.Template))
	}
	prelude := b.String()

	r.mu.Lock()
	r.prelude = prelude
	r.loaded = true
	r.mu.Unlock()

	logging.Debug(subsystem, "Loaded macro prelude with %d macros", len(macros))
	return prelude, nil
}

// Render evaluates a body against the argument bag. The render context
// exposes the bag as .arguments; an absent argument evaluates falsy so
// conditional blocks drop out of the rendered statement.
func (r *Renderer) Render(ctx context.Context, body string, arguments map[string]any) (string, error) {
	prelude, err := r.Prelude(ctx)
	if err != nil {
		return "", err
	}
	return render(prelude+body, arguments)
}

// RenderBare evaluates a body without the macro prelude. Meta-tools use it
// for the relaxed pre-check of template bodies at creation time.
func RenderBare(body string, arguments map[string]any) (string, error) {
	return render(body, arguments)
}

func render(text string, arguments map[string]any) (string, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	tmpl, err := template.New("sql").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing SQL template: %v: %w", err, api.ErrInvalidStructure)
	}
	var out strings.Builder
	data := map[string]any{"arguments": arguments}
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("rendering SQL template: %v: %w", err, api.ErrInvalidStructure)
	}
	return out.String(), nil
}
