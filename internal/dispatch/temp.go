package dispatch

import (
	"sync"

	"chimera/internal/api"
)

// TempTool is an in-memory tool definition. Temporary SQL tools keep their
// body here instead of the artifact store; they vanish with the process.
type TempTool struct {
	Record api.ToolRecord
	Body   string
	Kind   api.ArtifactKind
}

// TempResource is an in-memory resource definition.
type TempResource struct {
	Record api.ResourceRecord
	Body   string
}

// TempRegistry holds process-local temporary tools and resources, keyed by
// name (or uri) and persona. It shadows the persistent registry during
// resolution and is never persisted.
type TempRegistry struct {
	mu        sync.RWMutex
	tools     map[string]TempTool
	resources map[string]TempResource
}

// NewTempRegistry builds an empty temporary registry.
func NewTempRegistry() *TempRegistry {
	return &TempRegistry{
		tools:     make(map[string]TempTool),
		resources: make(map[string]TempResource),
	}
}

func tempKey(name, persona string) string { return name + ":" + persona }

// PutTool registers or replaces a temporary tool.
func (t *TempRegistry) PutTool(tool TempTool) {
	if tool.Record.Persona == "" {
		tool.Record.Persona = api.DefaultPersona
	}
	t.mu.Lock()
	t.tools[tempKey(tool.Record.Name, tool.Record.Persona)] = tool
	t.mu.Unlock()
}

// GetTool resolves a temporary tool by (name, persona).
func (t *TempRegistry) GetTool(name, persona string) (TempTool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tool, ok := t.tools[tempKey(name, persona)]
	return tool, ok
}

// ListTools returns every temporary tool for one persona.
func (t *TempRegistry) ListTools(persona string) []TempTool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []TempTool
	for _, tool := range t.tools {
		if tool.Record.Persona == persona {
			out = append(out, tool)
		}
	}
	return out
}

// PutResource registers or replaces a temporary resource.
func (t *TempRegistry) PutResource(res TempResource) {
	if res.Record.Persona == "" {
		res.Record.Persona = api.DefaultPersona
	}
	t.mu.Lock()
	t.resources[tempKey(res.Record.URI, res.Record.Persona)] = res
	t.mu.Unlock()
}

// GetResource resolves a temporary resource by (uri, persona).
func (t *TempRegistry) GetResource(uri, persona string) (TempResource, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res, ok := t.resources[tempKey(uri, persona)]
	return res, ok
}

// ListResources returns every temporary resource for one persona.
func (t *TempRegistry) ListResources(persona string) []TempResource {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []TempResource
	for _, res := range t.resources {
		if res.Record.Persona == persona {
			out = append(out, res)
		}
	}
	return out
}
