// Package specfile reads and writes chimera's declarative catalog format:
// a YAML document describing tools, resources, prompts, and macros with
// their code as literal blocks. Loading is an idempotent upsert; names are
// prefixed with their group so a spec can be re-applied safely next to
// catalogs from other groups.
package specfile

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// File is the on-disk document shape. Field names use JSON tags because
// the YAML codec routes through JSON.
type File struct {
	Tools     []ToolSpec     `json:"tools,omitempty"`
	Resources []ResourceSpec `json:"resources,omitempty"`
	Prompts   []PromptSpec   `json:"prompts,omitempty"`
	Macros    []MacroSpec    `json:"macros,omitempty"`
}

// ToolSpec declares one tool. Kind selects the executor: `select` for SQL
// templates, `script` for runtime programs, `ui` for dashboard source.
type ToolSpec struct {
	Name        string                   `json:"name"`
	Group       string                   `json:"group"`
	Description string                   `json:"description"`
	Kind        string                   `json:"kind"`
	Code        string                   `json:"code"`
	Persona     string                   `json:"persona,omitempty"`
	Parameters  map[string]ParameterSpec `json:"parameters,omitempty"`
}

// ParameterSpec declares one input parameter of a SQL tool.
type ParameterSpec struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ResourceSpec declares one resource. Dynamic resources carry a script in
// Content; static ones carry the body verbatim.
type ResourceSpec struct {
	URI         string `json:"uri"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
	Dynamic     bool   `json:"dynamic,omitempty"`
	Content     string `json:"content"`
	Persona     string `json:"persona,omitempty"`
}

// PromptSpec declares one prompt template.
type PromptSpec struct {
	Name        string               `json:"name"`
	Group       string               `json:"group"`
	Description string               `json:"description,omitempty"`
	Template    string               `json:"template"`
	Arguments   []PromptArgumentSpec `json:"arguments,omitempty"`
	Persona     string               `json:"persona,omitempty"`
}

// PromptArgumentSpec declares one placeholder of a prompt.
type PromptArgumentSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// MacroSpec declares one SQL template macro.
type MacroSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template"`
}

// Parse decodes a spec document and checks the structural invariants every
// entry must satisfy before anything touches the registry.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parsing spec file: %w", err)
	}
	for i, t := range f.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tools[%d] has no name", i)
		}
		if t.Group == "" {
			return nil, fmt.Errorf("tool %q has no group (group is required)", t.Name)
		}
		if t.Code == "" {
			return nil, fmt.Errorf("tool %q has no code", t.Name)
		}
		switch t.Kind {
		case "select", "script", "ui":
		default:
			return nil, fmt.Errorf("tool %q has unknown kind %q (select, script, or ui)", t.Name, t.Kind)
		}
	}
	for i, r := range f.Resources {
		if r.URI == "" {
			return nil, fmt.Errorf("resources[%d] has no uri", i)
		}
		if r.Group == "" {
			return nil, fmt.Errorf("resource %q has no group (group is required)", r.URI)
		}
	}
	for i, p := range f.Prompts {
		if p.Name == "" {
			return nil, fmt.Errorf("prompts[%d] has no name", i)
		}
		if p.Group == "" {
			return nil, fmt.Errorf("prompt %q has no group (group is required)", p.Name)
		}
		if p.Template == "" {
			return nil, fmt.Errorf("prompt %q has no template", p.Name)
		}
	}
	for i, m := range f.Macros {
		if m.Name == "" {
			return nil, fmt.Errorf("macros[%d] has no name", i)
		}
		if m.Template == "" {
			return nil, fmt.Errorf("macro %q has no template", m.Name)
		}
	}
	return &f, nil
}

// Marshal encodes a spec document.
func Marshal(f *File) ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding spec file: %w", err)
	}
	return data, nil
}

// QualifiedName is the registry name of a spec entry: the group prefix
// keeps catalogs from different specs apart.
func QualifiedName(group, name string) string {
	return group + "_" + name
}
