package specfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"chimera/internal/api"
	"chimera/internal/artifact"
	"chimera/internal/registry"
	"chimera/internal/validate"
	"chimera/pkg/logging"
)

const subsystem = "SpecFile"

// Loader applies spec documents to the registry and reads them back out.
type Loader struct {
	registry  *registry.Store
	artifacts *artifact.Store
}

// NewLoader binds a loader to the metadata stores.
func NewLoader(reg *registry.Store, artifacts *artifact.Store) *Loader {
	return &Loader{registry: reg, artifacts: artifacts}
}

// Summary counts what one Apply touched.
type Summary struct {
	Tools     int
	Resources int
	Prompts   int
	Macros    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d tools, %d resources, %d prompts, %d macros",
		s.Tools, s.Resources, s.Prompts, s.Macros)
}

// Apply upserts every entry of a parsed spec. clear wipes the persistent
// catalog first. Bodies are validated before anything is written so a bad
// spec does not half-apply.
func (l *Loader) Apply(ctx context.Context, f *File, clear bool) (*Summary, error) {
	if err := l.precheck(f); err != nil {
		return nil, err
	}
	if clear {
		if err := l.registry.ClearCatalog(ctx); err != nil {
			return nil, err
		}
		logging.Info(subsystem, "Cleared persistent catalog before load")
	}

	var sum Summary
	for _, t := range f.Tools {
		digest, err := l.artifacts.Put(ctx, t.Code, api.ArtifactKind(t.Kind))
		if err != nil {
			return nil, err
		}
		rec := &api.ToolRecord{
			Name:           QualifiedName(t.Group, t.Name),
			Persona:        orDefault(t.Persona),
			Description:    t.Description,
			InputSchema:    buildSchema(t.Parameters),
			ArtifactDigest: digest,
			Group:          t.Group,
			State:          api.ToolStateCreated,
		}
		if err := l.registry.UpsertTool(ctx, rec); err != nil {
			return nil, err
		}
		sum.Tools++
	}
	for _, r := range f.Resources {
		rec := &api.ResourceRecord{
			URI:         r.URI,
			Persona:     orDefault(r.Persona),
			Name:        QualifiedName(r.Group, r.Name),
			Description: r.Description,
			MIMEType:    orElse(r.MIMEType, "text/plain"),
			Dynamic:     r.Dynamic,
			Group:       r.Group,
		}
		if r.Dynamic {
			digest, err := l.artifacts.Put(ctx, r.Content, api.KindScript)
			if err != nil {
				return nil, err
			}
			rec.ArtifactDigest = digest
		} else {
			rec.StaticBody = r.Content
		}
		if err := l.registry.UpsertResource(ctx, rec); err != nil {
			return nil, err
		}
		sum.Resources++
	}
	for _, p := range f.Prompts {
		args := make([]api.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, api.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		rec := &api.PromptRecord{
			Name:        QualifiedName(p.Group, p.Name),
			Persona:     orDefault(p.Persona),
			Description: p.Description,
			Template:    p.Template,
			Arguments:   args,
			Group:       p.Group,
		}
		if err := l.registry.UpsertPrompt(ctx, rec); err != nil {
			return nil, err
		}
		sum.Prompts++
	}
	for _, m := range f.Macros {
		rec := &api.MacroRecord{
			Name:        m.Name,
			Description: m.Description,
			Template:    m.Template,
			Active:      true,
		}
		if err := l.registry.UpsertMacro(ctx, rec); err != nil {
			return nil, err
		}
		sum.Macros++
	}

	logging.Info(subsystem, "Applied spec: %s", sum)
	return &sum, nil
}

// precheck validates every body before the first write.
func (l *Loader) precheck(f *File) error {
	policy := validate.DefaultPolicy()
	for _, t := range f.Tools {
		switch t.Kind {
		case "select":
			if err := validate.ReadOnlySQL(blankTemplateActions(t.Code)); err != nil {
				return fmt.Errorf("tool %s: %w", t.Name, err)
			}
		case "script":
			if err := validate.Script(t.Code, policy); err != nil {
				return fmt.Errorf("tool %s: %w", t.Name, err)
			}
		}
	}
	for _, r := range f.Resources {
		if r.Dynamic {
			if err := validate.Script(r.Content, policy); err != nil {
				return fmt.Errorf("resource %s: %w", r.URI, err)
			}
		}
	}
	return nil
}

// Export reads the persistent catalog for one persona back into the spec
// shape. Loading an exported file reproduces the same artifacts and rows.
func (l *Loader) Export(ctx context.Context, persona string) (*File, error) {
	persona = orDefault(persona)
	f := &File{}

	tools, err := l.registry.ListTools(ctx, persona)
	if err != nil {
		return nil, err
	}
	for _, rec := range tools {
		if rec.ArtifactDigest == "" {
			continue
		}
		art, err := l.artifacts.Get(ctx, rec.ArtifactDigest)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", rec.Name, err)
		}
		f.Tools = append(f.Tools, ToolSpec{
			Name:        bareName(rec.Name, rec.Group),
			Group:       rec.Group,
			Description: rec.Description,
			Kind:        string(art.Kind),
			Code:        art.Body,
			Persona:     exportPersona(rec.Persona),
			Parameters:  schemaToParameters(rec.InputSchema),
		})
	}

	resources, err := l.registry.ListResources(ctx, persona)
	if err != nil {
		return nil, err
	}
	for _, rec := range resources {
		spec := ResourceSpec{
			URI:         rec.URI,
			Group:       rec.Group,
			Name:        bareName(rec.Name, rec.Group),
			Description: rec.Description,
			MIMEType:    rec.MIMEType,
			Dynamic:     rec.Dynamic,
			Content:     rec.StaticBody,
			Persona:     exportPersona(rec.Persona),
		}
		if rec.Dynamic {
			art, err := l.artifacts.Get(ctx, rec.ArtifactDigest)
			if err != nil {
				return nil, fmt.Errorf("resource %s: %w", rec.URI, err)
			}
			spec.Content = art.Body
		}
		f.Resources = append(f.Resources, spec)
	}

	prompts, err := l.registry.ListPrompts(ctx, persona)
	if err != nil {
		return nil, err
	}
	for _, rec := range prompts {
		args := make([]PromptArgumentSpec, 0, len(rec.Arguments))
		for _, a := range rec.Arguments {
			args = append(args, PromptArgumentSpec{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		f.Prompts = append(f.Prompts, PromptSpec{
			Name:        bareName(rec.Name, rec.Group),
			Group:       rec.Group,
			Description: rec.Description,
			Template:    rec.Template,
			Arguments:   args,
			Persona:     exportPersona(rec.Persona),
		})
	}

	macros, err := l.registry.ListActiveMacros(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range macros {
		f.Macros = append(f.Macros, MacroSpec{
			Name:        rec.Name,
			Description: rec.Description,
			Template:    rec.Template,
		})
	}
	return f, nil
}

func orDefault(persona string) string {
	if persona == "" {
		return api.DefaultPersona
	}
	return persona
}

func orElse(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// exportPersona omits the default persona so round-tripped files stay
// minimal.
func exportPersona(persona string) string {
	if persona == api.DefaultPersona {
		return ""
	}
	return persona
}

// bareName strips the group prefix the loader added. Names created outside
// the spec loader keep their full form.
func bareName(name, group string) string {
	return strings.TrimPrefix(name, group+"_")
}

// buildSchema synthesizes the input schema JSON from declared parameters.
func buildSchema(parameters map[string]ParameterSpec) json.RawMessage {
	properties := map[string]any{}
	var required []string

	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := parameters[name]
		prop := map[string]any{"type": orElse(spec.Type, "string")}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		properties[name] = prop
		if spec.Required {
			required = append(required, name)
		}
	}
	data, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return data
}

// schemaToParameters inverts buildSchema for export.
func schemaToParameters(raw json.RawMessage) map[string]ParameterSpec {
	if len(raw) == 0 {
		return nil
	}
	var schema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil || len(schema.Properties) == 0 {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	out := make(map[string]ParameterSpec, len(schema.Properties))
	for name, prop := range schema.Properties {
		out[name] = ParameterSpec{
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[name],
		}
	}
	return out
}

// blankTemplateActions replaces {{...}} actions with spaces so the SQL
// discipline can check the statement skeleton of a template.
func blankTemplateActions(body string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(body); i++ {
		if i+1 < len(body) && body[i] == '{' && body[i+1] == '{' {
			depth++
			i++
			continue
		}
		if i+1 < len(body) && body[i] == '}' && body[i+1] == '}' && depth > 0 {
			depth--
			b.WriteByte(' ')
			i++
			continue
		}
		if depth == 0 {
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
