package metatools

import (
	"context"
	"fmt"
	"strings"

	"chimera/internal/api"
	"chimera/internal/dispatch"
	"chimera/internal/validate"
	"chimera/pkg/logging"
)

// handleCreateSQLTool stores a select artifact and registers a persistent
// auto-created tool for the default persona.
func (p *Provider) handleCreateSQLTool(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "tool_name")
	if err != nil {
		return nil, err
	}
	if err := validToolName(name); err != nil {
		return nil, err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return nil, err
	}
	sqlQuery, err := stringArg(args, "sql_query")
	if err != nil {
		return nil, err
	}
	// The body may be a template; check the statement skeleton now, the
	// rendered statement at every dispatch.
	if err := precheckSQLTemplate(sqlQuery); err != nil {
		return nil, err
	}
	schema, err := synthesizeSchema(mapArg(args, "parameters"))
	if err != nil {
		return nil, err
	}

	digest, err := p.engine.Artifacts().Put(ctx, sqlQuery, api.KindSelect)
	if err != nil {
		return nil, err
	}
	rec := &api.ToolRecord{
		Name:           name,
		Persona:        api.DefaultPersona,
		Description:    description,
		InputSchema:    schema,
		ArtifactDigest: digest,
		Group:          "auto",
		AutoCreated:    true,
		State:          api.ToolStateCreated,
	}
	if err := p.engine.Registry().UpsertTool(ctx, rec); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()
	logging.Info(subsystem, "Created SQL tool %s (artifact %.16s)", name, digest)
	return fmt.Sprintf("Tool %q created. It is available immediately.", name), nil
}

// handleCreatePrompt registers a prompt template.
func (p *Provider) handleCreatePrompt(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if err := validToolName(name); err != nil {
		return nil, err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return nil, err
	}
	template, err := stringArg(args, "template")
	if err != nil {
		return nil, err
	}

	var promptArgs []api.PromptArgument
	if list, ok := args["arguments"].([]any); ok {
		for i, item := range list {
			spec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("arguments[%d] must be an object with name/description/required", i)
			}
			argName, err := stringArg(spec, "name")
			if err != nil {
				return nil, fmt.Errorf("arguments[%d]: %w", i, err)
			}
			required, _ := spec["required"].(bool)
			promptArgs = append(promptArgs, api.PromptArgument{
				Name:        argName,
				Description: optStringArg(spec, "description", ""),
				Required:    required,
			})
		}
	}

	rec := &api.PromptRecord{
		Name:        name,
		Persona:     optStringArg(args, "persona", api.DefaultPersona),
		Description: description,
		Template:    template,
		Arguments:   promptArgs,
		Group:       "auto",
	}
	if err := p.engine.Registry().UpsertPrompt(ctx, rec); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()
	return fmt.Sprintf("Prompt %q created.", name), nil
}

// handleCreateResource registers a resource. Static content is stored on
// the row; dynamic content becomes a script artifact executed at read time.
func (p *Provider) handleCreateResource(ctx context.Context, args map[string]any) (any, error) {
	uri, err := stringArg(args, "uri")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	dynamic, _ := args["is_dynamic"].(bool)

	rec := &api.ResourceRecord{
		URI:         uri,
		Persona:     optStringArg(args, "persona", api.DefaultPersona),
		Name:        name,
		Description: optStringArg(args, "description", ""),
		MIMEType:    optStringArg(args, "mime_type", "text/plain"),
		Dynamic:     dynamic,
		Group:       "auto",
	}
	if dynamic {
		if err := validate.Script(content, validate.DefaultPolicy()); err != nil {
			return nil, err
		}
		digest, err := p.engine.Artifacts().Put(ctx, content, api.KindScript)
		if err != nil {
			return nil, err
		}
		rec.ArtifactDigest = digest
	} else {
		rec.StaticBody = content
	}
	if err := p.engine.Registry().UpsertResource(ctx, rec); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()
	return fmt.Sprintf("Resource %q created.", uri), nil
}

// handleCreateTempTool registers an in-memory SQL tool. The executor caps
// its result at 3 rows, so a stored LIMIT is rejected up front.
func (p *Provider) handleCreateTempTool(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "tool_name")
	if err != nil {
		return nil, err
	}
	if err := validToolName(name); err != nil {
		return nil, err
	}
	sqlQuery, err := stringArg(args, "sql_query")
	if err != nil {
		return nil, err
	}
	if err := precheckSQLTemplate(sqlQuery); err != nil {
		return nil, err
	}
	if validate.HasLimitClause(sqlQuery) {
		return nil, fmt.Errorf("temporary tools must not carry a LIMIT clause; a LIMIT 3 cap is applied automatically")
	}
	schema, err := synthesizeSchema(mapArg(args, "parameters"))
	if err != nil {
		return nil, err
	}

	p.engine.Temp().PutTool(dispatch.TempTool{
		Record: api.ToolRecord{
			Name:        name,
			Persona:     api.DefaultPersona,
			Description: optStringArg(args, "description", ""),
			InputSchema: schema,
			Group:       "temp",
			AutoCreated: true,
		},
		Body: sqlQuery,
		Kind: api.KindSelect,
	})
	p.engine.NotifyChanged()
	return fmt.Sprintf("Temporary tool %q created (results capped at 3 rows; gone on restart).", name), nil
}

// handleCreateTempResource registers an in-memory resource.
func (p *Provider) handleCreateTempResource(ctx context.Context, args map[string]any) (any, error) {
	uri, err := stringArg(args, "uri")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	dynamic, _ := args["is_dynamic"].(bool)
	if dynamic {
		if err := validate.Script(content, validate.DefaultPolicy()); err != nil {
			return nil, err
		}
	}

	rec := api.ResourceRecord{
		URI:         uri,
		Persona:     api.DefaultPersona,
		Name:        name,
		Description: optStringArg(args, "description", ""),
		MIMEType:    optStringArg(args, "mime_type", "text/plain"),
		Dynamic:     dynamic,
		Group:       "temp",
	}
	if !dynamic {
		rec.StaticBody = content
	}
	p.engine.Temp().PutResource(dispatch.TempResource{
		Record: rec,
		Body:   content,
	})
	p.engine.NotifyChanged()
	return fmt.Sprintf("Temporary resource %q created (gone on restart).", uri), nil
}

// handleRegisterMacro stores a template macro and invalidates the prelude
// cache so the next SQL render sees it.
func (p *Provider) handleRegisterMacro(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if err := validToolName(name); err != nil {
		return nil, err
	}
	template, err := stringArg(args, "template")
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(template)
	if !strings.HasPrefix(trimmed, "{{define") && !strings.HasPrefix(trimmed, "{{ define") {
		return nil, fmt.Errorf(`macro template must start with {{define "name"}}`)
	}
	if !strings.HasSuffix(trimmed, "{{end}}") && !strings.HasSuffix(trimmed, "{{ end }}") {
		return nil, fmt.Errorf("macro template must end with {{end}}")
	}

	rec := &api.MacroRecord{
		Name:        name,
		Description: optStringArg(args, "description", ""),
		Template:    template,
		Active:      true,
	}
	if err := p.engine.Registry().UpsertMacro(ctx, rec); err != nil {
		return nil, err
	}
	p.renderer.Invalidate()
	return fmt.Sprintf("Macro %q registered and active for every SQL render.", name), nil
}

// handleCreateDashboard stores a ui artifact, writes the source file for
// the external runner, and registers a tool whose dispatch returns the
// runner URL.
func (p *Provider) handleCreateDashboard(ctx context.Context, args map[string]any) (any, error) {
	if p.dashboards == nil || !p.dashboards.Enabled() {
		return nil, fmt.Errorf("dashboards are disabled in configuration")
	}
	name, err := stringArg(args, "dashboard_name")
	if err != nil {
		return nil, err
	}
	source, err := stringArg(args, "source")
	if err != nil {
		return nil, err
	}

	digest, err := p.engine.Artifacts().Put(ctx, source, api.KindUI)
	if err != nil {
		return nil, err
	}
	path, err := p.dashboards.Save(name, source)
	if err != nil {
		return nil, err
	}
	rec := &api.ToolRecord{
		Name:           name,
		Persona:        api.DefaultPersona,
		Description:    fmt.Sprintf("Dashboard %s; calling this tool returns its URL", name),
		ArtifactDigest: digest,
		Group:          "dashboard",
		AutoCreated:    true,
		State:          api.ToolStateCreated,
	}
	if err := p.engine.Registry().UpsertTool(ctx, rec); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()

	url, err := p.dashboards.URL(name)
	if err != nil {
		return nil, err
	}
	logging.Info(subsystem, "Dashboard %s stored at %s", name, path)
	return fmt.Sprintf("Dashboard %q stored. Open it at %s", name, url), nil
}
