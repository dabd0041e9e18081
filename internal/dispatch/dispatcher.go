// Package dispatch is the engine's hub: it resolves a tool, resource, or
// prompt against the temporary, builtin, and persistent registries, checks
// artifact integrity, routes the body to the right executor with an
// explicit capability set, and records every outcome in the audit trail.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"chimera/internal/api"
	"chimera/internal/artifact"
	"chimera/internal/audit"
	"chimera/internal/database"
	"chimera/internal/executor"
	"chimera/internal/registry"
	"chimera/internal/validate"
	"chimera/pkg/logging"
)

const subsystem = "Dispatcher"

// BuiltinProvider is the native meta-tool surface. The metatools package
// implements it; the dispatcher consults it after the temporary registry
// and before the persistent one.
type BuiltinProvider interface {
	Tools() []api.ToolMetadata
	Has(name string) bool
	Execute(ctx context.Context, name string, args map[string]any, caps *api.Capabilities) (any, error)
}

// DashboardResolver turns a ui-kind tool into the URL of the external
// runner. Nil means dashboards are disabled.
type DashboardResolver interface {
	URL(name string) (string, error)
}

// Dispatcher resolves and executes calls.
type Dispatcher struct {
	registry   *registry.Store
	artifacts  *artifact.Store
	auditLog   *audit.Logger
	notebook   *audit.Notebook
	sqlExec    *executor.SQL
	scriptExec *executor.Script
	data       *database.DataSession
	temp       *TempRegistry
	builtins   BuiltinProvider
	dashboards DashboardResolver

	updates chan struct{}
}

// New wires a dispatcher. Builtins and dashboards are attached afterwards
// because the meta-tool provider needs the dispatcher itself.
func New(reg *registry.Store, artifacts *artifact.Store, auditLog *audit.Logger,
	notebook *audit.Notebook, sqlExec *executor.SQL, scriptExec *executor.Script,
	data *database.DataSession) *Dispatcher {
	return &Dispatcher{
		registry:   reg,
		artifacts:  artifacts,
		auditLog:   auditLog,
		notebook:   notebook,
		sqlExec:    sqlExec,
		scriptExec: scriptExec,
		data:       data,
		temp:       NewTempRegistry(),
		updates:    make(chan struct{}, 1),
	}
}

// SetBuiltins attaches the native meta-tool provider.
func (d *Dispatcher) SetBuiltins(b BuiltinProvider) { d.builtins = b }

// SetDashboards attaches the dashboard URL resolver.
func (d *Dispatcher) SetDashboards(r DashboardResolver) { d.dashboards = r }

// Temp exposes the temporary registry to the meta-tools.
func (d *Dispatcher) Temp() *TempRegistry { return d.temp }

// Registry exposes the persistent registry to the meta-tools.
func (d *Dispatcher) Registry() *registry.Store { return d.registry }

// Artifacts exposes the artifact store to the meta-tools.
func (d *Dispatcher) Artifacts() *artifact.Store { return d.artifacts }

// Audit exposes the execution log to the meta-tools (get_last_error).
func (d *Dispatcher) Audit() *audit.Logger { return d.auditLog }

// Data exposes the data session to the meta-tools (reconnect, ping).
func (d *Dispatcher) Data() *database.DataSession { return d.data }

// NotifyChanged signals that the tool surface changed; the MCP server layer
// re-syncs its advertised capabilities on this channel.
func (d *Dispatcher) NotifyChanged() {
	select {
	case d.updates <- struct{}{}:
	default:
	}
}

// Updates is the capability re-sync channel.
func (d *Dispatcher) Updates() <-chan struct{} { return d.updates }

// ListTools returns the full tool view for one persona: builtin meta-tools,
// persistent rows, and temporary tools, ordered by (group, name).
func (d *Dispatcher) ListTools(ctx context.Context, persona string) ([]api.ToolListing, error) {
	var out []api.ToolListing
	if d.builtins != nil {
		for _, meta := range d.builtins.Tools() {
			out = append(out, api.ToolListing{
				Name:        meta.Name,
				Description: meta.Description,
				InputSchema: meta.InputSchema(),
				Group:       api.BuiltinGroup,
			})
		}
	}
	records, err := d.registry.ListTools(ctx, persona)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		out = append(out, api.ToolListing{
			Name:        rec.Name,
			Description: rec.ListDescription(),
			InputSchema: rec.InputSchema,
			Group:       rec.Group,
		})
	}
	for _, tool := range d.temp.ListTools(persona) {
		out = append(out, api.ToolListing{
			Name:        tool.Record.Name,
			Description: api.TempPrefix + tool.Record.Description,
			InputSchema: tool.Record.InputSchema,
			Group:       tool.Record.Group,
			Temp:        true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ListResources returns persistent plus temporary resources for a persona.
func (d *Dispatcher) ListResources(ctx context.Context, persona string) ([]api.ResourceRecord, error) {
	records, err := d.registry.ListResources(ctx, persona)
	if err != nil {
		return nil, err
	}
	for _, res := range d.temp.ListResources(persona) {
		rec := res.Record
		rec.Description = api.TempPrefix + rec.Description
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Group != records[j].Group {
			return records[i].Group < records[j].Group
		}
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// ListPrompts returns the prompts for a persona.
func (d *Dispatcher) ListPrompts(ctx context.Context, persona string) ([]api.PromptRecord, error) {
	return d.registry.ListPrompts(ctx, persona)
}

// CallTool resolves and executes one call, recording the outcome. The
// persona comes from the context slot (WithPersona).
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	persona := PersonaFromContext(ctx)
	result, err := d.callTool(ctx, name, persona, args)
	if err != nil {
		d.auditLog.Failure(ctx, name, persona, args, err)
		d.notebook.RecordFailure(ctx, name, err)
		return nil, err
	}
	d.auditLog.Success(ctx, name, persona, args, api.Stringify(result))
	return result, nil
}

func (d *Dispatcher) callTool(ctx context.Context, name, persona string, args map[string]any) (any, error) {
	logging.Debug(subsystem, "Dispatching %s (persona %s)", name, persona)

	// Temporary registry shadows everything else.
	if tool, ok := d.temp.GetTool(name, persona); ok {
		return d.executeTemp(ctx, tool, args)
	}
	if d.builtins != nil && d.builtins.Has(name) {
		caps := d.capabilities(persona, name, "")
		return d.builtins.Execute(ctx, name, args, caps)
	}

	rec, err := d.registry.GetTool(ctx, name, persona)
	if err != nil {
		return nil, err
	}
	art, err := d.artifacts.GetVerified(ctx, rec.ArtifactDigest)
	if err != nil {
		return nil, err
	}

	switch art.Kind {
	case api.KindSelect:
		return d.sqlExec.Execute(ctx, art.Body, args, false)
	case api.KindScript:
		policy, err := d.loadPolicy(ctx)
		if err != nil {
			return nil, err
		}
		caps := d.capabilities(persona, name, "")
		return d.scriptExec.Execute(ctx, art.Body, args, caps, policy)
	case api.KindUI:
		if d.dashboards == nil {
			return nil, fmt.Errorf("dashboards are disabled")
		}
		return d.dashboards.URL(name)
	default:
		return nil, fmt.Errorf("tool %s references artifact of unexpected kind %s", name, art.Kind)
	}
}

// executeTemp runs a temporary tool. SQL bodies get the test-tool row cap;
// script bodies run like any other script.
func (d *Dispatcher) executeTemp(ctx context.Context, tool TempTool, args map[string]any) (any, error) {
	switch tool.Kind {
	case api.KindSelect:
		return d.sqlExec.Execute(ctx, tool.Body, args, true)
	case api.KindScript:
		policy, err := d.loadPolicy(ctx)
		if err != nil {
			return nil, err
		}
		caps := d.capabilities(tool.Record.Persona, tool.Record.Name, "")
		return d.scriptExec.Execute(ctx, tool.Body, args, caps, policy)
	default:
		return nil, fmt.Errorf("temporary tool %s has unexpected kind %s", tool.Record.Name, tool.Kind)
	}
}

// GetResource resolves a resource: static bodies return verbatim, dynamic
// ones execute their script artifact with the URI in the capability set.
func (d *Dispatcher) GetResource(ctx context.Context, uri string) (string, string, error) {
	persona := PersonaFromContext(ctx)

	if res, ok := d.temp.GetResource(uri, persona); ok {
		if !res.Record.Dynamic {
			return res.Record.StaticBody, res.Record.MIMEType, nil
		}
		return d.runDynamicResource(ctx, persona, uri, res.Body, res.Record.MIMEType)
	}

	rec, err := d.registry.GetResource(ctx, uri, persona)
	if err != nil {
		return "", "", err
	}
	if !rec.Dynamic {
		return rec.StaticBody, rec.MIMEType, nil
	}
	art, err := d.artifacts.GetVerified(ctx, rec.ArtifactDigest)
	if err != nil {
		return "", "", err
	}
	return d.runDynamicResource(ctx, persona, uri, art.Body, rec.MIMEType)
}

func (d *Dispatcher) runDynamicResource(ctx context.Context, persona, uri, body, mimeType string) (string, string, error) {
	policy, err := d.loadPolicy(ctx)
	if err != nil {
		return "", "", err
	}
	caps := d.capabilities(persona, uri, uri)
	result, err := d.scriptExec.Execute(ctx, body, map[string]any{}, caps, policy)
	if err != nil {
		return "", "", err
	}
	return api.Stringify(result), mimeType, nil
}

// promptPlaceholder matches {name} placeholders in prompt templates.
var promptPlaceholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// GetPrompt loads a prompt template and substitutes its placeholders from
// the argument bag. A placeholder without an argument is ErrMissingArgument.
func (d *Dispatcher) GetPrompt(ctx context.Context, name string, args map[string]any) (*api.PromptRecord, string, error) {
	persona := PersonaFromContext(ctx)
	rec, err := d.registry.GetPrompt(ctx, name, persona)
	if err != nil {
		return nil, "", err
	}

	var missing []string
	text := promptPlaceholder.ReplaceAllStringFunc(rec.Template, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := args[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		missing = append(missing, key)
		return match
	})
	if len(missing) > 0 {
		return nil, "", fmt.Errorf("prompt %s placeholders %s have no value: %w",
			name, strings.Join(missing, ", "), api.ErrMissingArgument)
	}
	return rec, text, nil
}

// capabilities assembles the execution context for one dispatched call. The
// sub-executor re-enters CallTool with the same persona; the meta query is
// always read-only and the data query follows the session's offline state.
func (d *Dispatcher) capabilities(persona, toolName, uri string) *api.Capabilities {
	caps := &api.Capabilities{
		Persona:  persona,
		ToolName: toolName,
		URI:      uri,
		Call: func(ctx context.Context, tool string, args map[string]any) (any, error) {
			return d.CallTool(WithPersona(ctx, persona), tool, args)
		},
		MetaQuery: func(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
			return executor.RunReadOnly(ctx, d.registry.DB(), query, params)
		},
		Log: func(format string, args ...any) {
			logging.Info("Tool:"+toolName, format, args...)
		},
	}
	if d.data != nil && d.data.Online() {
		caps.DataQuery = func(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
			db, err := d.data.Get()
			if err != nil {
				return nil, err
			}
			return executor.RunReadOnly(ctx, db, query, params)
		}
	}
	return caps
}

// loadPolicy compiles the current policy set from the registry on top of
// the built-in defaults.
func (d *Dispatcher) loadPolicy(ctx context.Context) (*validate.Policy, error) {
	rules, err := d.registry.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	return validate.PolicyFromRules(rules), nil
}

