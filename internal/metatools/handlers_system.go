package metatools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"chimera/internal/api"
	"chimera/pkg/logging"
)

// manualKeys is the closed section set of a tool manual.
var manualKeys = map[string]bool{
	"usage_guide": true,
	"examples":    true,
	"pitfalls":    true,
	"error_codes": true,
}

// handleUpdateManual applies manual sections to a tool record. Incoming
// examples always arrive unverified with source AI_Generated; any manual
// change demotes the tool to UPDATED until re-verified.
func (p *Provider) handleUpdateManual(ctx context.Context, args map[string]any) (any, error) {
	toolName, err := stringArg(args, "tool_name")
	if err != nil {
		return nil, err
	}
	manualArg, ok := args["manual"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument \"manual\" must be an object: %w", api.ErrMissingArgument)
	}
	mode := optStringArg(args, "mode", "merge")
	if mode != "merge" && mode != "replace" {
		return nil, fmt.Errorf("mode must be merge or replace, got %q", mode)
	}
	for key := range manualArg {
		if !manualKeys[key] {
			return nil, fmt.Errorf("unknown manual section %q (allowed: usage_guide, examples, pitfalls, error_codes)", key)
		}
	}

	rec, err := p.engine.Registry().GetTool(ctx, toolName, api.DefaultPersona)
	if err != nil {
		return nil, err
	}

	incoming, err := parseManual(manualArg)
	if err != nil {
		return nil, err
	}

	if mode == "replace" || rec.Manual == nil {
		rec.Manual = incoming
	} else {
		if _, ok := manualArg["usage_guide"]; ok {
			rec.Manual.UsageGuide = incoming.UsageGuide
		}
		if _, ok := manualArg["pitfalls"]; ok {
			rec.Manual.Pitfalls = incoming.Pitfalls
		}
		if _, ok := manualArg["error_codes"]; ok {
			rec.Manual.ErrorCodes = incoming.ErrorCodes
		}
		rec.Manual.Examples = append(rec.Manual.Examples, incoming.Examples...)
	}
	rec.State = api.ToolStateUpdated
	if err := p.engine.Registry().UpsertTool(ctx, rec); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()
	return fmt.Sprintf("Manual for %q updated (%s); tool state is now %s.", toolName, mode, rec.State), nil
}

// parseManual converts the raw manual argument into the typed structure,
// forcing examples unverified.
func parseManual(raw map[string]any) (*api.Manual, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("manual is not serializable: %w", err)
	}
	var m api.Manual
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manual has a malformed section: %w", err)
	}
	for i := range m.Examples {
		m.Examples[i].Verified = false
		m.Examples[i].Source = "AI_Generated"
	}
	return &m, nil
}

// handleInspectTool reports a tool's full registration as JSON. Falls back
// to any persona when the default namespace has no row.
func (p *Provider) handleInspectTool(ctx context.Context, args map[string]any) (any, error) {
	toolName, err := stringArg(args, "tool_name")
	if err != nil {
		return nil, err
	}
	rec, err := p.engine.Registry().GetToolAnyPersona(ctx, toolName)
	if err != nil {
		return nil, err
	}

	report := map[string]any{
		"tool_name":       rec.Name,
		"description":     rec.Description,
		"persona":         rec.Persona,
		"group":           rec.Group,
		"input_schema":    rec.InputSchema,
		"is_auto_created": rec.AutoCreated,
		"state":           rec.State,
	}
	if rec.Manual != nil {
		report["manual"] = rec.Manual
	}
	return report, nil
}

// handleVerifyTool executes every manual example against the real tool and
// persists the per-example verdicts. All passing promotes the tool to
// VERIFIED.
func (p *Provider) handleVerifyTool(ctx context.Context, args map[string]any, caps *api.Capabilities) (any, error) {
	toolName, err := stringArg(args, "tool_name")
	if err != nil {
		return nil, err
	}
	rec, err := p.engine.Registry().GetTool(ctx, toolName, api.DefaultPersona)
	if err != nil {
		return nil, err
	}
	if rec.Manual == nil || len(rec.Manual.Examples) == 0 {
		return fmt.Sprintf("Tool %q has no manual examples to verify. Add some with system_update_manual first.", toolName), nil
	}

	passed := 0
	var lines []string
	for i := range rec.Manual.Examples {
		ex := &rec.Manual.Examples[i]
		result, callErr := caps.Call(ctx, toolName, ex.Input)
		switch {
		case callErr != nil:
			ex.Verified = false
			lines = append(lines, fmt.Sprintf("example %d: FAILED (%v)", i+1, callErr))
		case ex.Expected != "" && !strings.Contains(api.Stringify(result), ex.Expected):
			ex.Verified = false
			lines = append(lines, fmt.Sprintf("example %d: FAILED (result does not contain %q)", i+1, ex.Expected))
		default:
			ex.Verified = true
			ex.Source = "Verified"
			passed++
			lines = append(lines, fmt.Sprintf("example %d: PASSED", i+1))
		}
	}

	total := len(rec.Manual.Examples)
	if passed == total {
		rec.State = api.ToolStateVerified
	} else {
		rec.State = api.ToolStateUpdated
	}
	if err := p.engine.Registry().UpsertTool(ctx, rec); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()
	logging.Info(subsystem, "Verified %s: %d/%d examples passed", toolName, passed, total)

	return fmt.Sprintf("Verification of %q: %d/%d examples passed. State is now %s.\n%s",
		toolName, passed, total, rec.State, strings.Join(lines, "\n")), nil
}

// handleGetLastError formats the most recent FAILURE audit row, optionally
// scoped to one tool. The stored error trace is shown untruncated.
func (p *Provider) handleGetLastError(ctx context.Context, args map[string]any) (any, error) {
	toolName := optStringArg(args, "tool_name", "")
	entry, err := p.engine.Audit().LastFailure(ctx, toolName)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if toolName != "" {
			return fmt.Sprintf("No errors found for tool %q.", toolName), nil
		}
		return "No errors found in the execution log.", nil
	}
	return formatFailure(entry), nil
}

// handleIconSave stores an icon by name. SVG arrives as text, PNG as
// base64; both are kept as given with the matching MIME type.
func (p *Provider) handleIconSave(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if err := validToolName(name); err != nil {
		return nil, err
	}
	format, err := stringArg(args, "format")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}

	var mimeType string
	switch format {
	case "svg":
		mimeType = "image/svg+xml"
	case "png":
		mimeType = "image/png"
		if _, err := base64.StdEncoding.DecodeString(content); err != nil {
			return nil, fmt.Errorf("png content must be base64: %w", err)
		}
	default:
		return nil, fmt.Errorf("format must be svg or png, got %q", format)
	}

	rec := &api.IconRecord{Name: name, MIMEType: mimeType, Content: content}
	if err := p.engine.Registry().UpsertIcon(ctx, rec); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Icon %q saved (%s).", name, mimeType), nil
}

// handleIconAssign attaches a stored icon to a tool record.
func (p *Provider) handleIconAssign(ctx context.Context, args map[string]any) (any, error) {
	toolName, err := stringArg(args, "tool_name")
	if err != nil {
		return nil, err
	}
	iconName, err := stringArg(args, "icon_name")
	if err != nil {
		return nil, err
	}
	persona := optStringArg(args, "persona", api.DefaultPersona)

	if err := p.engine.Registry().AssignIcon(ctx, toolName, persona, iconName); err != nil {
		return nil, err
	}
	p.engine.NotifyChanged()
	return fmt.Sprintf("Icon %q assigned to tool %q.", iconName, toolName), nil
}
