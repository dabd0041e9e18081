package metatools

import (
	"context"
	"fmt"
	"regexp"

	"chimera/internal/api"
	"chimera/pkg/logging"
)

const subsystem = "MetaTools"

// toolNamePattern restricts names created at runtime.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Execute dispatches one builtin call. Validation errors return as errors
// so the dispatcher records a FAILURE entry, exactly like an ordinary tool.
func (p *Provider) Execute(ctx context.Context, name string, args map[string]any, caps *api.Capabilities) (any, error) {
	logging.Debug(subsystem, "Executing builtin %s", name)

	switch name {
	case "create_new_sql_tool":
		return p.handleCreateSQLTool(ctx, args)
	case "create_new_prompt":
		return p.handleCreatePrompt(ctx, args)
	case "create_new_resource":
		return p.handleCreateResource(ctx, args)
	case "create_temp_tool":
		return p.handleCreateTempTool(ctx, args)
	case "create_temp_resource":
		return p.handleCreateTempResource(ctx, args)
	case "register_macro":
		return p.handleRegisterMacro(ctx, args)
	case "create_dashboard":
		return p.handleCreateDashboard(ctx, args)
	case "system_update_manual":
		return p.handleUpdateManual(ctx, args)
	case "system_inspect_tool":
		return p.handleInspectTool(ctx, args)
	case "system_verify_tool":
		return p.handleVerifyTool(ctx, args, caps)
	case "get_last_error":
		return p.handleGetLastError(ctx, args)
	case "reconnect_db":
		return p.handleReconnectDB(ctx)
	case "test_db_connection":
		return p.handleTestDBConnection(ctx)
	case "execute_workflow":
		return p.handleExecuteWorkflow(ctx, args, caps)
	case "general_merge_tool":
		return p.handleGeneralMerge(ctx, args)
	case "execute_ddl_tool":
		return p.handleExecuteDDL(ctx, args)
	case "icon_save":
		return p.handleIconSave(ctx, args)
	case "icon_assign":
		return p.handleIconAssign(ctx, args)
	default:
		return nil, fmt.Errorf("unknown builtin tool %q: %w", name, api.ErrToolNotFound)
	}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("argument %q is required: %w", key, api.ErrMissingArgument)
	}
	return v, nil
}

// optStringArg extracts an optional string argument with a default.
func optStringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// mapArg extracts an optional object argument.
func mapArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func validToolName(name string) error {
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("name %q must match %s", name, toolNamePattern.String())
	}
	return nil
}
