package metatools

import "chimera/internal/api"

// handlerNames is the closed set of builtin tool names, used for O(1)
// resolution by the dispatcher.
var handlerNames = map[string]bool{
	"create_new_sql_tool":   true,
	"create_new_prompt":     true,
	"create_new_resource":   true,
	"create_temp_tool":      true,
	"create_temp_resource":  true,
	"register_macro":        true,
	"create_dashboard":      true,
	"system_update_manual":  true,
	"system_inspect_tool":   true,
	"system_verify_tool":    true,
	"get_last_error":        true,
	"reconnect_db":          true,
	"test_db_connection":    true,
	"execute_workflow":      true,
	"general_merge_tool":    true,
	"execute_ddl_tool":      true,
	"icon_save":             true,
	"icon_assign":           true,
}

// Tools advertises the builtin set for discovery. Ordering here is
// cosmetic; listings re-sort by (group, name).
func (p *Provider) Tools() []api.ToolMetadata {
	return []api.ToolMetadata{
		{
			Name:        "create_new_sql_tool",
			Description: "Create a persistent SQL tool from a SELECT template with named :param placeholders",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: true, Description: "Unique tool name"},
				{Name: "description", Type: "string", Required: true, Description: "What the tool does"},
				{Name: "sql_query", Type: "string", Required: true, Description: "SELECT template; values via :name placeholders"},
				{Name: "parameters", Type: "object", Required: false, Description: "Map of parameter name to {type, description, required}"},
			},
		},
		{
			Name:        "create_new_prompt",
			Description: "Create a persistent prompt template with {name} placeholders",
			Args: []api.ArgMetadata{
				{Name: "name", Type: "string", Required: true, Description: "Unique prompt name"},
				{Name: "description", Type: "string", Required: true, Description: "What the prompt is for"},
				{Name: "template", Type: "string", Required: true, Description: "Prompt text with {name} placeholders"},
				{Name: "arguments", Type: "array", Required: false, Description: "List of {name, description, required}"},
				{Name: "persona", Type: "string", Required: false, Description: "Persona namespace (default: default)"},
			},
		},
		{
			Name:        "create_new_resource",
			Description: "Create a persistent resource; dynamic content is a script executed at read time",
			Args: []api.ArgMetadata{
				{Name: "uri", Type: "string", Required: true, Description: "Resource URI"},
				{Name: "name", Type: "string", Required: true, Description: "Display name"},
				{Name: "description", Type: "string", Required: false, Description: "What the resource contains"},
				{Name: "content", Type: "string", Required: true, Description: "Resource body or script source"},
				{Name: "is_dynamic", Type: "boolean", Required: false, Description: "Execute content as a script on every read"},
				{Name: "mime_type", Type: "string", Required: false, Description: "MIME type (default text/plain)"},
				{Name: "persona", Type: "string", Required: false, Description: "Persona namespace (default: default)"},
			},
		},
		{
			Name:        "create_temp_tool",
			Description: "Create an in-memory test SQL tool capped at 3 result rows; vanishes on restart",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: true, Description: "Unique tool name"},
				{Name: "sql_query", Type: "string", Required: true, Description: "SELECT template without a LIMIT clause"},
				{Name: "description", Type: "string", Required: false, Description: "What the tool does"},
				{Name: "parameters", Type: "object", Required: false, Description: "Map of parameter name to {type, description, required}"},
			},
		},
		{
			Name:        "create_temp_resource",
			Description: "Create an in-memory resource; vanishes on restart",
			Args: []api.ArgMetadata{
				{Name: "uri", Type: "string", Required: true, Description: "Resource URI"},
				{Name: "name", Type: "string", Required: true, Description: "Display name"},
				{Name: "description", Type: "string", Required: false, Description: "What the resource contains"},
				{Name: "content", Type: "string", Required: true, Description: "Resource body or script source"},
				{Name: "is_dynamic", Type: "boolean", Required: false, Description: "Execute content as a script on every read"},
				{Name: "mime_type", Type: "string", Required: false, Description: "MIME type (default text/plain)"},
			},
		},
		{
			Name:        "register_macro",
			Description: "Register a reusable SQL template macro, prepended to every SQL render",
			Args: []api.ArgMetadata{
				{Name: "name", Type: "string", Required: true, Description: "Macro name"},
				{Name: "description", Type: "string", Required: false, Description: "What the macro expands to"},
				{Name: "template", Type: "string", Required: true, Description: `Body starting with {{define "name"}} and ending with {{end}}`},
			},
		},
		{
			Name:        "create_dashboard",
			Description: "Store a dashboard source and register a tool that returns its runner URL",
			Args: []api.ArgMetadata{
				{Name: "dashboard_name", Type: "string", Required: true, Description: "Name (letters, digits, _ and - only)"},
				{Name: "source", Type: "string", Required: true, Description: "Dashboard source body"},
			},
		},
		{
			Name:        "system_update_manual",
			Description: "Update a tool's structured manual (usage_guide, examples, pitfalls, error_codes)",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: true, Description: "Tool to document"},
				{Name: "manual", Type: "object", Required: true, Description: "Manual sections to apply"},
				{Name: "mode", Type: "string", Required: false, Description: "merge (default) or replace"},
			},
		},
		{
			Name:        "system_inspect_tool",
			Description: "Report a tool's registration, schema, lifecycle state, and manual",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: true, Description: "Tool to inspect"},
			},
		},
		{
			Name:        "system_verify_tool",
			Description: "Execute every manual example of a tool and mark each verified or failed",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: true, Description: "Tool to verify"},
			},
		},
		{
			Name:        "get_last_error",
			Description: "Show the most recent failed execution with its arguments and full error trace",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: false, Description: "Restrict to one tool"},
			},
		},
		{
			Name:        "reconnect_db",
			Description: "Re-open the data database connection; clears offline mode on success",
			Args:        []api.ArgMetadata{},
		},
		{
			Name:        "test_db_connection",
			Description: "Ping the metadata and data databases and report their status",
			Args:        []api.ArgMetadata{},
		},
		{
			Name:        "execute_workflow",
			Description: "Run an ordered chain of tool calls with ${step.field} substitution between steps",
			Args: []api.ArgMetadata{
				{Name: "steps", Type: "array", Required: true, Description: "List of {id, tool, args} steps"},
			},
		},
		{
			Name:        "general_merge_tool",
			Description: "Upsert one row in a data-store table using the dialect's native merge form",
			Args: []api.ArgMetadata{
				{Name: "table_name", Type: "string", Required: true, Description: "Target table"},
				{Name: "key_column", Type: "string", Required: true, Description: "Conflict key column"},
				{Name: "key_value", Type: "string", Required: true, Description: "Key value"},
				{Name: "data", Type: "object", Required: true, Description: "Column to value map"},
			},
		},
		{
			Name:        "execute_ddl_tool",
			Description: "Run a single CREATE/ALTER/DROP/TRUNCATE statement on the data store (requires confirmation YES)",
			Args: []api.ArgMetadata{
				{Name: "ddl_statement", Type: "string", Required: true, Description: "The DDL statement"},
				{Name: "confirmation", Type: "string", Required: true, Description: "Must be exactly YES"},
			},
		},
		{
			Name:        "icon_save",
			Description: "Store an icon (SVG text or base64 PNG) by name",
			Args: []api.ArgMetadata{
				{Name: "name", Type: "string", Required: true, Description: "Icon name"},
				{Name: "format", Type: "string", Required: true, Description: "svg or png"},
				{Name: "content", Type: "string", Required: true, Description: "SVG text or base64 PNG bytes"},
			},
		},
		{
			Name:        "icon_assign",
			Description: "Attach a stored icon to a tool",
			Args: []api.ArgMetadata{
				{Name: "tool_name", Type: "string", Required: true, Description: "Tool to decorate"},
				{Name: "icon_name", Type: "string", Required: true, Description: "Stored icon name"},
				{Name: "persona", Type: "string", Required: false, Description: "Persona namespace (default: default)"},
			},
		},
	}
}
