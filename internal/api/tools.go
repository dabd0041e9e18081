package api

import "encoding/json"

// TempPrefix marks in-memory temporary tools in listing descriptions.
const TempPrefix = "[TEMP] "

// BuiltinGroup is the listing group of the native meta-tools.
const BuiltinGroup = "system"

// ArgMetadata describes one argument of a native (builtin) tool.
type ArgMetadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// ToolMetadata describes a native tool for discovery. Builtin meta-tools
// advertise themselves with this shape; registry-backed tools carry a full
// JSON input schema instead.
type ToolMetadata struct {
	Name        string
	Description string
	Args        []ArgMetadata
}

// InputSchema synthesizes the JSON-Schema object for the declared args.
func (t ToolMetadata) InputSchema() json.RawMessage {
	properties := map[string]any{}
	required := []string{}
	for _, arg := range t.Args {
		typ := arg.Type
		if typ == "" {
			typ = "string"
		}
		properties[arg.Name] = map[string]any{
			"type":        typ,
			"description": arg.Description,
		}
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	data, _ := json.Marshal(schema)
	return data
}

// ToolListing is one row of a list_tools view: persistent, builtin, and
// temporary tools share this shape. Ordering is by (Group, Name).
type ToolListing struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Group       string
	Temp        bool
}
