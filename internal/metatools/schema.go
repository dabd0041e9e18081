package metatools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"chimera/internal/validate"
)

// templateAction matches {{ ... }} template actions so the creation-time
// SQL pre-check can look at the statement skeleton. The full check runs on
// the rendered statement at every dispatch.
var templateAction = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// precheckSQLTemplate applies the read-only and single-statement rules to
// a template body as written, with template actions blanked out.
func precheckSQLTemplate(body string) error {
	return validate.ReadOnlySQL(templateAction.ReplaceAllString(body, " "))
}

// synthesizeSchema builds the JSON-Schema input object from a parameters
// map ({name: {type, description, required}}) and compiles it to catch
// malformed shapes at creation time rather than at call time.
func synthesizeSchema(parameters map[string]any) (json.RawMessage, error) {
	properties := map[string]any{}
	// Non-nil so an all-optional parameter set marshals as [], not null;
	// the metaschema rejects a null required list.
	required := []string{}

	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec, ok := parameters[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be an object with type/description/required", name)
		}
		prop := map[string]any{
			"type": optStringArg(spec, "type", "string"),
		}
		if desc, ok := spec["description"].(string); ok && desc != "" {
			prop["description"] = desc
		}
		properties[name] = prop
		if req, ok := spec["required"].(bool); ok && req {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("serializing input schema: %w", err)
	}
	if err := compileSchema(data); err != nil {
		return nil, err
	}
	return data, nil
}

// compileSchema runs the synthesized schema through the JSON Schema
// compiler.
func compileSchema(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing input schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline.json", doc); err != nil {
		return fmt.Errorf("registering input schema: %w", err)
	}
	if _, err := compiler.Compile("inline.json"); err != nil {
		return fmt.Errorf("input schema does not compile: %w", err)
	}
	return nil
}
