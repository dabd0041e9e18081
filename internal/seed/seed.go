// Package seed installs the sample catalog on first start so a fresh
// engine has something to call: two script tools, a templated SQL query,
// a static resource, and a prompt.
package seed

import (
	"context"
	"encoding/json"

	"chimera/internal/api"
	"chimera/internal/artifact"
	"chimera/internal/registry"
	"chimera/pkg/logging"
)

const subsystem = "Seed"

const greetScript = `greeter = Tool(
    run = lambda args: "Hello, " + args.get("name", "world") + "!",
    description = "Greets by name",
)
`

const addScript = `def _run(args):
    ctx.log("adding %s and %s" % (args.get("a"), args.get("b")))
    return args["a"] + args["b"]

adder = Tool(run = _run, description = "Adds two numbers")
`

const salesQuery = `SELECT region, SUM(amount) AS total
FROM sales
WHERE sold_at >= :since
{{if .arguments.region}}  AND region = :region
{{end}}GROUP BY region
ORDER BY total DESC`

const memoBody = `Quarterly operations memo.

SQL tools query the data database; script tools run in the embedded
runtime. Use create_temp_tool to experiment without persisting anything.`

const reviewPrompt = `Review the following {artifact} with attention to {focus}.
List concrete findings, most severe first.`

// IsNeeded reports whether the registry has no tools yet.
func IsNeeded(ctx context.Context, reg *registry.Store) (bool, error) {
	n, err := reg.CountTools(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Run installs the sample catalog. Safe to call repeatedly; every write is
// an upsert.
func Run(ctx context.Context, reg *registry.Store, artifacts *artifact.Store) error {
	type toolSeed struct {
		name        string
		description string
		group       string
		kind        api.ArtifactKind
		body        string
		schema      json.RawMessage
	}
	tools := []toolSeed{
		{
			name:        "utility_greet",
			description: "Greet someone by name",
			group:       "utility",
			kind:        api.KindScript,
			body:        greetScript,
			schema:      schema(map[string]string{"name": "Who to greet"}, nil),
		},
		{
			name:        "utility_add",
			description: "Add two numbers",
			group:       "utility",
			kind:        api.KindScript,
			body:        addScript,
			schema: json.RawMessage(`{"type":"object","properties":{` +
				`"a":{"type":"number","description":"First addend"},` +
				`"b":{"type":"number","description":"Second addend"}},` +
				`"required":["a","b"]}`),
		},
		{
			name:        "sales_by_region",
			description: "Sum sales by region since a date, optionally for one region",
			group:       "sales",
			kind:        api.KindSelect,
			body:        salesQuery,
			schema:      schema(map[string]string{"since": "Earliest sale date (inclusive)", "region": "Restrict to one region"}, []string{"since"}),
		},
	}

	for _, t := range tools {
		digest, err := artifacts.Put(ctx, t.body, t.kind)
		if err != nil {
			return err
		}
		rec := &api.ToolRecord{
			Name:           t.name,
			Persona:        api.DefaultPersona,
			Description:    t.description,
			InputSchema:    t.schema,
			ArtifactDigest: digest,
			Group:          t.group,
			State:          api.ToolStateCreated,
		}
		if err := reg.UpsertTool(ctx, rec); err != nil {
			return err
		}
	}

	if err := reg.UpsertResource(ctx, &api.ResourceRecord{
		URI:         "chimera://memo/operations",
		Persona:     api.DefaultPersona,
		Name:        "operations_memo",
		Description: "Operations memo describing the engine's tool surface",
		MIMEType:    "text/plain",
		StaticBody:  memoBody,
		Group:       "utility",
	}); err != nil {
		return err
	}

	if err := reg.UpsertPrompt(ctx, &api.PromptRecord{
		Name:        "utility_review",
		Persona:     api.DefaultPersona,
		Description: "Structured review of an artifact",
		Template:    reviewPrompt,
		Arguments: []api.PromptArgument{
			{Name: "artifact", Description: "What is being reviewed", Required: true},
			{Name: "focus", Description: "What to pay attention to", Required: true},
		},
		Group: "utility",
	}); err != nil {
		return err
	}

	logging.Info(subsystem, "Seeded sample catalog: %d tools, 1 resource, 1 prompt", len(tools))
	return nil
}

func schema(props map[string]string, required []string) json.RawMessage {
	properties := map[string]any{}
	for name, desc := range props {
		properties[name] = map[string]any{"type": "string", "description": desc}
	}
	if required == nil {
		required = []string{}
	}
	data, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return data
}
