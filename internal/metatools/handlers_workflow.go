package metatools

import (
	"context"
	"fmt"

	"chimera/internal/api"
	"chimera/internal/chain"
)

// handleExecuteWorkflow runs an ordered chain of tool calls. The engine is
// built over the caller's capability set so the persona carries into every
// step and each step is audited individually.
func (p *Provider) handleExecuteWorkflow(ctx context.Context, args map[string]any, caps *api.Capabilities) (any, error) {
	raw, ok := args["steps"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("argument \"steps\" must be a non-empty array: %w", api.ErrMissingArgument)
	}
	steps, err := chain.ParseSteps(raw)
	if err != nil {
		return nil, err
	}

	report, err := chain.NewEngine(caps.Call).Execute(ctx, steps)
	if err != nil {
		return nil, err
	}
	return formatReport(report), nil
}
