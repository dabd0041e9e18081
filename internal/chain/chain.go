// Package chain composes tool calls into a validated sequential plan.
// Steps reference earlier results with ${id} or ${id.path.to.field};
// validation enforces topological order by list position before anything
// executes, which is strictly stronger than acyclicity.
package chain

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chimera/internal/api"
	"chimera/pkg/logging"
)

const subsystem = "Chain"

// Step is one planned tool call.
type Step struct {
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// StepOutcome records one executed step for the report.
type StepOutcome struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	Result   any    `json:"result"`
}

// Report is the outcome of a chain run. Steps lists every executed step in
// order; on failure, Failed carries the failing step and error and State
// holds the results accumulated so far.
type Report struct {
	ExecutionID string         `json:"execution_id"`
	Steps       []StepOutcome  `json:"steps"`
	State       map[string]any `json:"state"`
	Failed      *StepFailure   `json:"failed,omitempty"`
}

// StepFailure identifies the step that halted the chain.
type StepFailure struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	Error    string `json:"error"`
}

// Engine validates and executes chains through a sub-executor.
type Engine struct {
	call api.CallFunc
}

// NewEngine builds a chain engine over the dispatcher's call function.
func NewEngine(call api.CallFunc) *Engine {
	return &Engine{call: call}
}

// ParseSteps converts the raw steps argument of execute_workflow into
// typed steps, rejecting missing fields with their 1-based position.
func ParseSteps(raw []any) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %d is not an object", i+1)
		}
		id, _ := m["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("step %d has no id", i+1)
		}
		tool, _ := m["tool"].(string)
		if tool == "" {
			return nil, fmt.Errorf("step %d (%s) has no tool", i+1, id)
		}
		args := map[string]any{}
		if a, ok := m["args"].(map[string]any); ok {
			args = a
		}
		steps = append(steps, Step{ID: id, Tool: tool, Args: args})
	}
	return steps, nil
}

// Validate enforces the ordering rules: unique ids, and every reference
// naming a strictly earlier step.
func Validate(steps []Step) error {
	seen := make(map[string]bool, len(steps))
	for i, step := range steps {
		if seen[step.ID] {
			return fmt.Errorf("step %d reuses id %q: %w", i+1, step.ID, api.ErrDuplicateStepID)
		}
		for _, ref := range extractReferences(step.Args) {
			if !seen[ref.id] {
				return fmt.Errorf("step %d (%s) references %q which is not an earlier step: %w",
					i+1, step.ID, ref.raw, api.ErrForwardReference)
			}
		}
		seen[step.ID] = true
	}
	return nil
}

// Execute validates the chain and runs its steps in order, halting on the
// first failure. Both success and failure reports enumerate every executed
// step.
func (e *Engine) Execute(ctx context.Context, steps []Step) (*Report, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}

	report := &Report{
		ExecutionID: uuid.New().String(),
		Steps:       []StepOutcome{},
		State:       map[string]any{},
	}
	logging.Info(subsystem, "Executing chain %s with %d steps", report.ExecutionID, len(steps))

	for i, step := range steps {
		args, err := substituteArgs(step.Args, report.State)
		if err == nil {
			var result any
			result, err = e.call(ctx, step.Tool, args)
			if err == nil {
				report.State[step.ID] = result
				report.Steps = append(report.Steps, StepOutcome{
					Position: i + 1,
					ID:       step.ID,
					Tool:     step.Tool,
					Result:   result,
				})
				continue
			}
		}
		report.Failed = &StepFailure{
			Position: i + 1,
			ID:       step.ID,
			Tool:     step.Tool,
			Error:    err.Error(),
		}
		logging.Warn(subsystem, "Chain %s halted at step %d (%s): %v",
			report.ExecutionID, i+1, step.ID, err)
		return report, nil
	}
	return report, nil
}
