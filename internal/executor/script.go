package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"chimera/internal/api"
	"chimera/internal/validate"
)

// Default execution budgets. A stored script is trusted but not assumed
// correct; runaway loops are cut off rather than wedging a request handler.
const (
	defaultScriptTimeout = 30 * time.Second
	defaultMaxSteps      = 10_000_000
)

// Script executes script-kind artifacts in the embedded Starlark runtime.
type Script struct {
	Timeout  time.Duration
	MaxSteps uint64
}

// NewScript returns an executor with the default budgets.
func NewScript() *Script {
	return &Script{Timeout: defaultScriptTimeout, MaxSteps: defaultMaxSteps}
}

// toolValue is the value produced by the Tool(...) constructor. Evaluation
// must leave exactly one of these in the program's globals.
type toolValue struct {
	run   starlark.Callable
	attrs *starlark.Dict
}

func (t *toolValue) String() string        { return "Tool(...)" }
func (t *toolValue) Type() string          { return "Tool" }
func (t *toolValue) Freeze()               { t.attrs.Freeze() }
func (t *toolValue) Truth() starlark.Bool  { return starlark.True }
func (t *toolValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Tool") }

// newToolBuiltin is the Tool constructor exposed to scripts. It requires a
// callable run keyword; any other keywords are kept as descriptive
// attributes.
func newToolBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("Tool", func(thread *starlark.Thread, b *starlark.Builtin,
		args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("Tool: only keyword arguments are accepted")
		}
		tv := &toolValue{attrs: starlark.NewDict(len(kwargs))}
		for _, kw := range kwargs {
			name := string(kw[0].(starlark.String))
			if name == "run" {
				fn, ok := kw[1].(starlark.Callable)
				if !ok {
					return nil, fmt.Errorf("Tool: run must be callable, got %s", kw[1].Type())
				}
				tv.run = fn
				continue
			}
			_ = tv.attrs.SetKey(kw[0], kw[1])
		}
		if tv.run == nil {
			return nil, fmt.Errorf("Tool: a run function is required")
		}
		return tv, nil
	})
}

// Execute validates a script body against the policy, evaluates it with the
// capability context, locates the single Tool binding, and invokes its run
// function with the call arguments.
func (e *Script) Execute(ctx context.Context, body string, arguments map[string]any,
	caps *api.Capabilities, policy *validate.Policy) (any, error) {

	if err := validate.Script(body, policy); err != nil {
		return nil, err
	}

	thread := &starlark.Thread{
		Name: caps.ToolName,
		Print: func(_ *starlark.Thread, msg string) {
			if caps.Log != nil {
				caps.Log("%s", msg)
			}
		},
	}
	maxSteps := e.MaxSteps
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}
	thread.SetMaxExecutionSteps(maxSteps)

	timeout := e.Timeout
	if timeout == 0 {
		timeout = defaultScriptTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			thread.Cancel(runCtx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"Tool": newToolBuiltin(),
		"ctx":  capabilityModule(runCtx, caps),
	}

	globals, err := starlark.ExecFile(thread, caps.ToolName+".star", body, predeclared)
	if err != nil {
		return nil, scriptError("evaluating script", err)
	}

	tool, err := singleTool(globals)
	if err != nil {
		return nil, err
	}

	result, err := starlark.Call(thread, tool.run, starlark.Tuple{argsToDict(arguments)}, nil)
	if err != nil {
		return nil, scriptError("running tool", err)
	}
	return starlarkToGo(result), nil
}

// singleTool enforces the one-tool-per-script contract.
func singleTool(globals starlark.StringDict) (*toolValue, error) {
	var found *toolValue
	for _, v := range globals {
		tv, ok := v.(*toolValue)
		if !ok {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("script defines more than one Tool binding: %w", api.ErrAmbiguousToolClass)
		}
		found = tv
	}
	if found == nil {
		return nil, fmt.Errorf("script defines no Tool binding: %w", api.ErrNoToolClass)
	}
	return found, nil
}

// scriptError preserves the Starlark backtrace, which is what the audit
// trail stores for failed calls.
func scriptError(what string, err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Errorf("%s: %s", what, evalErr.Backtrace())
	}
	return fmt.Errorf("%s: %w", what, err)
}

// capabilityModule exposes the dispatched capability set to the script as
// the ctx module: identity strings plus log, call, meta_query, and
// data_query functions.
func capabilityModule(ctx context.Context, caps *api.Capabilities) *starlarkstruct.Module {
	members := starlark.StringDict{
		"persona":   starlark.String(caps.Persona),
		"tool_name": starlark.String(caps.ToolName),
		"uri":       starlark.String(caps.URI),
		"log":       logBuiltin(caps),
		"call":      callBuiltin(ctx, caps),
		"meta_query": queryBuiltin(ctx, "meta_query", caps.MetaQuery,
			"metadata store is not available"),
		"data_query": queryBuiltin(ctx, "data_query", caps.DataQuery,
			"data store is offline"),
	}
	return &starlarkstruct.Module{Name: "ctx", Members: members}
}

func logBuiltin(caps *api.Capabilities) *starlark.Builtin {
	return starlark.NewBuiltin("log", func(_ *starlark.Thread, _ *starlark.Builtin,
		args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var msg string
		if err := starlark.UnpackPositionalArgs("log", args, kwargs, 1, &msg); err != nil {
			return nil, err
		}
		if caps.Log != nil {
			caps.Log("%s", msg)
		}
		return starlark.None, nil
	})
}

func callBuiltin(ctx context.Context, caps *api.Capabilities) *starlark.Builtin {
	return starlark.NewBuiltin("call", func(_ *starlark.Thread, _ *starlark.Builtin,
		args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var tool string
		var callArgs *starlark.Dict
		if err := starlark.UnpackArgs("call", args, kwargs, "tool", &tool, "args?", &callArgs); err != nil {
			return nil, err
		}
		if caps.Call == nil {
			return nil, fmt.Errorf("call: sub-executor is not available")
		}
		goArgs := map[string]any{}
		if callArgs != nil {
			goArgs = dictToMap(callArgs)
		}
		result, err := caps.Call(ctx, tool, goArgs)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", tool, err)
		}
		return goToStarlark(result), nil
	})
}

func queryBuiltin(ctx context.Context, name string, query api.QueryFunc, offlineMsg string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin,
		args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var sql string
		var params *starlark.Dict
		if err := starlark.UnpackArgs(name, args, kwargs, "sql", &sql, "params?", &params); err != nil {
			return nil, err
		}
		if query == nil {
			return nil, fmt.Errorf("%s: %s: %w", name, offlineMsg, api.ErrDataBackendUnavailable)
		}
		goParams := map[string]any{}
		if params != nil {
			goParams = dictToMap(params)
		}
		rows, err := query(ctx, sql, goParams)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return goToStarlark(rows), nil
	})
}
