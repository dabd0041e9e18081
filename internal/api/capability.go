package api

import "context"

// CallFunc re-enters the dispatcher with the caller's persona. It is the
// sole mechanism by which one tool invokes another; executors receive it as
// an explicit parameter, never through ambient state.
type CallFunc func(ctx context.Context, tool string, args map[string]any) (any, error)

// QueryFunc runs a read-only SQL query with named parameters and returns
// rows as maps in column order. Implementations validate the statement
// before execution.
type QueryFunc func(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

// LogFunc emits a structured diagnostic line attributed to the running tool.
type LogFunc func(format string, args ...any)

// Capabilities is the execution context injected into a dispatched tool.
// DataQuery is nil while the data backend is offline; scripts that use it
// then fail with ErrDataBackendUnavailable.
type Capabilities struct {
	Persona  string
	ToolName string

	// URI is set only when a dynamic resource is being materialized.
	URI string

	Call      CallFunc
	MetaQuery QueryFunc
	DataQuery QueryFunc
	Log       LogFunc
}
