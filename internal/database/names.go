package database

import "fmt"

// Logical table names. Physical names resolve through Names so deployments
// can relocate tables with schema_prefix and table_name_overrides without
// touching any SQL in the engine.
const (
	TableArtifacts       = "artifacts"
	TableTools           = "tools"
	TableResources       = "resources"
	TablePrompts         = "prompts"
	TableMacros          = "macros"
	TableIcons           = "icons"
	TablePolicies        = "policies"
	TableAuditLog        = "audit_log"
	TableNotebook        = "notebook"
	TableNotebookHistory = "notebook_history"
)

var logicalTables = []string{
	TableArtifacts,
	TableTools,
	TableResources,
	TablePrompts,
	TableMacros,
	TableIcons,
	TablePolicies,
	TableAuditLog,
	TableNotebook,
	TableNotebookHistory,
}

// Names resolves logical table names to physical ones.
type Names struct {
	prefix    string
	overrides map[string]string
}

// NewNames builds a resolver. Overrides keyed by an unknown logical name
// are rejected so configuration typos surface at startup.
func NewNames(prefix string, overrides map[string]string) (*Names, error) {
	known := make(map[string]bool, len(logicalTables))
	for _, t := range logicalTables {
		known[t] = true
	}
	for logical := range overrides {
		if !known[logical] {
			return nil, fmt.Errorf("table name override for unknown table %q", logical)
		}
	}
	copied := make(map[string]string, len(overrides))
	for k, v := range overrides {
		copied[k] = v
	}
	return &Names{prefix: prefix, overrides: copied}, nil
}

// Resolve returns the physical name for a logical table:
// prefix + (override or logical).
func (n *Names) Resolve(logical string) string {
	name := logical
	if n.overrides != nil {
		if o, ok := n.overrides[logical]; ok && o != "" {
			name = o
		}
	}
	return n.prefix + name
}
