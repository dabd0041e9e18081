package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPersona is the namespace used when a request carries no persona.
const DefaultPersona = "default"

// AutoBuildPrefix marks auto-created tools in listing descriptions.
const AutoBuildPrefix = "[AUTO-BUILD] "

// ArtifactKind tags the stored body of an artifact and selects its executor.
type ArtifactKind string

const (
	// KindScript is a program for the embedded script runtime.
	KindScript ArtifactKind = "script"
	// KindSelect is a read-only SQL template.
	KindSelect ArtifactKind = "select"
	// KindUI is dashboard source; dispatching it returns a URL, never executes.
	KindUI ArtifactKind = "ui"
)

// ParseArtifactKind validates a stored kind string. The set is closed.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch ArtifactKind(s) {
	case KindScript, KindSelect, KindUI:
		return ArtifactKind(s), nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// Artifact is a content-addressed blob. Digest is the lowercase hex SHA-256
// of Body and is the primary key.
type Artifact struct {
	Digest    string       `db:"digest"`
	Body      string       `db:"body"`
	Kind      ArtifactKind `db:"kind"`
	CreatedAt time.Time    `db:"created_at"`
}

// ToolState tracks the lifecycle of an auto-created tool.
type ToolState string

const (
	ToolStateCreated  ToolState = "CREATED"
	ToolStateVerified ToolState = "VERIFIED"
	ToolStateUpdated  ToolState = "UPDATED"
)

// ManualExample is a runnable usage example inside a tool manual. Examples
// written by meta-tools arrive unverified; system_verify_tool flips Verified
// after executing them.
type ManualExample struct {
	Input    map[string]any `json:"input"`
	Expected string         `json:"expected,omitempty"`
	Verified bool           `json:"verified"`
	Source   string         `json:"source,omitempty"`
}

// Manual is the structured documentation attached to a tool record.
// Only these four sections exist; system_update_manual rejects other keys.
type Manual struct {
	UsageGuide string          `json:"usage_guide,omitempty"`
	Examples   []ManualExample `json:"examples,omitempty"`
	Pitfalls   []string        `json:"pitfalls,omitempty"`
	ErrorCodes []string        `json:"error_codes,omitempty"`
}

// ToolRecord is a registry row describing a dispatchable tool.
// (Name, Persona) form the composite key.
type ToolRecord struct {
	Name           string          `db:"tool_name"`
	Persona        string          `db:"persona"`
	Description    string          `db:"description"`
	InputSchema    json.RawMessage `db:"input_schema"`
	ArtifactDigest string          `db:"artifact_digest"`
	Group          string          `db:"group_name"`
	AutoCreated    bool            `db:"auto_created"`
	State          ToolState       `db:"state"`
	Manual         *Manual         `db:"-"`
	IconName       string          `db:"icon_name"`
}

// ListDescription is the description shown by list_tools: auto-created
// tools carry a visible marker prefix.
func (t ToolRecord) ListDescription() string {
	if t.AutoCreated {
		return AutoBuildPrefix + t.Description
	}
	return t.Description
}

// ResourceRecord is a registry row describing a readable resource.
// (URI, Persona) form the composite key. Static resources return StaticBody
// verbatim; dynamic resources execute the referenced script artifact.
type ResourceRecord struct {
	URI            string `db:"uri"`
	Persona        string `db:"persona"`
	Name           string `db:"name"`
	Description    string `db:"description"`
	MIMEType       string `db:"mime_type"`
	Dynamic        bool   `db:"dynamic"`
	StaticBody     string `db:"static_body"`
	ArtifactDigest string `db:"artifact_digest"`
	Group          string `db:"group_name"`
}

// PromptArgument describes one placeholder of a prompt template.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptRecord is a registry row describing a prompt template with
// {name} placeholders. (Name, Persona) form the composite key.
type PromptRecord struct {
	Name        string           `db:"name"`
	Persona     string           `db:"persona"`
	Description string           `db:"description"`
	Template    string           `db:"template"`
	Arguments   []PromptArgument `db:"-"`
	Group       string           `db:"group_name"`
}

// MacroRecord is a reusable template block prepended to every SQL tool body.
type MacroRecord struct {
	Name        string `db:"name"`
	Description string `db:"description"`
	Template    string `db:"template"`
	Active      bool   `db:"active"`
}

// IconRecord stores an icon attachable to tools by name.
type IconRecord struct {
	Name     string `db:"icon_name"`
	MIMEType string `db:"mime_type"`
	Content  string `db:"content"`
}

// Policy rule vocabulary. Subject selects what the script validator is
// walking when the pattern applies; deny always wins over allow.
const (
	PolicyActionDeny  = "deny"
	PolicyActionAllow = "allow"

	PolicySubjectModule    = "module"
	PolicySubjectFunction  = "function"
	PolicySubjectAttribute = "attribute"
)

// PolicyRule is one registry-stored validation rule.
type PolicyRule struct {
	Action  string `db:"action"`
	Subject string `db:"subject"`
	Pattern string `db:"pattern"`
}

// Audit statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// AuditEntry is one execution log row. ErrorTrace is stored untruncated;
// ResultSummary is bounded.
type AuditEntry struct {
	ID            int64     `db:"id"`
	Timestamp     time.Time `db:"timestamp"`
	ToolName      string    `db:"tool_name"`
	Persona       string    `db:"persona"`
	Arguments     string    `db:"arguments"`
	Status        string    `db:"status"`
	ResultSummary string    `db:"result_summary"`
	ErrorTrace    string    `db:"error_trace"`
}

// NotebookEntry is one keyed note in the self-correction notebook.
// The notebook is append-only in spirit: updates append lines and write a
// history row instead of discarding the previous content.
type NotebookEntry struct {
	Key       string    `db:"key"`
	Content   string    `db:"content"`
	UpdatedAt time.Time `db:"updated_at"`
}
