package api

import "errors"

// Sentinel error kinds observable by clients. Engine packages wrap these
// with fmt.Errorf("...: %w", ...) to add context; callers classify with
// errors.Is.
var (
	// ErrToolNotFound: no temporary or persistent tool matches (name, persona).
	ErrToolNotFound = errors.New("tool not found")

	// ErrResourceNotFound: no temporary or persistent resource matches (uri, persona).
	ErrResourceNotFound = errors.New("resource not found")

	// ErrPromptNotFound: no prompt matches (name, persona).
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrArtifactMissing: a registry row references a digest with no stored blob.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrArtifactCorrupt: the stored blob no longer hashes to its digest.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrInvalidStructure: a script or template violates the structural discipline.
	ErrInvalidStructure = errors.New("invalid structure")

	// ErrNotReadOnly: SQL whose first token is not a read, or that contains a
	// forbidden keyword.
	ErrNotReadOnly = errors.New("not read-only")

	// ErrMultipleStatements: more than one SQL statement in a single body.
	ErrMultipleStatements = errors.New("multiple statements")

	// ErrPolicyViolation: a script touches a denied module, function, or attribute.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrDataBackendUnavailable: the data store is offline or was never configured.
	ErrDataBackendUnavailable = errors.New("data backend unavailable")

	// ErrMissingArgument: a prompt placeholder or required input has no value.
	ErrMissingArgument = errors.New("missing argument")

	// ErrDuplicateStepID: two chain steps share an id.
	ErrDuplicateStepID = errors.New("duplicate step id")

	// ErrForwardReference: a chain step references a step that is not strictly earlier.
	ErrForwardReference = errors.New("forward reference")

	// ErrFieldNotFound: a chain reference path does not resolve inside a result.
	ErrFieldNotFound = errors.New("field not found")

	// ErrNoToolClass: a script defined no tool.
	ErrNoToolClass = errors.New("no tool class")

	// ErrAmbiguousToolClass: a script defined more than one tool.
	ErrAmbiguousToolClass = errors.New("ambiguous tool class")
)
