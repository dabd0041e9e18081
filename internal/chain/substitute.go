package chain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"chimera/internal/api"
)

// referencePattern matches ${id} and ${id.path.to.field}.
var referencePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_-]*)((?:\.[a-zA-Z0-9_-]+)*)\}`)

type reference struct {
	raw  string
	id   string
	path []string
}

func parseReference(match []string) reference {
	ref := reference{raw: match[0], id: match[1]}
	if match[2] != "" {
		ref.path = strings.Split(strings.TrimPrefix(match[2], "."), ".")
	}
	return ref
}

// extractReferences walks an argument value and collects every reference
// found in its strings, maps, and slices.
func extractReferences(value any) []reference {
	var refs []reference
	switch v := value.(type) {
	case string:
		for _, m := range referencePattern.FindAllStringSubmatch(v, -1) {
			refs = append(refs, parseReference(m))
		}
	case map[string]any:
		for _, item := range v {
			refs = append(refs, extractReferences(item)...)
		}
	case []any:
		for _, item := range v {
			refs = append(refs, extractReferences(item)...)
		}
	}
	return refs
}

// substituteArgs resolves every reference in a step's arguments against the
// accumulated state. A string that is exactly one reference is replaced by
// the referenced value itself, preserving its type; embedded references
// render as text.
func substituteArgs(args map[string]any, state map[string]any) (map[string]any, error) {
	out, err := substituteValue(args, state)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func substituteValue(value any, state map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return substituteString(v, state)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			replaced, err := substituteValue(item, state)
			if err != nil {
				return nil, fmt.Errorf("in %q: %w", k, err)
			}
			out[k] = replaced
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			replaced, err := substituteValue(item, state)
			if err != nil {
				return nil, fmt.Errorf("at index %d: %w", i, err)
			}
			out[i] = replaced
		}
		return out, nil
	default:
		return value, nil
	}
}

func substituteString(s string, state map[string]any) (any, error) {
	// Whole-value rule: keep the referenced value's type.
	if m := referencePattern.FindStringSubmatch(s); m != nil && m[0] == s {
		return resolve(parseReference(m), state)
	}
	var resolveErr error
	replaced := referencePattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		m := referencePattern.FindStringSubmatch(match)
		value, err := resolve(parseReference(m), state)
		if err != nil {
			resolveErr = err
			return match
		}
		return api.Stringify(value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return replaced, nil
}

// resolve navigates a reference's path through the recorded result:
// maps by key, slices by integer index.
func resolve(ref reference, state map[string]any) (any, error) {
	current, ok := state[ref.id]
	if !ok {
		return nil, fmt.Errorf("reference %s: no result for step %q: %w",
			ref.raw, ref.id, api.ErrFieldNotFound)
	}
	for _, segment := range ref.path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("reference %s: field %q not found: %w",
					ref.raw, segment, api.ErrFieldNotFound)
			}
			current = next
		case []map[string]any:
			current, ok = indexRows(node, segment)
			if !ok {
				return nil, fmt.Errorf("reference %s: index %q out of range: %w",
					ref.raw, segment, api.ErrFieldNotFound)
			}
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("reference %s: index %q out of range: %w",
					ref.raw, segment, api.ErrFieldNotFound)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("reference %s: cannot navigate %q into %T: %w",
				ref.raw, segment, current, api.ErrFieldNotFound)
		}
	}
	return current, nil
}

func indexRows(rows []map[string]any, segment string) (any, bool) {
	idx, err := strconv.Atoi(segment)
	if err != nil || idx < 0 || idx >= len(rows) {
		return nil, false
	}
	return rows[idx], true
}
