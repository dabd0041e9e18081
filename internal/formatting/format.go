// Package formatting renders tool results for the wire. Callers pick the
// format with the reserved `_format` argument: `json` (default) or `toon`,
// a compact tabular notation for row sets that costs far fewer tokens than
// the equivalent JSON array of objects.
package formatting

import (
	"encoding/json"
	"fmt"

	"chimera/internal/api"
)

// Format selects the result rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOON Format = "toon"
)

// ParseFormat validates a requested format string. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", string(FormatJSON):
		return FormatJSON, nil
	case string(FormatTOON):
		return FormatTOON, nil
	}
	return "", fmt.Errorf("unknown format %q (expected json or toon)", s)
}

// Render turns a tool result into wire text. TOON only changes the shape of
// row sets; everything else renders the same as JSON.
func Render(result any, format Format) string {
	if format == FormatTOON {
		if rows, ok := asRows(result); ok {
			return encodeTOON(rows)
		}
	}
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return api.Stringify(result)
	}
	return string(data)
}

// asRows recognizes the SQL executor's result shape.
func asRows(result any) ([]map[string]any, bool) {
	switch v := result.(type) {
	case []map[string]any:
		return v, true
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			rows = append(rows, m)
		}
		return rows, len(rows) > 0
	}
	return nil, false
}
