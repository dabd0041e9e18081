package api

import (
	"encoding/json"
	"fmt"
)

// Stringify renders a tool result as text: strings pass through, composite
// values become JSON, anything unserializable falls back to fmt. Audit
// summaries, dynamic resource bodies, and chain substitutions all use this
// rendering.
func Stringify(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
