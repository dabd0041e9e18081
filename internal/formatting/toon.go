package formatting

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// encodeTOON renders a row set as a header line `rows[N]{col1,col2}:`
// followed by one comma-separated line per row. Rows whose key sets differ
// from the first row fall back to a JSON line so nothing is silently
// dropped.
func encodeTOON(rows []map[string]any) string {
	if len(rows) == 0 {
		return "rows[0]{}:"
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	fmt.Fprintf(&b, "rows[%d]{%s}:\n", len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		if !sameColumns(row, columns) {
			data, _ := json.Marshal(row)
			b.WriteString("  ")
			b.Write(data)
			b.WriteByte('\n')
			continue
		}
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = toonCell(row[col])
		}
		b.WriteString("  ")
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func sameColumns(row map[string]any, columns []string) bool {
	if len(row) != len(columns) {
		return false
	}
	for _, col := range columns {
		if _, ok := row[col]; !ok {
			return false
		}
	}
	return true
}

// toonCell renders one value. Strings carrying a comma, quote, or newline
// are JSON-quoted so the line stays parseable.
func toonCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if strings.ContainsAny(val, ",\"\n") {
			data, _ := json.Marshal(val)
			return string(data)
		}
		return val
	case float64, float32, int, int64, int32, uint64, bool:
		return fmt.Sprintf("%v", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
