package formatting

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderRowsTable draws a row set as an ASCII table for the debug client.
// Non-row results should go through Render instead.
func RenderRowsTable(rows []map[string]any) string {
	if len(rows) == 0 {
		return "(no rows)"
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	t := table.NewWriter()
	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok {
				cells[i] = fmt.Sprintf("%v", v)
			} else {
				cells[i] = ""
			}
		}
		t.AppendRow(cells)
	}
	t.SetStyle(table.StyleLight)
	return t.Render()
}
