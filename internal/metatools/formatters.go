package metatools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chimera/internal/api"
	"chimera/internal/chain"
	pkgstrings "chimera/pkg/strings"
)

// stepResultMaxLen bounds each step result in the workflow report so a
// chain over wide tables stays readable.
const stepResultMaxLen = 400

// formatReport renders a chain report as text. Failed chains still list
// every step that ran before the halt.
func formatReport(report *chain.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s\n", report.ExecutionID)

	for _, step := range report.Steps {
		result := pkgstrings.TruncateWithMarker(
			api.Stringify(step.Result), stepResultMaxLen, "... (truncated)")
		fmt.Fprintf(&b, "  step %d [%s] %s: %s\n", step.Position, step.ID, step.Tool, result)
	}

	if report.Failed != nil {
		fmt.Fprintf(&b, "HALTED at step %d [%s] %s: %s\n",
			report.Failed.Position, report.Failed.ID, report.Failed.Tool, report.Failed.Error)
		fmt.Fprintf(&b, "%d of %d steps completed before the failure.",
			len(report.Steps), report.Failed.Position)
	} else {
		fmt.Fprintf(&b, "Completed: %d steps.\n", len(report.Steps))
		b.WriteString("Final State:\n")
		state, err := json.MarshalIndent(report.State, "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "  (state not serializable: %v)", err)
		} else {
			b.WriteString(indent(string(state), "  "))
		}
	}
	return b.String()
}

// formatFailure renders one FAILURE audit row with its full error trace.
func formatFailure(entry *api.AuditEntry) string {
	var b strings.Builder
	b.WriteString("Last recorded error\n")
	fmt.Fprintf(&b, "  time:    %s\n", entry.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  tool:    %s\n", entry.ToolName)
	fmt.Fprintf(&b, "  persona: %s\n", entry.Persona)
	fmt.Fprintf(&b, "  input:   %s\n", entry.Arguments)
	fmt.Fprintf(&b, "  error:\n%s", indent(entry.ErrorTrace, "    "))
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
