package tracetree

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/tracetree/internal/tablewriter"
)

// WriteReport prints a terse human-readable summary of a run: status, the
// stats table, and any recorded warnings. This is terminal feedback for test
// authors; the full report renderer is an external consumer of the artifact.
func WriteReport(w io.Writer, res *RunResult) {
	if res.Failed() {
		fmt.Fprintf(w, "%s %s (%s: %s)\n",
			color.RedString("FAIL"), res.TestID, res.Err.Phase, res.Err.Message)
	} else {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("PASS"), res.TestID)
	}

	if res.Stats != nil {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Metric", "Value"})
		table.Append([]string{"nodes", strconv.Itoa(res.Stats.TotalNodes)})
		table.Append([]string{"max depth", strconv.Itoa(res.Stats.MaxDepth)})
		table.Append([]string{"agents", strconv.Itoa(res.Stats.AgentCount)})
		table.Append([]string{"tool calls", strconv.Itoa(res.Stats.ToolCallCount)})
		table.Append([]string{"tokens (billable)", strconv.Itoa(res.Stats.TotalBillable)})
		table.Append([]string{"tokens (all)", strconv.Itoa(res.Stats.TotalAll)})
		table.Render()
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "%s\n", color.YellowString("%d warning(s):", len(res.Warnings)))
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}

	if res.LogReport != nil && res.LogReport.Override != nil {
		fmt.Fprintf(w, "%s %s\n",
			color.YellowString("log policy overridden:"),
			res.LogReport.Override.Justification)
	}
}
