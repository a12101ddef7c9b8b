package scenario

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

// printResultsTable renders one row per scenario and one per step.
func printResultsTable(w io.Writer, result *types.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Scenario Results (%s)", types.FormatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Setup", "Duration", "Captured", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Captured", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, s := range result.Scenarios {
		scenarioErr := ""
		if len(s.Steps) == 0 {
			scenarioErr = keyErrorMessage(s.Error)
		}
		t.AppendRow(table.Row{
			"Scenario",
			s.Name,
			s.Setup,
			types.FormatDuration(s.Duration),
			"",
			getResultString(s.Status),
			scenarioErr,
		})

		for i, step := range s.Steps {
			prefix := "├──"
			if i == len(s.Steps)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Step",
				fmt.Sprintf("%s %s", prefix, step.Name),
				"",
				types.FormatDuration(step.Duration),
				strings.Join(types.Env(step.Captured).Environ(), " "),
				getResultString(step.Status),
				keyErrorMessage(step.Error),
			})
		}
		t.AppendSeparator()
	}

	switch result.Status {
	case types.StatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed, %d skipped", result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped),
		"",
		types.FormatDuration(result.Duration),
		"",
		getResultString(result.Status),
		"",
	})

	t.Render()
}

// getResultString returns a string representing the scenario result
func getResultString(status types.Status) string {
	switch status {
	case types.StatusPass:
		return "✓ pass"
	case types.StatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// keyErrorMessage returns the first line of err. For tool failures the
// first line of stderr is appended.
func keyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := firstLine(err.Error())
	var tf *runner.ToolFailureError
	if errors.As(err, &tf) {
		if detail := firstLine(strings.TrimSpace(tf.Stderr)); detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
	}
	return msg
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i != -1 {
		return s[:i]
	}
	return s
}
