package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/linux-updater/internal/domain/update"
)

// stepColumnWidth fits the longest step name plus padding.
const stepColumnWidth = 18

// outcomeStyles colour each outcome label.
func outcomeStyles() map[update.Outcome]lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Width(10)

	return map[update.Outcome]lipgloss.Style{
		update.Changed:  base.Foreground(lipgloss.Color("2")),
		update.NoChange: base.Foreground(lipgloss.Color("4")),
		update.Failed:   base.Foreground(lipgloss.Color("1")),
		update.Skipped:  base.Foreground(lipgloss.Color("8")),
	}
}

// RenderSummary formats the report as a coloured table for the terminal.
func RenderSummary(report *update.Report) string {
	if report == nil || len(report.Results) == 0 {
		return ""
	}

	var (
		titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
		stepStyle  = lipgloss.NewStyle().Width(stepColumnWidth)
		noteStyle  = lipgloss.NewStyle().Faint(true)
		styles     = outcomeStyles()
		rows       = make([]string, 0, len(report.Results)+2)
	)

	rows = append(rows, titleStyle.Render("Update summary"))

	for _, result := range report.Results {
		row := stepStyle.Render(string(result.Step)) + styles[result.Outcome].Render(result.Outcome.String())
		if result.Note != "" {
			row += " " + noteStyle.Render(result.Note)
		}

		rows = append(rows, row)
	}

	totals := fmt.Sprintf("%d changed, %d unchanged, %d failed, %d skipped in %s",
		report.Count(update.Changed),
		report.Count(update.NoChange),
		report.Count(update.Failed),
		report.Count(update.Skipped),
		time.Since(report.StartedAt).Round(time.Second))
	rows = append(rows, noteStyle.Render(totals))

	return strings.Join(rows, "\n") + "\n"
}
