package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/edna/internal/outbox"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

var (
	styleHeader = lipgloss.NewStyle().Bold(true)
	styleDim    = lipgloss.NewStyle().Faint(true)
	stylePass   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFail   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// renderSummary renders one row per suggestion, columns padded to the
// widest cell. Ordering follows the input slice.
func renderSummary(suggestions []outbox.Suggestion) string {
	headers := []string{"PAIR", "CLASSIFICATION", "CONF", "CHANNEL", "SEND AT", "MODE", "CHECKS"}
	rows := make([][]string, 0, len(suggestions))
	for _, s := range suggestions {
		checks := stylePass.Render("pass")
		if !s.SafetyChecks.ToneSupportive || !s.SafetyChecks.NoPrivateDataLeak || !s.SafetyChecks.NotDuplicateLast7d {
			checks = styleFail.Render("review")
		}
		rows = append(rows, []string{
			s.PairID,
			s.Classification,
			fmt.Sprintf("%.2f", s.Confidence),
			s.SuggestedChannel,
			s.SuggestedSendTimeLocal,
			s.RetrievalMode,
			checks,
		})
	}
	return renderTable(headers, rows)
}

// renderTable renders an aligned table with a header separator line.
// Visible widths are measured with lipgloss so styled cells align.
func renderTable(headers []string, rows [][]string) string {
	cols := len(headers)
	widths := make([]int, cols)
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < cols && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	const colGap = 2

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(styleHeader.Render(h))
		if i < cols-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(h)+colGap))
		}
	}
	b.WriteString("\n")
	for i, w := range widths {
		b.WriteString(styleDim.Render(strings.Repeat("─", w)))
		if i < cols-1 {
			b.WriteString(strings.Repeat(" ", colGap))
		}
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(cell)
			if i < cols-1 {
				pad := widths[i] - lipgloss.Width(cell)
				if pad < 0 {
					pad = 0
				}
				b.WriteString(strings.Repeat(" ", pad+colGap))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
