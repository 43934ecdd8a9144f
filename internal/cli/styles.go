// Package cli provides styled terminal output and interactive prompts for
// the hours command.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#5FA8D3")
	green  = lipgloss.Color("#5CB85C")
	amber  = lipgloss.Color("#F0AD4E")
	red    = lipgloss.Color("#D9534F")
	grey   = lipgloss.Color("#7A7A7A")

	// TitleStyle renders box titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	// SuccessStyle renders posted entries and approvals.
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	// WarningStyle renders review-bound meetings and soft failures.
	WarningStyle = lipgloss.NewStyle().Foreground(amber)
	// ErrorStyle renders failures.
	ErrorStyle = lipgloss.NewStyle().Foreground(red)
	// InfoStyle renders neutral notices.
	InfoStyle = lipgloss.NewStyle().Foreground(accent)
	// SubtleStyle renders secondary detail such as match reasons.
	SubtleStyle = lipgloss.NewStyle().Foreground(grey)
	// BoldStyle renders emphasis.
	BoldStyle = lipgloss.NewStyle().Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(grey).
			Padding(1, 2)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
)

const (
	iconOK   = "✓"
	iconFail = "✗"
	iconWarn = "!"
	iconInfo = "·"
)

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(iconOK + " " + message)
}

// FormatError prefixes message with a cross.
func FormatError(message string) string {
	return ErrorStyle.Render(iconFail + " " + message)
}

// FormatWarning prefixes message with a warning mark.
func FormatWarning(message string) string {
	return WarningStyle.Render(iconWarn + " " + message)
}

// FormatInfo prefixes message with a dot.
func FormatInfo(message string) string {
	return InfoStyle.Render(iconInfo + " " + message)
}

// FormatPrompt renders the choices line shown before reading an answer.
func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " > ")
}

// FormatConfidence renders a 0..1 confidence as a colored percentage.
func FormatConfidence(c float64) string {
	text := fmt.Sprintf("%3.0f%%", c*100)
	switch {
	case c >= 0.8:
		return SuccessStyle.Render(text)
	case c >= 0.5:
		return WarningStyle.Render(text)
	default:
		return ErrorStyle.Render(text)
	}
}

// RenderBox draws content in a rounded box under a bold title.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}

// RenderTable lays rows out in padded columns under a styled header.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	pad := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return strings.TrimRight(strings.Join(parts, ""), " ")
	}

	lines := []string{pad(headers, headerStyle)}
	for _, row := range rows {
		lines = append(lines, pad(row, lipgloss.NewStyle()))
	}
	return strings.Join(lines, "\n")
}
