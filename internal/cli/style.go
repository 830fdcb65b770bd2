package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tenderwise/tenderflow/internal/models"
)

// Theme holds the color scheme for CLI output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Warn    lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// styleTaskStatus renders a task status with its theme color.
func (t Theme) styleTaskStatus(status models.TaskStatus) string {
	s := string(status)
	switch status {
	case models.TaskSucceeded:
		return t.successStyle().Render(s)
	case models.TaskFailed:
		return t.errorStyle().Render(s)
	case models.TaskRetry, models.TaskInProgress:
		return t.warnStyle().Render(s)
	case models.TaskSkipped:
		return t.hintStyle().Render(s)
	default:
		return t.statusStyle().Render(s)
	}
}

// styleRunStatus renders a run status with its theme color.
func (t Theme) styleRunStatus(status models.RunStatus) string {
	s := string(status)
	switch status {
	case models.RunSucceeded:
		return t.successStyle().Render(s)
	case models.RunFailed:
		return t.errorStyle().Render(s)
	case models.RunRunning:
		return t.warnStyle().Render(s)
	default:
		return t.statusStyle().Render(s)
	}
}
