package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/horizon/internal/models"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)

	DangerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Swatch renders a small block in the habit's color.
func Swatch(color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}

// ProgressBar renders current/total as a fixed-width bar.
func ProgressBar(current, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := current * width / total
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return SuccessStyle.Render(strings.Repeat("█", filled)) +
		MutedStyle.Render(strings.Repeat("░", width-filled))
}

// FormatLevel renders the level line with the XP bar.
func FormatLevel(p models.UserProgress) string {
	return fmt.Sprintf("Level %d  %s  %d/%d XP",
		p.Level, ProgressBar(p.CurrentXP, p.XPForNextLevel, 20), p.CurrentXP, p.XPForNextLevel)
}

// HistoryGrid renders the last n days ending at today, oldest first. A
// completed day is #, a scheduled miss is ., an unscheduled day is a space.
func HistoryGrid(habit models.Habit, days []models.Day, today models.Day, n int) string {
	done := make(map[models.Day]bool, len(days))
	for _, d := range days {
		done[d] = true
	}
	var b strings.Builder
	for d := today - models.Day(n-1); d <= today; d++ {
		switch {
		case done[d]:
			b.WriteString("#")
		case habit.IsActiveOn(d):
			b.WriteString(".")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

// Pluralize returns word with an s unless n is 1.
func Pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
