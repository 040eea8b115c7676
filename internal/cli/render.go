package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// shortIDLength is how many leading characters of a task ID are shown in
// listings. Commands accept any unique prefix.
const shortIDLength = 8

var (
	priorityHighStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	priorityMediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityLowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Strikethrough(true)
	overdueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func styleForPriority(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityHigh:
		return priorityHighStyle
	case models.PriorityMedium:
		return priorityMediumStyle
	case models.PriorityLow:
		return priorityLowStyle
	default:
		return lipgloss.NewStyle()
	}
}

// renderPriority pads the level name to a fixed width before styling so
// columns stay aligned.
func renderPriority(p models.Priority) string {
	return styleForPriority(p).Render(fmt.Sprintf("%-6s", p))
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// formatDueDate renders a due date as "2025-01-10 (in 3 days)" relative to
// now's calendar day. A nil date renders as "no due date".
func formatDueDate(due *time.Time, now time.Time) string {
	if due == nil {
		return "no due date"
	}
	local := due.In(now.Location())
	return fmt.Sprintf("%s (%s)", local.Format(models.DateLayout), relativeDay(local, now))
}

func relativeDay(due, now time.Time) string {
	// Compare calendar days in UTC so DST shifts never produce 23 or 25 hour
	// days.
	d := calendarDay(due)
	n := calendarDay(now)
	switch days := int(d.Sub(n).Hours() / 24); days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	case -1:
		return "yesterday"
	default:
		span := strings.TrimSpace(humanize.RelTime(d, n, "", ""))
		if days > 0 {
			return "in " + span
		}
		return span + " ago"
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// writeTaskLine prints one task as a single listing row.
func writeTaskLine(w io.Writer, t models.Task, now time.Time) {
	check := "[ ]"
	title := t.Title
	if t.Completed {
		check = "[x]"
		title = completedStyle.Render(title)
	}

	line := fmt.Sprintf("  %s %-8s  %s  %s  %s",
		check, shortID(t.ID), renderPriority(t.Priority), title,
		mutedStyle.Render(formatDueDate(t.DueDate, now)))
	if t.IsOverdue(now) {
		line += " " + overdueStyle.Render("OVERDUE")
	}
	fmt.Fprintln(w, line)
}

// writeTaskDetail prints every field of a task.
func writeTaskDetail(w io.Writer, t models.Task, now time.Time) {
	status := "pending"
	if t.Completed {
		status = "completed"
	}
	fmt.Fprintf(w, "  ID:          %s\n", t.ID)
	fmt.Fprintf(w, "  Title:       %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", t.Description)
	}
	fmt.Fprintf(w, "  Due:         %s\n", formatDueDate(t.DueDate, now))
	fmt.Fprintf(w, "  Priority:    %s\n", renderPriority(t.Priority))
	fmt.Fprintf(w, "  Status:      %s\n", status)
	if t.IsOverdue(now) {
		fmt.Fprintf(w, "  %s\n", overdueStyle.Render("This task is overdue."))
	}
}
