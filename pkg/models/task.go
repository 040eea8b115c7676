package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority represents the urgency level of a task. The levels are totally
// ordered: High sorts before Medium, Medium before Low.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists every valid level in sort order.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Rank returns the sort position of the priority (High=0, Medium=1, Low=2).
// Unknown values rank after Low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Valid reports whether p is one of the defined levels.
func (p Priority) Valid() bool {
	return p.Rank() < 3
}

// ParsePriority converts a case-insensitive level name into a Priority.
func ParsePriority(s string) (Priority, error) {
	for _, p := range Priorities {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q: must be one of High, Medium, Low", s)
}

// FilterStatus selects which tasks a view keeps.
type FilterStatus string

const (
	FilterAll       FilterStatus = "all"
	FilterPending   FilterStatus = "pending"
	FilterCompleted FilterStatus = "completed"
)

// ParseFilterStatus converts a filter name into a FilterStatus. An empty
// string selects FilterAll.
func ParseFilterStatus(s string) (FilterStatus, error) {
	switch FilterStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPending:
		return FilterPending, nil
	case FilterCompleted:
		return FilterCompleted, nil
	default:
		return "", fmt.Errorf("invalid filter %q: must be one of all, pending, completed", s)
	}
}

// Task is a single to-do record.
type Task struct {
	ID          string
	Title       string
	Description string
	DueDate     *time.Time
	Priority    Priority
	Completed   bool
}

// TaskInput carries the user-editable fields of a task. It is what create
// and update receive from a form before validation.
type TaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	Priority    Priority
}

// Input returns the editable fields of t.
func (t Task) Input() TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
	}
}

// IsOverdue reports whether the task is pending and its due date falls on a
// day before now.
func (t Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Completed {
		return false
	}
	return t.DueDate.Before(StartOfDay(now))
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateLayout is the calendar-date format used for due dates on the command
// line and in classification requests.
const DateLayout = "2006-01-02"
