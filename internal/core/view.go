package core

import (
	"slices"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// View returns the tasks kept by filter, ordered by CompareTasks. The source
// slice is never modified.
func View(tasks []models.Task, filter models.FilterStatus) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if matchesFilterStatus(t, filter) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, CompareTasks)
	return out
}

// CompareTasks orders pending tasks before completed ones, then dated tasks
// by due instant ahead of undated ones, then by priority. It returns 0 when
// all three keys tie so a stable sort keeps input order.
func CompareTasks(a, b models.Task) int {
	if a.Completed != b.Completed {
		if a.Completed {
			return 1
		}
		return -1
	}

	switch {
	case a.DueDate != nil && b.DueDate != nil:
		if c := a.DueDate.Compare(*b.DueDate); c != 0 {
			return c
		}
	case a.DueDate != nil:
		return -1
	case b.DueDate != nil:
		return 1
	}

	return a.Priority.Rank() - b.Priority.Rank()
}

// StatusCounts holds the pending and completed totals of a collection.
type StatusCounts struct {
	Pending   int
	Completed int
}

// Total returns the number of tasks counted.
func (c StatusCounts) Total() int {
	return c.Pending + c.Completed
}

// CountByStatus tallies pending and completed tasks.
func CountByStatus(tasks []models.Task) StatusCounts {
	var c StatusCounts
	for _, t := range tasks {
		if t.Completed {
			c.Completed++
		} else {
			c.Pending++
		}
	}
	return c
}

func matchesFilterStatus(t models.Task, filter models.FilterStatus) bool {
	switch filter {
	case models.FilterPending:
		return !t.Completed
	case models.FilterCompleted:
		return t.Completed
	default:
		return true
	}
}
