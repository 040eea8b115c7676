package core

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
	"pgregory.net/rapid"
)

func ids(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestView_OrdersPendingDatedUndatedCompleted(t *testing.T) {
	tasks := []models.Task{
		{ID: "A", DueDate: date(2025, 1, 10), Priority: models.PriorityHigh},
		{ID: "B", DueDate: date(2025, 1, 5), Priority: models.PriorityLow},
		{ID: "C", DueDate: date(2025, 1, 1), Priority: models.PriorityHigh, Completed: true},
		{ID: "D", Priority: models.PriorityHigh},
	}

	got := ids(View(tasks, models.FilterAll))
	want := []string{"B", "A", "D", "C"}
	if !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestView_Filters(t *testing.T) {
	tasks := []models.Task{
		{ID: "p1", Priority: models.PriorityLow},
		{ID: "c1", Priority: models.PriorityHigh, Completed: true},
		{ID: "p2", Priority: models.PriorityHigh},
	}

	tests := []struct {
		filter models.FilterStatus
		want   []string
	}{
		{filter: models.FilterAll, want: []string{"p2", "p1", "c1"}},
		{filter: models.FilterPending, want: []string{"p2", "p1"}},
		{filter: models.FilterCompleted, want: []string{"c1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			got := ids(View(tasks, tt.filter))
			if !slices.Equal(got, tt.want) {
				t.Errorf("View(%s) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestView_PriorityBreaksDueDateTie(t *testing.T) {
	due := date(2025, 3, 1)
	tasks := []models.Task{
		{ID: "low", DueDate: due, Priority: models.PriorityLow},
		{ID: "med", DueDate: due, Priority: models.PriorityMedium},
		{ID: "high", DueDate: due, Priority: models.PriorityHigh},
	}
	got := ids(View(tasks, models.FilterAll))
	if want := []string{"high", "med", "low"}; !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestView_ComparesInstantsAcrossZones(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2025-01-02 08:00 JST is 2025-01-01 23:00 UTC, earlier than 2025-01-02 UTC.
	early := time.Date(2025, 1, 2, 8, 0, 0, 0, tokyo)
	tasks := []models.Task{
		{ID: "utc", DueDate: date(2025, 1, 2), Priority: models.PriorityHigh},
		{ID: "jst", DueDate: &early, Priority: models.PriorityLow},
	}
	got := ids(View(tasks, models.FilterAll))
	if want := []string{"jst", "utc"}; !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestView_DoesNotModifyInput(t *testing.T) {
	tasks := []models.Task{
		{ID: "x", Priority: models.PriorityLow},
		{ID: "y", Priority: models.PriorityHigh},
	}
	_ = View(tasks, models.FilterAll)
	if tasks[0].ID != "x" || tasks[1].ID != "y" {
		t.Fatalf("input reordered: %v", ids(tasks))
	}
}

func TestView_EmptyCollection(t *testing.T) {
	got := View(nil, models.FilterPending)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCountByStatus(t *testing.T) {
	counts := CountByStatus([]models.Task{{}, {Completed: true}, {}})
	if counts.Pending != 2 || counts.Completed != 1 || counts.Total() != 3 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

// genTask draws a task whose keys collide often so ties are exercised.
func genTask(rt *rapid.T, i int) models.Task {
	t := models.Task{
		ID:        fmt.Sprintf("t%d", i),
		Priority:  rapid.SampledFrom(models.Priorities).Draw(rt, fmt.Sprintf("priority_%d", i)),
		Completed: rapid.Bool().Draw(rt, fmt.Sprintf("completed_%d", i)),
	}
	if rapid.Bool().Draw(rt, fmt.Sprintf("dated_%d", i)) {
		day := rapid.IntRange(1, 5).Draw(rt, fmt.Sprintf("day_%d", i))
		t.DueDate = date(2025, 1, day)
	}
	return t
}

func genTasks(rt *rapid.T) []models.Task {
	n := rapid.IntRange(0, 25).Draw(rt, "n")
	tasks := make([]models.Task, n)
	for i := range tasks {
		tasks[i] = genTask(rt, i)
	}
	return tasks
}

// Feature: filter/sort engine, Property 2: Sort Idempotence
// Sorting an already sorted view yields the same order.
func TestProperty2_ViewIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := genTasks(rt)
		once := View(tasks, models.FilterAll)
		twice := View(once, models.FilterAll)
		if !slices.Equal(ids(once), ids(twice)) {
			rt.Fatalf("not idempotent: %v then %v", ids(once), ids(twice))
		}
	})
}

// Feature: filter/sort engine, Property 3: Sort Stability
// Tasks equal under all comparator keys keep their input order.
func TestProperty3_ViewStable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := genTasks(rt)
		position := make(map[string]int, len(tasks))
		for i, task := range tasks {
			position[task.ID] = i
		}

		sorted := View(tasks, models.FilterAll)
		for i := 1; i < len(sorted); i++ {
			a, b := sorted[i-1], sorted[i]
			c := CompareTasks(a, b)
			if c > 0 {
				rt.Fatalf("out of order at %d: %s before %s", i, a.ID, b.ID)
			}
			if c == 0 && position[a.ID] > position[b.ID] {
				rt.Fatalf("tie between %s and %s not kept in input order", a.ID, b.ID)
			}
		}
	})
}

// Feature: filter/sort engine, Property 4: Filter Partition
// pending and completed views are disjoint and together equal the all view.
func TestProperty4_FilterPartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := genTasks(rt)
		all := View(tasks, models.FilterAll)
		pending := View(tasks, models.FilterPending)
		completed := View(tasks, models.FilterCompleted)

		if len(pending)+len(completed) != len(all) {
			rt.Fatalf("sizes: pending %d + completed %d != all %d", len(pending), len(completed), len(all))
		}
		seen := make(map[string]bool)
		for _, task := range pending {
			if task.Completed {
				rt.Fatalf("completed task %s in pending view", task.ID)
			}
			seen[task.ID] = true
		}
		for _, task := range completed {
			if !task.Completed {
				rt.Fatalf("pending task %s in completed view", task.ID)
			}
			if seen[task.ID] {
				rt.Fatalf("task %s in both views", task.ID)
			}
			seen[task.ID] = true
		}
		for _, task := range all {
			if !seen[task.ID] {
				rt.Fatalf("task %s missing from partition", task.ID)
			}
		}
	})
}
