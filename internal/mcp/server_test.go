package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/internal/observability"
	"github.com/valter-silva-au/fanya-focus/internal/storage"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// --- Fake implementations ---

type fakeClassifier struct {
	resp  *core.ClassificationResponse
	err   error
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, _ core.ClassificationRequest) (*core.ClassificationResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	err     error
}

func (f *fakeMetricsCalculator) Calculate(_ time.Time) (*observability.Metrics, error) {
	return f.metrics, f.err
}

type fakeAlertEngine struct {
	alerts []observability.Alert
	err    error
}

func (f *fakeAlertEngine) Evaluate(_ time.Time) ([]observability.Alert, error) {
	return f.alerts, f.err
}

// --- Test helpers ---

func newTestStore(t *testing.T) core.TaskStore {
	t.Helper()
	store := core.NewTaskStore(storage.NewMemoryBlobStore(), core.NewTaskIDGenerator(), nil)
	if err := store.LoadAll(context.Background()); err != nil {
		t.Fatalf("loading store: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store core.TaskStore, in models.TaskInput) models.Task {
	t.Helper()
	task, err := store.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}
	return task
}

func daysFromNow(n int) *time.Time {
	d := models.StartOfDay(time.Now()).AddDate(0, 0, n)
	return &d
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	// Connect server (non-blocking).
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decodeResult parses a successful result from its structured content, or
// from its text when no structured content was sent.
func decodeResult(t *testing.T, result *gomcp.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	if result.StructuredContent != nil {
		data, _ := json.Marshal(result.StructuredContent)
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("unmarshalling text: %v (text was: %s)", err, text)
	}
}

// --- Tests ---

func TestListTasks_SortedWithCounts(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, models.TaskInput{Title: "Undated", Priority: models.PriorityHigh})
	later := mustCreate(t, store, models.TaskInput{Title: "Later", DueDate: daysFromNow(5), Priority: models.PriorityLow})
	sooner := mustCreate(t, store, models.TaskInput{Title: "Sooner", DueDate: daysFromNow(1), Priority: models.PriorityLow})
	if _, err := store.ToggleComplete(context.Background(), later.ID); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(store, nil, nil, nil, "test")

	var out listTasksOutput
	decodeResult(t, callTool(t, srv, "list_tasks", map[string]any{}), &out)

	if out.Count != 3 || out.Pending != 2 || out.Completed != 1 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if out.Tasks[0].ID != sooner.ID || out.Tasks[2].Title != "Undated" {
		t.Errorf("unexpected order: %+v", out.Tasks)
	}
}

func TestListTasks_Filter(t *testing.T) {
	store := newTestStore(t)
	done := mustCreate(t, store, models.TaskInput{Title: "Done", Priority: models.PriorityMedium})
	mustCreate(t, store, models.TaskInput{Title: "Open", Priority: models.PriorityMedium})
	if _, err := store.ToggleComplete(context.Background(), done.ID); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(store, nil, nil, nil, "test")

	var out listTasksOutput
	decodeResult(t, callTool(t, srv, "list_tasks", map[string]any{"filter": "completed"}), &out)
	if out.Count != 1 || out.Tasks[0].ID != done.ID {
		t.Fatalf("unexpected completed view %+v", out)
	}
	// Totals describe the whole collection, not the filtered view.
	if out.Pending != 1 || out.Completed != 1 {
		t.Errorf("unexpected totals %+v", out)
	}
}

func TestListTasks_InvalidFilter(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil, nil, "test")
	result := callTool(t, srv, "list_tasks", map[string]any{"filter": "archived"})
	if !result.IsError {
		t.Fatal("expected error for unknown filter")
	}
}

func TestListTasks_SeesTasksWrittenByAnotherStore(t *testing.T) {
	blobs := storage.NewMemoryBlobStore()
	served := core.NewTaskStore(blobs, core.NewTaskIDGenerator(), nil)
	if err := served.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(served, nil, nil, nil, "test")

	other := core.NewTaskStore(blobs, core.NewTaskIDGenerator(), nil)
	if err := other.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	added := mustCreate(t, other, models.TaskInput{Title: "Added from the CLI", Priority: models.PriorityMedium})

	var out listTasksOutput
	decodeResult(t, callTool(t, srv, "list_tasks", map[string]any{}), &out)
	if out.Count != 1 || out.Tasks[0].ID != added.ID {
		t.Fatalf("list_tasks did not pick up the other store's task: %+v", out)
	}

	var toggled taskOutput
	decodeResult(t, callTool(t, srv, "toggle_task", map[string]any{"task_id": added.ID}), &toggled)
	if !toggled.Completed {
		t.Fatalf("toggle_task = %+v", toggled)
	}
	if err := other.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, ok := other.Get(added.ID); !ok || !got.Completed {
		t.Errorf("other store sees %+v ok=%v", got, ok)
	}
}

func TestGetTask(t *testing.T) {
	store := newTestStore(t)
	task := mustCreate(t, store, models.TaskInput{
		Title:       "File taxes",
		Description: "Use last year's folder",
		DueDate:     daysFromNow(-2),
		Priority:    models.PriorityHigh,
	})
	srv := NewServer(store, nil, nil, nil, "test")

	var out taskOutput
	decodeResult(t, callTool(t, srv, "get_task", map[string]any{"task_id": task.ID}), &out)

	if out.Title != "File taxes" || out.Priority != "High" || out.Description != "Use last year's folder" {
		t.Errorf("unexpected task %+v", out)
	}
	if out.DueDate != daysFromNow(-2).Format(models.DateLayout) {
		t.Errorf("due_date = %q", out.DueDate)
	}
	if !out.Overdue {
		t.Error("task due two days ago should be overdue")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil, nil, "test")
	result := callTool(t, srv, "get_task", map[string]any{"task_id": "missing"})
	if !result.IsError {
		t.Fatal("expected error for unknown task")
	}
	if extractText(result) == "" {
		t.Fatal("expected error message in result")
	}
}

func TestAddTask(t *testing.T) {
	store := newTestStore(t)
	srv := NewServer(store, nil, nil, nil, "test")

	var out taskOutput
	decodeResult(t, callTool(t, srv, "add_task", map[string]any{
		"title":    "  Book flights ",
		"due_date": "2030-05-01",
	}), &out)

	if out.ID == "" || out.Title != "Book flights" {
		t.Errorf("unexpected task %+v", out)
	}
	if out.Priority != "Medium" {
		t.Errorf("priority should default to Medium, got %q", out.Priority)
	}
	if out.DueDate != "2030-05-01" {
		t.Errorf("due_date = %q", out.DueDate)
	}
	if _, ok := store.Get(out.ID); !ok {
		t.Fatal("task was not stored")
	}
}

func TestAddTask_Rejected(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "blank title", args: map[string]any{"title": "   "}},
		{name: "bad priority", args: map[string]any{"title": "x", "priority": "Urgent"}},
		{name: "bad date", args: map[string]any{"title": "x", "due_date": "01/05/2030"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			srv := NewServer(store, nil, nil, nil, "test")
			result := callTool(t, srv, "add_task", tt.args)
			if !result.IsError {
				t.Fatal("expected error")
			}
			if n := len(store.Tasks()); n != 0 {
				t.Fatalf("rejected input stored %d tasks", n)
			}
		})
	}
}

func TestUpdateTask_PartialFields(t *testing.T) {
	store := newTestStore(t)
	task := mustCreate(t, store, models.TaskInput{Title: "Draft", Description: "v1", DueDate: daysFromNow(3), Priority: models.PriorityLow})
	srv := NewServer(store, nil, nil, nil, "test")

	var out taskOutput
	decodeResult(t, callTool(t, srv, "update_task", map[string]any{
		"task_id":  task.ID,
		"title":    "Final",
		"due_date": "",
	}), &out)

	if out.Title != "Final" || out.Description != "v1" || out.Priority != "Low" {
		t.Errorf("unexpected task %+v", out)
	}
	if out.DueDate != "" {
		t.Errorf("due date should be cleared, got %q", out.DueDate)
	}
}

func TestToggleAndDeleteTask(t *testing.T) {
	store := newTestStore(t)
	task := mustCreate(t, store, models.TaskInput{Title: "Water plants", Priority: models.PriorityMedium})
	srv := NewServer(store, nil, nil, nil, "test")

	var toggled taskOutput
	decodeResult(t, callTool(t, srv, "toggle_task", map[string]any{"task_id": task.ID}), &toggled)
	if !toggled.Completed {
		t.Fatal("task should be completed after toggle")
	}

	var msg messageOutput
	decodeResult(t, callTool(t, srv, "delete_task", map[string]any{"task_id": task.ID}), &msg)
	if _, ok := store.Get(task.ID); ok {
		t.Fatal("task still present after delete")
	}

	if result := callTool(t, srv, "delete_task", map[string]any{"task_id": task.ID}); !result.IsError {
		t.Fatal("second delete should report not found")
	}
	if result := callTool(t, srv, "toggle_task", map[string]any{"task_id": task.ID}); !result.IsError {
		t.Fatal("toggle of deleted task should report not found")
	}
}

func TestSuggestPriority_DoesNotApply(t *testing.T) {
	store := newTestStore(t)
	task := mustCreate(t, store, models.TaskInput{Title: "Renew visa", DueDate: daysFromNow(1), Priority: models.PriorityLow})
	classifier := &fakeClassifier{resp: &core.ClassificationResponse{SuggestedPriority: "High", Reasoning: "Due tomorrow."}}
	srv := NewServer(store, core.NewPriorityAdvisor(classifier, time.Second, nil), nil, nil, "test")

	var out suggestPriorityOutput
	decodeResult(t, callTool(t, srv, "suggest_priority", map[string]any{
		"task_id":         task.ID,
		"task_parameters": "needs passport photos",
	}), &out)

	if out.SuggestedPriority != "High" || out.CurrentPriority != "Low" || out.Reasoning != "Due tomorrow." {
		t.Errorf("unexpected suggestion %+v", out)
	}
	stored, _ := store.Get(task.ID)
	if stored.Priority != models.PriorityLow {
		t.Fatal("suggest_priority must not change the task")
	}

	var applied taskOutput
	decodeResult(t, callTool(t, srv, "set_priority", map[string]any{"task_id": task.ID, "priority": out.SuggestedPriority}), &applied)
	if applied.Priority != "High" {
		t.Errorf("priority after set = %q", applied.Priority)
	}
}

func TestSuggestPriority_Failures(t *testing.T) {
	store := newTestStore(t)
	undated := mustCreate(t, store, models.TaskInput{Title: "Someday", Priority: models.PriorityLow})
	dated := mustCreate(t, store, models.TaskInput{Title: "Soon", DueDate: daysFromNow(2), Priority: models.PriorityLow})

	t.Run("no advisor", func(t *testing.T) {
		srv := NewServer(store, nil, nil, nil, "test")
		if result := callTool(t, srv, "suggest_priority", map[string]any{"task_id": dated.ID}); !result.IsError {
			t.Fatal("expected error without advisor")
		}
	})

	t.Run("missing due date", func(t *testing.T) {
		classifier := &fakeClassifier{}
		srv := NewServer(store, core.NewPriorityAdvisor(classifier, time.Second, nil), nil, nil, "test")
		if result := callTool(t, srv, "suggest_priority", map[string]any{"task_id": undated.ID}); !result.IsError {
			t.Fatal("expected validation error")
		}
		if classifier.calls != 0 {
			t.Fatal("classifier must not be called without a due date")
		}
	})

	t.Run("service failure", func(t *testing.T) {
		classifier := &fakeClassifier{err: errors.New("HTTP 503")}
		srv := NewServer(store, core.NewPriorityAdvisor(classifier, time.Second, nil), nil, nil, "test")
		result := callTool(t, srv, "suggest_priority", map[string]any{"task_id": dated.ID})
		if !result.IsError {
			t.Fatal("expected error")
		}
		if got := extractText(result); got != "Could not get a priority suggestion. Please set the priority manually." {
			t.Errorf("unexpected message %q", got)
		}
	})
}

func TestSetPriority_Invalid(t *testing.T) {
	store := newTestStore(t)
	task := mustCreate(t, store, models.TaskInput{Title: "x", Priority: models.PriorityLow})
	srv := NewServer(store, nil, nil, nil, "test")

	if result := callTool(t, srv, "set_priority", map[string]any{"task_id": task.ID, "priority": "Critical"}); !result.IsError {
		t.Fatal("expected error for invalid priority")
	}
	if result := callTool(t, srv, "set_priority", map[string]any{"task_id": "nope", "priority": "High"}); !result.IsError {
		t.Fatal("expected error for unknown task")
	}
}

func TestGetMetrics(t *testing.T) {
	now := time.Now().UTC()
	mc := &fakeMetricsCalculator{
		metrics: &observability.Metrics{
			TasksCreated:         5,
			TasksCompleted:       3,
			SuggestionsRequested: 4,
			SuggestionsReceived:  3,
			SuggestionsFailed:    1,
			CreatedByPriority:    map[string]int{"High": 2, "Low": 3},
			SuggestedByPriority:  map[string]int{"High": 3},
			EventCount:           42,
			OldestEvent:          &now,
			NewestEvent:          &now,
		},
	}
	srv := NewServer(newTestStore(t), nil, mc, nil, "test")

	var m metricsOutput
	decodeResult(t, callTool(t, srv, "get_metrics", map[string]any{}), &m)

	if m.TasksCreated != 5 {
		t.Errorf("expected 5 tasks created, got %d", m.TasksCreated)
	}
	if m.EventCount != 42 {
		t.Errorf("expected 42 events, got %d", m.EventCount)
	}
	if m.SuggestionSuccessRate != 0.75 {
		t.Errorf("success rate = %v, want 0.75", m.SuggestionSuccessRate)
	}
}

func TestGetMetricsDisabled(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil, nil, "test")

	result := callTool(t, srv, "get_metrics", map[string]any{})

	if !result.IsError {
		t.Fatal("expected error when metrics calculator is nil")
	}
}

func TestGetMetricsBadSince(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, &fakeMetricsCalculator{metrics: &observability.Metrics{}}, nil, "test")
	if result := callTool(t, srv, "get_metrics", map[string]any{"since": "2w"}); !result.IsError {
		t.Fatal("expected error for unsupported suffix")
	}
}

func TestGetAlerts(t *testing.T) {
	now := time.Now().UTC()
	ae := &fakeAlertEngine{
		alerts: []observability.Alert{
			{
				ID:          "overdue-abc",
				Condition:   observability.ConditionTaskOverdue,
				Severity:    observability.SeverityHigh,
				Message:     `task "Pay rent" is 2 days overdue`,
				TriggeredAt: now,
			},
		},
	}
	srv := NewServer(newTestStore(t), nil, nil, ae, "test")

	var out getAlertsOutput
	decodeResult(t, callTool(t, srv, "get_alerts", map[string]any{}), &out)

	if out.Count != 1 {
		t.Fatalf("expected 1 alert, got %d", out.Count)
	}
	if out.Alerts[0].Condition != observability.ConditionTaskOverdue || out.Alerts[0].Severity != "high" {
		t.Errorf("unexpected alert %+v", out.Alerts[0])
	}
}

func TestGetAlertsDisabled(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil, nil, "test")
	if result := callTool(t, srv, "get_alerts", map[string]any{}); !result.IsError {
		t.Fatal("expected error when alert engine is nil")
	}
}

func TestGetAlertsEmpty(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil, &fakeAlertEngine{}, "test")

	var out getAlertsOutput
	decodeResult(t, callTool(t, srv, "get_alerts", map[string]any{}), &out)
	if out.Count != 0 {
		t.Errorf("expected 0 alerts, got %d", out.Count)
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"7d", false},
		{"30d", false},
		{"24h", false},
		{"1h", false},
		{"", true},
		{"x", true},
		{"7x", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseSince(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSince(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseDueDate(t *testing.T) {
	if d, err := parseDueDate(""); err != nil || d != nil {
		t.Fatalf("empty string should mean no date, got %v %v", d, err)
	}
	d, err := parseDueDate("2031-02-28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2031 || d.Month() != time.February || d.Day() != 28 || d.Hour() != 0 {
		t.Errorf("unexpected date %v", d)
	}
	if _, err := parseDueDate("2031-02-30"); err == nil {
		t.Fatal("expected error for impossible date")
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
