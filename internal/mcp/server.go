// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task list and the priority advisor as MCP tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/internal/observability"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// Server wraps the task services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	store       core.TaskStore
	advisor     core.PriorityAdvisor
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates a new MCP server. advisor, metricsCalc and alertEngine
// may be nil; the matching tools then report themselves unavailable.
func NewServer(store core.TaskStore, advisor core.PriorityAdvisor, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       store,
		advisor:     advisor,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "fanya", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task identifier"`
}

type taskOutput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    string `json:"priority"`
	Completed   bool   `json:"completed"`
	Overdue     bool   `json:"overdue,omitempty"`
}

type listTasksInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"which tasks to return: all, pending or completed. Defaults to all."`
}

type listTasksOutput struct {
	Tasks     []taskOutput `json:"tasks"`
	Count     int          `json:"count"`
	Pending   int          `json:"pending"`
	Completed int          `json:"completed"`
}

type addTaskInput struct {
	Title       string `json:"title" jsonschema:"required,short task title (at most 100 characters)"`
	Description string `json:"description,omitempty" jsonschema:"optional details (at most 500 characters)"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"optional due date as YYYY-MM-DD"`
	Priority    string `json:"priority,omitempty" jsonschema:"High, Medium or Low. Defaults to Medium."`
}

type updateTaskInput struct {
	TaskID      string  `json:"task_id" jsonschema:"required,the task identifier"`
	Title       *string `json:"title,omitempty" jsonschema:"new title"`
	Description *string `json:"description,omitempty" jsonschema:"new description; an empty string clears it"`
	DueDate     *string `json:"due_date,omitempty" jsonschema:"new due date as YYYY-MM-DD; an empty string clears it"`
	Priority    *string `json:"priority,omitempty" jsonschema:"High, Medium or Low"`
}

type setPriorityInput struct {
	TaskID   string `json:"task_id" jsonschema:"required,the task identifier"`
	Priority string `json:"priority" jsonschema:"required,High, Medium or Low"`
}

type suggestPriorityInput struct {
	TaskID         string `json:"task_id" jsonschema:"required,the task identifier"`
	TaskParameters string `json:"task_parameters,omitempty" jsonschema:"optional context such as effort or dependencies"`
}

type suggestPriorityOutput struct {
	TaskID            string `json:"task_id"`
	CurrentPriority   string `json:"current_priority"`
	SuggestedPriority string `json:"suggested_priority"`
	Reasoning         string `json:"reasoning"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated          int            `json:"tasks_created"`
	TasksUpdated          int            `json:"tasks_updated"`
	TasksCompleted        int            `json:"tasks_completed"`
	TasksReopened         int            `json:"tasks_reopened"`
	TasksDeleted          int            `json:"tasks_deleted"`
	CreatedByPriority     map[string]int `json:"created_by_priority"`
	SuggestionsRequested  int            `json:"suggestions_requested"`
	SuggestionsReceived   int            `json:"suggestions_received"`
	SuggestionsFailed     int            `json:"suggestions_failed"`
	SuggestionSuccessRate float64        `json:"suggestion_success_rate"`
	SuggestedByPriority   map[string]int `json:"suggested_by_priority"`
	CorruptLoads          int            `json:"corrupt_loads"`
	EventCount            int            `json:"event_count"`
	OldestEvent           string         `json:"oldest_event,omitempty"`
	NewestEvent           string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks sorted by due date (undated last), then priority. Optional filter: all, pending, completed.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a single task by ID.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_task",
		Description: "Create a task. Title is required; priority defaults to Medium.",
	}, s.handleAddTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task",
		Description: "Change the title, description, due date or priority of a task. Omitted fields are left as they are.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "toggle_task",
		Description: "Flip a task between pending and completed.",
	}, s.handleToggleTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Permanently delete a task.",
	}, s.handleDeleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "suggest_priority",
		Description: "Ask the priority advisor for a suggested priority. The task is not modified; use set_priority to apply.",
	}, s.handleSuggestPriority)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "set_priority",
		Description: "Set the priority of a task, for example to apply a suggestion.",
	}, s.handleSetPriority)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated task and advisor activity from the event log.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (overdue tasks, a failing advisor, a corrupt task store).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(ctx context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	if err := s.store.Refresh(ctx); err != nil {
		return errorResult(err.Error()), listTasksOutput{}, nil
	}
	filter, err := models.ParseFilterStatus(input.Filter)
	if err != nil {
		return errorResult(err.Error()), listTasksOutput{}, nil
	}

	all := s.store.Tasks()
	counts := core.CountByStatus(all)
	tasks := core.View(all, filter)
	now := s.now()

	out := listTasksOutput{
		Tasks:     make([]taskOutput, len(tasks)),
		Count:     len(tasks),
		Pending:   counts.Pending,
		Completed: counts.Completed,
	}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t, now)
	}

	return nil, out, nil
}

func (s *Server) handleGetTask(ctx context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if err := s.store.Refresh(ctx); err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, ok := s.store.Get(input.TaskID)
	if !ok {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}

	return nil, taskToOutput(task, s.now()), nil
}

func (s *Server) handleAddTask(ctx context.Context, _ *gomcp.CallToolRequest, input addTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	taskInput := models.TaskInput{
		Title:       input.Title,
		Description: input.Description,
		Priority:    models.PriorityMedium,
	}
	if input.Priority != "" {
		p, err := models.ParsePriority(input.Priority)
		if err != nil {
			return errorResult(err.Error()), taskOutput{}, nil
		}
		taskInput.Priority = p
	}
	due, err := parseDueDate(input.DueDate)
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	taskInput.DueDate = due

	task, err := s.store.Create(ctx, taskInput)
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}

	return nil, taskToOutput(task, s.now()), nil
}

func (s *Server) handleUpdateTask(ctx context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if err := s.store.Refresh(ctx); err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	task, ok := s.store.Get(input.TaskID)
	if !ok {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}

	if input.Title != nil {
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.DueDate != nil {
		due, err := parseDueDate(*input.DueDate)
		if err != nil {
			return errorResult(err.Error()), taskOutput{}, nil
		}
		task.DueDate = due
	}
	if input.Priority != nil {
		p, err := models.ParsePriority(*input.Priority)
		if err != nil {
			return errorResult(err.Error()), taskOutput{}, nil
		}
		task.Priority = p
	}

	found, err := s.store.Update(ctx, task)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	if !found {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}

	updated, _ := s.store.Get(input.TaskID)
	return nil, taskToOutput(updated, s.now()), nil
}

func (s *Server) handleToggleTask(ctx context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	found, err := s.store.ToggleComplete(ctx, input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("toggling task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	if !found {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}

	task, _ := s.store.Get(input.TaskID)
	return nil, taskToOutput(task, s.now()), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}

	found, err := s.store.Delete(ctx, input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("deleting task %s: %s", input.TaskID, err)), messageOutput{}, nil
	}
	if !found {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), messageOutput{}, nil
	}

	return nil, messageOutput{Message: fmt.Sprintf("task %s deleted", input.TaskID)}, nil
}

func (s *Server) handleSuggestPriority(ctx context.Context, _ *gomcp.CallToolRequest, input suggestPriorityInput) (*gomcp.CallToolResult, suggestPriorityOutput, error) {
	if err := s.store.Refresh(ctx); err != nil {
		return errorResult(err.Error()), suggestPriorityOutput{}, nil
	}
	if s.advisor == nil {
		return errorResult("priority advisor not available (no classification service configured)"), suggestPriorityOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), suggestPriorityOutput{}, nil
	}
	task, ok := s.store.Get(input.TaskID)
	if !ok {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), suggestPriorityOutput{}, nil
	}

	suggestion, err := s.advisor.Suggest(ctx, core.SuggestionInput{
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate,
		Parameters:  input.TaskParameters,
	})
	if err != nil {
		if errors.Is(err, core.ErrSuggestionUnavailable) {
			return errorResult("Could not get a priority suggestion. Please set the priority manually."), suggestPriorityOutput{}, nil
		}
		return errorResult(err.Error()), suggestPriorityOutput{}, nil
	}

	return nil, suggestPriorityOutput{
		TaskID:            task.ID,
		CurrentPriority:   string(task.Priority),
		SuggestedPriority: string(suggestion.Priority),
		Reasoning:         suggestion.Reasoning,
	}, nil
}

func (s *Server) handleSetPriority(ctx context.Context, _ *gomcp.CallToolRequest, input setPriorityInput) (*gomcp.CallToolResult, taskOutput, error) {
	if err := s.store.Refresh(ctx); err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	p, err := models.ParsePriority(input.Priority)
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	task, ok := s.store.Get(input.TaskID)
	if !ok {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}

	task.Priority = p
	if _, err := s.store.Update(ctx, task); err != nil {
		return errorResult(fmt.Sprintf("updating task %s priority: %s", input.TaskID, err)), taskOutput{}, nil
	}

	updated, _ := s.store.Get(input.TaskID)
	return nil, taskToOutput(updated, s.now()), nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:          metrics.TasksCreated,
		TasksUpdated:          metrics.TasksUpdated,
		TasksCompleted:        metrics.TasksCompleted,
		TasksReopened:         metrics.TasksReopened,
		TasksDeleted:          metrics.TasksDeleted,
		CreatedByPriority:     metrics.CreatedByPriority,
		SuggestionsRequested:  metrics.SuggestionsRequested,
		SuggestionsReceived:   metrics.SuggestionsReceived,
		SuggestionsFailed:     metrics.SuggestionsFailed,
		SuggestionSuccessRate: metrics.SuggestionSuccessRate(),
		SuggestedByPriority:   metrics.SuggestedByPriority,
		CorruptLoads:          metrics.CorruptLoads,
		EventCount:            metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate(s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t models.Task, now time.Time) taskOutput {
	out := taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Completed:   t.Completed,
		Overdue:     t.IsOverdue(now),
	}
	if t.DueDate != nil {
		out.DueDate = t.DueDate.In(now.Location()).Format(models.DateLayout)
	}
	return out
}

// parseDueDate reads a YYYY-MM-DD date as local midnight. An empty string
// means no due date.
func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(models.DateLayout, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid due_date %q: use YYYY-MM-DD", s)
	}
	return &d, nil
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		CreatedByPriority:   make(map[string]int),
		SuggestedByPriority: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
