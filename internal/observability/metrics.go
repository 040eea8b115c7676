package observability

import (
	"fmt"
	"time"
)

// Metrics summarises task and advisor activity over a time window.
type Metrics struct {
	TasksCreated   int `json:"tasks_created"`
	TasksUpdated   int `json:"tasks_updated"`
	TasksCompleted int `json:"tasks_completed"`
	TasksReopened  int `json:"tasks_reopened"`
	TasksDeleted   int `json:"tasks_deleted"`

	CreatedByPriority map[string]int `json:"created_by_priority"`

	SuggestionsRequested int            `json:"suggestions_requested"`
	SuggestionsReceived  int            `json:"suggestions_received"`
	SuggestionsFailed    int            `json:"suggestions_failed"`
	SuggestedByPriority  map[string]int `json:"suggested_by_priority"`

	CorruptLoads int `json:"corrupt_loads"`

	EventCount  int        `json:"event_count"`
	OldestEvent *time.Time `json:"oldest_event,omitempty"`
	NewestEvent *time.Time `json:"newest_event,omitempty"`
}

// SuggestionSuccessRate is the share of finished suggestion requests that
// produced a usable answer, in [0,1]. It is 0 when none finished.
func (m *Metrics) SuggestionSuccessRate() float64 {
	done := m.SuggestionsReceived + m.SuggestionsFailed
	if done == 0 {
		return 0
	}
	return float64(m.SuggestionsReceived) / float64(done)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		CreatedByPriority:   make(map[string]int),
		SuggestedByPriority: make(map[string]int),
		EventCount:          len(events),
	}

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if p, ok := event.Data["priority"].(string); ok {
				m.CreatedByPriority[p]++
			}
		case "task.updated":
			m.TasksUpdated++
		case "task.completed":
			m.TasksCompleted++
		case "task.reopened":
			m.TasksReopened++
		case "task.deleted":
			m.TasksDeleted++
		case "suggestion.requested":
			m.SuggestionsRequested++
		case "suggestion.received":
			m.SuggestionsReceived++
			if p, ok := event.Data["priority"].(string); ok {
				m.SuggestedByPriority[p]++
			}
		case "suggestion.failed":
			m.SuggestionsFailed++
		case "store.corrupt":
			m.CorruptLoads++
		}
	}

	return m, nil
}
