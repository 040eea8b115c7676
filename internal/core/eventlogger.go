package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types recorded by the task store and the priority advisor.
const (
	EventTaskCreated         = "task.created"
	EventTaskUpdated         = "task.updated"
	EventTaskDeleted         = "task.deleted"
	EventTaskCompleted       = "task.completed"
	EventTaskReopened        = "task.reopened"
	EventStoreLoaded         = "store.loaded"
	EventStoreCorrupt        = "store.corrupt"
	EventSuggestionRequested = "suggestion.requested"
	EventSuggestionReceived  = "suggestion.received"
	EventSuggestionFailed    = "suggestion.failed"
)

// logEvent forwards to l when it is set. Event log failures never affect the
// operation being recorded.
func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
