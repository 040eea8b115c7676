package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionTaskOverdue    = "task_overdue"
	ConditionAdvisorFailing = "advisor_failing"
	ConditionStoreCorrupt   = "store_corrupt"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	// AdvisorFailureStreak is how many consecutive failed suggestions raise
	// advisor_failing. Zero disables the check.
	AdvisorFailureStreak int `yaml:"advisor_failure_streak" mapstructure:"advisor_failure_streak"`
	// CorruptLookbackHours is how far back a corrupt load still raises
	// store_corrupt. Zero disables the check.
	CorruptLookbackHours int `yaml:"corrupt_lookback_hours" mapstructure:"corrupt_lookback_hours"`
}

// DefaultAlertThresholds returns the default thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		AdvisorFailureStreak: 3,
		CorruptLookbackHours: 24,
	}
}

// TaskSource provides the current task list.
type TaskSource interface {
	Tasks() []models.Task
}

// AlertEngine evaluates alert conditions against the task list and the event
// log.
type AlertEngine interface {
	Evaluate(now time.Time) ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	tasks      TaskSource
	thresholds AlertThresholds
}

// NewAlertEngine creates an AlertEngine. eventLog may be nil, in which case
// only task conditions are checked.
func NewAlertEngine(eventLog EventLog, tasks TaskSource, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		tasks:      tasks,
		thresholds: thresholds,
	}
}

// Evaluate returns every triggered alert, most severe first.
func (ae *alertEngine) Evaluate(now time.Time) ([]Alert, error) {
	alerts := ae.checkOverdueTasks(now)

	if ae.eventLog != nil {
		corrupt, err := ae.checkCorruptLoads(now)
		if err != nil {
			return nil, fmt.Errorf("checking corrupt loads: %w", err)
		}
		alerts = append(alerts, corrupt...)

		failing, err := ae.checkAdvisorFailures(now)
		if err != nil {
			return nil, fmt.Errorf("checking advisor failures: %w", err)
		}
		alerts = append(alerts, failing...)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
	})
	return alerts, nil
}

// checkOverdueTasks flags every pending task whose due date is before today.
// Severity follows the task priority.
func (ae *alertEngine) checkOverdueTasks(now time.Time) []Alert {
	if ae.tasks == nil {
		return nil
	}
	var alerts []Alert
	for _, task := range ae.tasks.Tasks() {
		if !task.IsOverdue(now) {
			continue
		}
		days := int(models.StartOfDay(now).Sub(models.StartOfDay(task.DueDate.In(now.Location()))).Hours()/24 + 0.5)
		alerts = append(alerts, Alert{
			ID:          "overdue-" + task.ID,
			Condition:   ConditionTaskOverdue,
			Severity:    severityForPriority(task.Priority),
			Message:     fmt.Sprintf("%q (%s) is %d day(s) overdue", task.Title, task.Priority, days),
			TriggeredAt: now,
		})
	}
	return alerts
}

func (ae *alertEngine) checkCorruptLoads(now time.Time) ([]Alert, error) {
	if ae.thresholds.CorruptLookbackHours <= 0 {
		return nil, nil
	}
	since := now.Add(-time.Duration(ae.thresholds.CorruptLookbackHours) * time.Hour)
	events, err := ae.eventLog.Read(EventFilter{Type: "store.corrupt", Since: &since})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	last := events[len(events)-1]
	return []Alert{{
		ID:        "store-corrupt",
		Condition: ConditionStoreCorrupt,
		Severity:  SeverityHigh,
		Message: fmt.Sprintf("stored task list was unreadable at %s and was reset; a backup was kept",
			last.Time.Format("2006-01-02 15:04")),
		TriggeredAt: now,
	}}, nil
}

// checkAdvisorFailures looks at the latest suggestion outcomes and alerts
// when the newest AdvisorFailureStreak of them all failed.
func (ae *alertEngine) checkAdvisorFailures(now time.Time) ([]Alert, error) {
	streak := ae.thresholds.AdvisorFailureStreak
	if streak <= 0 {
		return nil, nil
	}
	events, err := ae.eventLog.Read(EventFilter{Type: "suggestion.*"})
	if err != nil {
		return nil, err
	}

	failures := 0
	for i := len(events) - 1; i >= 0 && failures < streak; i-- {
		switch events[i].Type {
		case "suggestion.failed":
			failures++
		case "suggestion.received":
			return nil, nil
		}
	}
	if failures < streak {
		return nil, nil
	}
	return []Alert{{
		ID:          "advisor-failing",
		Condition:   ConditionAdvisorFailing,
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("the last %d priority suggestions failed; check advisor settings", failures),
		TriggeredAt: now,
	}}, nil
}

func severityForPriority(p models.Priority) AlertSeverity {
	switch p {
	case models.PriorityHigh:
		return SeverityHigh
	case models.PriorityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
