package cli

import (
	"time"

	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	Store   core.TaskStore
	Advisor core.PriorityAdvisor

	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator

	BasePath string

	// Now is the clock used for relative due dates, overdue flags and alerts.
	Now = time.Now
)
