package integration

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	urgentWithinDays = 2
	soonWithinDays   = 7
)

// urgencyMarkers in the task parameters raise the suggestion by one level.
var urgencyMarkers = []string{"urgent", "blocker", "blocking", "asap", "critical"}

type offlineClassifier struct {
	now func() time.Time
}

// NewOfflineClassifier creates a PriorityClassifier that works without a
// network. It ranks by days until the due date: two or fewer is High, a week
// or fewer is Medium, anything later is Low. now may be nil.
func NewOfflineClassifier(now func() time.Time) PriorityClassifier {
	if now == nil {
		now = time.Now
	}
	return &offlineClassifier{now: now}
}

func (c *offlineClassifier) Classify(ctx context.Context, req PriorityRequest) (*PriorityResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.now()
	due, err := time.ParseInLocation("2006-01-02", req.DueDate, now.Location())
	if err != nil {
		return nil, fmt.Errorf("parsing due date %q: %w", req.DueDate, err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := int(math.Round(due.Sub(today).Hours() / 24))

	level := 2
	switch {
	case days <= urgentWithinDays:
		level = 0
	case days <= soonWithinDays:
		level = 1
	}

	reasons := []string{fmt.Sprintf("due %s (%s)", humanize.RelTime(due, today, "ago", "from now"), req.DueDate)}
	params := strings.ToLower(req.TaskParameters)
	for _, marker := range urgencyMarkers {
		if strings.Contains(params, marker) {
			if level > 0 {
				level--
			}
			reasons = append(reasons, fmt.Sprintf("parameters mention %q", marker))
			break
		}
	}

	names := [...]string{"High", "Medium", "Low"}
	return &PriorityResponse{
		SuggestedPriority: names[level],
		Reasoning:         "Offline estimate: " + strings.Join(reasons, ", ") + ".",
	}, nil
}
