package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display task and advisor activity",
	Long: `Display aggregated metrics derived from the event log.

Metrics include how many tasks were created, completed, reopened and
deleted, how many priority suggestions were requested and how many of them
succeeded, and whether the stored task list was ever found corrupt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (the event log may be disabled)")
		}
		out := cmd.OutOrStdout()

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		// Table format.
		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format(models.DateLayout))
		fmt.Fprintf(out, "  %-24s %s\n", "Events recorded:", humanize.Comma(int64(metrics.EventCount)))
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks created:", metrics.TasksCreated)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks updated:", metrics.TasksUpdated)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks completed:", metrics.TasksCompleted)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks reopened:", metrics.TasksReopened)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks deleted:", metrics.TasksDeleted)

		writePriorityCounts(cmd, "Created by priority:", metrics.CreatedByPriority)

		fmt.Fprintf(out, "\n  %-24s %d\n", "Suggestions requested:", metrics.SuggestionsRequested)
		fmt.Fprintf(out, "  %-24s %d\n", "Suggestions received:", metrics.SuggestionsReceived)
		fmt.Fprintf(out, "  %-24s %d\n", "Suggestions failed:", metrics.SuggestionsFailed)
		if metrics.SuggestionsReceived+metrics.SuggestionsFailed > 0 {
			fmt.Fprintf(out, "  %-24s %s%%\n", "Success rate:", humanize.FtoaWithDigits(metrics.SuggestionSuccessRate()*100, 1))
		}

		writePriorityCounts(cmd, "Suggested priorities:", metrics.SuggestedByPriority)

		if metrics.CorruptLoads > 0 {
			fmt.Fprintf(out, "\n  %-24s %d\n", "Corrupt loads:", metrics.CorruptLoads)
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s (%s)\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339), humanize.Time(*metrics.OldestEvent))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s (%s)\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339), humanize.Time(*metrics.NewestEvent))
		}

		return nil
	},
}

// writePriorityCounts prints a per-priority breakdown in High, Medium, Low
// order, followed by any unexpected keys in name order.
func writePriorityCounts(cmd *cobra.Command, heading string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n  %s\n", heading)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := models.Priority(keys[i]).Rank(), models.Priority(keys[j]).Rank()
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(out, "    %-20s %d\n", k+":", counts[k])
	}
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
