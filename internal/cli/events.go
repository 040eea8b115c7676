package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/fanya-focus/internal/observability"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent entries of the event log",
	Long: `Show the most recent entries of the event log, newest last.

--type accepts an exact event type such as task.created or a prefix ending
in "*" such as suggestion.*.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil {
			return fmt.Errorf("event log not initialized (it may be disabled in the config)")
		}
		out := cmd.OutOrStdout()
		flags := cmd.Flags()

		sinceFlag, _ := flags.GetString("since")
		typeFlag, _ := flags.GetString("type")
		taskFlag, _ := flags.GetString("task")
		limitFlag, _ := flags.GetInt("limit")
		jsonFlag, _ := flags.GetBool("json")

		sinceTime, err := parseSinceDuration(sinceFlag)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		events, err := EventLog.Read(observability.EventFilter{
			Since:  &sinceTime,
			Type:   typeFlag,
			TaskID: taskFlag,
			Limit:  limitFlag,
		})
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}

		if jsonFlag {
			data, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting events as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(out, "No events recorded in this window.")
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("  %s  %-5s  %-20s", e.Time.In(Now().Location()).Format(time.DateTime), e.Level, e.Type)
			if id := e.TaskID(); id != "" {
				line += "  " + shortID(id)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().String("since", "7d", "Time window (e.g. 7d, 24h)")
	eventsCmd.Flags().String("type", "", "Only events of this type (a trailing * matches a prefix)")
	eventsCmd.Flags().String("task", "", "Only events about this task ID")
	eventsCmd.Flags().Int("limit", 50, "Show at most this many of the newest events (0 for all)")
	eventsCmd.Flags().Bool("json", false, "Output events as JSON")
	rootCmd.AddCommand(eventsCmd)
}
