package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// suggestionFallbackMessage is shown whenever the advisor cannot produce a
// usable suggestion. The task is left as it was.
const suggestionFallbackMessage = "Could not get a priority suggestion. Please set the priority manually."

// minIDPrefix is the shortest ID prefix accepted in place of a full ID.
const minIDPrefix = 4

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (add, edit, toggle, rm, list, suggest)",
	Long: `Task management commands.

Tasks are identified by their ID; any unique prefix of at least four
characters works too, so the short IDs shown by "fanya task list" can be
used directly.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a new task",
	Long: `Add a new task. The words of the title may be given without quotes.

With --suggest the priority advisor is asked for a priority first; it needs
a due date that is today or later. The suggestion is shown and applied only
after you confirm (or with --yes).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		out := cmd.OutOrStdout()

		descFlag, _ := cmd.Flags().GetString("desc")
		dueFlag, _ := cmd.Flags().GetString("due")
		priorityFlag, _ := cmd.Flags().GetString("priority")
		suggestFlag, _ := cmd.Flags().GetBool("suggest")
		paramsFlag, _ := cmd.Flags().GetString("params")
		yesFlag, _ := cmd.Flags().GetBool("yes")

		priority, err := models.ParsePriority(priorityFlag)
		if err != nil {
			return err
		}
		due, err := parseDueFlag(dueFlag)
		if err != nil {
			return err
		}
		input := models.TaskInput{
			Title:       strings.Join(args, " "),
			Description: descFlag,
			DueDate:     due,
			Priority:    priority,
		}

		if suggestFlag {
			input, err = suggestForInput(cmd, input, paramsFlag, yesFlag)
			if err != nil {
				return err
			}
		}

		task, err := Store.Create(commandContext(cmd), input)
		if err != nil {
			return fmt.Errorf("adding task: %w", err)
		}

		fmt.Fprintf(out, "Added %q to your list.\n", task.Title)
		writeTaskDetail(out, task, Now())
		return nil
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit the fields of a pending task",
	Long: `Change the title, description, due date or priority of a task. Only
the flags you pass are changed; --due "" removes the due date.

Completed tasks cannot be edited; reopen them with "fanya task toggle" first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		out := cmd.OutOrStdout()

		task, err := findTask(args[0])
		if err != nil {
			return err
		}
		if task.Completed {
			return fmt.Errorf("task %s is completed; reopen it with 'fanya task toggle %s' before editing", shortID(task.ID), shortID(task.ID))
		}

		flags := cmd.Flags()
		input := task.Input()
		if flags.Changed("title") {
			input.Title, _ = flags.GetString("title")
		}
		if flags.Changed("desc") {
			input.Description, _ = flags.GetString("desc")
		}
		if flags.Changed("due") {
			dueFlag, _ := flags.GetString("due")
			if input.DueDate, err = parseDueFlag(dueFlag); err != nil {
				return err
			}
		}
		if flags.Changed("priority") {
			priorityFlag, _ := flags.GetString("priority")
			if input.Priority, err = models.ParsePriority(priorityFlag); err != nil {
				return err
			}
		}

		if suggestFlag, _ := flags.GetBool("suggest"); suggestFlag {
			paramsFlag, _ := flags.GetString("params")
			yesFlag, _ := flags.GetBool("yes")
			if input, err = suggestForInput(cmd, input, paramsFlag, yesFlag); err != nil {
				return err
			}
		}

		task.Title = input.Title
		task.Description = input.Description
		task.DueDate = input.DueDate
		task.Priority = input.Priority

		found, err := Store.Update(commandContext(cmd), task)
		if err != nil {
			return fmt.Errorf("updating task %s: %w", shortID(task.ID), err)
		}
		if !found {
			return fmt.Errorf("task %s no longer exists", shortID(task.ID))
		}

		updated, _ := Store.Get(task.ID)
		fmt.Fprintf(out, "Updated %q.\n", updated.Title)
		writeTaskDetail(out, updated, Now())
		return nil
	},
}

var taskToggleCmd = &cobra.Command{
	Use:   "toggle <task-id>",
	Short: "Mark a task completed, or reopen a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		task, err := findTask(args[0])
		if err != nil {
			return err
		}

		status, err := toggleTask(commandContext(cmd), task)
		if err != nil {
			return fmt.Errorf("toggling task %s: %w", shortID(task.ID), err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

var taskRmCmd = &cobra.Command{
	Use:     "rm <task-id>",
	Aliases: []string{"delete"},
	Short:   "Permanently delete a task",
	Long: `Permanently delete a task. You are asked to confirm unless --yes is
given. This cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		out := cmd.OutOrStdout()

		task, err := findTask(args[0])
		if err != nil {
			return err
		}

		yesFlag, _ := cmd.Flags().GetBool("yes")
		if !yesFlag {
			prompt := fmt.Sprintf("Are you sure? This will permanently delete the task %q.", task.Title)
			if !confirm(cmd, prompt) {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		found, err := Store.Delete(commandContext(cmd), task.ID)
		if err != nil {
			return fmt.Errorf("deleting task %s: %w", shortID(task.ID), err)
		}
		if !found {
			return fmt.Errorf("deleting task %s: %w", shortID(task.ID), errTaskGone(task))
		}
		fmt.Fprintf(out, "Deleted %q.\n", task.Title)
		return nil
	},
}

// toggleTask flips the completion of task and describes the new state. The
// state is read back from the store, since another process may have changed
// it since task was fetched.
func toggleTask(ctx context.Context, task models.Task) (string, error) {
	found, err := Store.ToggleComplete(ctx, task.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errTaskGone(task)
	}
	if current, ok := Store.Get(task.ID); ok && current.Completed {
		return fmt.Sprintf("Completed %q.", task.Title), nil
	}
	return fmt.Sprintf("Reopened %q.", task.Title), nil
}

func errTaskGone(task models.Task) error {
	return fmt.Errorf("task %q no longer exists", task.Title)
}

// taskJSON is the --json representation of a task.
type taskJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    string `json:"priority"`
	Completed   bool   `json:"completed"`
	Overdue     bool   `json:"overdue"`
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks, soonest due first",
	Long: `List tasks sorted by due date (tasks without a due date last), then by
priority. Use --filter to show only pending or completed tasks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		out := cmd.OutOrStdout()
		now := Now()

		filterFlag, _ := cmd.Flags().GetString("filter")
		filter, err := models.ParseFilterStatus(filterFlag)
		if err != nil {
			return err
		}

		all := Store.Tasks()
		tasks := core.View(all, filter)

		if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
			items := make([]taskJSON, len(tasks))
			for i, t := range tasks {
				items[i] = taskJSON{
					ID:          t.ID,
					Title:       t.Title,
					Description: t.Description,
					Priority:    string(t.Priority),
					Completed:   t.Completed,
					Overdue:     t.IsOverdue(now),
				}
				if t.DueDate != nil {
					items[i].DueDate = t.DueDate.In(now.Location()).Format(models.DateLayout)
				}
			}
			data, err := json.MarshalIndent(items, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting tasks as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(all) == 0 {
			fmt.Fprintln(out, "Your task list is empty. Add one with: fanya task add <title>")
			return nil
		}
		if len(tasks) == 0 {
			fmt.Fprintf(out, "No %s tasks found. Try a different --filter.\n", filter)
			return nil
		}

		counts := core.CountByStatus(all)
		fmt.Fprintf(out, "%d pending, %d completed\n\n", counts.Pending, counts.Completed)
		for _, t := range tasks {
			writeTaskLine(out, t, now)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show every field of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		task, err := findTask(args[0])
		if err != nil {
			return err
		}
		writeTaskDetail(cmd.OutOrStdout(), task, Now())
		return nil
	},
}

var taskSuggestCmd = &cobra.Command{
	Use:   "suggest <task-id>",
	Short: "Ask the priority advisor for a suggested priority",
	Long: `Ask the priority advisor to suggest a priority for an existing task.
The task needs a due date that is today or later.

The suggestion is shown with its reasoning. It is applied only after you
confirm, or straight away with --apply.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		task, err := findTask(args[0])
		if err != nil {
			return err
		}
		if task.Completed {
			return fmt.Errorf("task %s is completed; reopen it before changing its priority", shortID(task.ID))
		}

		paramsFlag, _ := cmd.Flags().GetString("params")
		applyFlag, _ := cmd.Flags().GetBool("apply")

		input, err := suggestForInput(cmd, task.Input(), paramsFlag, applyFlag)
		if err != nil {
			return err
		}
		if input.Priority == task.Priority {
			return nil
		}

		task.Priority = input.Priority
		if _, err := Store.Update(commandContext(cmd), task); err != nil {
			return fmt.Errorf("updating task %s priority: %w", shortID(task.ID), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Priority of %q set to %s.\n", task.Title, renderPriority(task.Priority))
		return nil
	},
}

// suggestForInput asks the advisor about input and returns input with the
// suggested priority applied when the user accepts it. Validation failures
// are returned; an unavailable advisor prints the fallback message and
// leaves input unchanged.
func suggestForInput(cmd *cobra.Command, input models.TaskInput, params string, accept bool) (models.TaskInput, error) {
	out := cmd.OutOrStdout()
	if Advisor == nil {
		fmt.Fprintln(out, suggestionFallbackMessage)
		return input, nil
	}

	fmt.Fprintln(out, mutedStyle.Render("Asking the priority advisor..."))
	suggestion, err := Advisor.Suggest(commandContext(cmd), core.SuggestionInput{
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Parameters:  params,
	})
	if err != nil {
		if errors.Is(err, core.ErrSuggestionUnavailable) {
			fmt.Fprintln(out, suggestionFallbackMessage)
			return input, nil
		}
		return input, fmt.Errorf("cannot suggest a priority: %w", err)
	}

	fmt.Fprintf(out, "Suggested priority: %s\n", renderPriority(suggestion.Priority))
	fmt.Fprintf(out, "  Reasoning: %s\n", suggestion.Reasoning)

	if suggestion.Priority == input.Priority {
		fmt.Fprintln(out, "The task already has this priority.")
		return input, nil
	}
	if !accept && !confirm(cmd, fmt.Sprintf("Apply %s instead of %s?", suggestion.Priority, input.Priority)) {
		fmt.Fprintln(out, "Suggestion not applied.")
		return input, nil
	}
	return suggestion.Apply(input), nil
}

// findTask resolves a full task ID or a unique ID prefix.
func findTask(ref string) (models.Task, error) {
	ref = strings.TrimSpace(ref)
	if task, ok := Store.Get(ref); ok {
		return task, nil
	}
	if len(ref) < minIDPrefix {
		return models.Task{}, fmt.Errorf("task %q not found (use at least %d characters of the ID)", ref, minIDPrefix)
	}

	var matches []models.Task
	for _, t := range Store.Tasks() {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return models.Task{}, fmt.Errorf("task %q not found", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Task{}, fmt.Errorf("task ID prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// parseDueFlag reads a YYYY-MM-DD date as local midnight. An empty value
// means no due date.
func parseDueFlag(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(models.DateLayout, s, Now().Location())
	if err != nil {
		return nil, fmt.Errorf("invalid --due %q: use YYYY-MM-DD", s)
	}
	return &d, nil
}

// confirm asks a yes/no question on the command's input. Anything other than
// y or yes, including end of input, is a no.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func init() {
	taskAddCmd.Flags().String("desc", "", "Task description (at most 500 characters)")
	taskAddCmd.Flags().String("due", "", "Due date as YYYY-MM-DD")
	taskAddCmd.Flags().String("priority", string(models.PriorityMedium), "Priority: High, Medium or Low")
	taskAddCmd.Flags().Bool("suggest", false, "Ask the priority advisor before adding")
	taskAddCmd.Flags().String("params", "", "Extra context for the advisor, such as effort or dependencies")
	taskAddCmd.Flags().BoolP("yes", "y", false, "Apply a suggestion without asking")

	taskEditCmd.Flags().String("title", "", "New title")
	taskEditCmd.Flags().String("desc", "", "New description")
	taskEditCmd.Flags().String("due", "", `New due date as YYYY-MM-DD ("" removes it)`)
	taskEditCmd.Flags().String("priority", "", "New priority: High, Medium or Low")
	taskEditCmd.Flags().Bool("suggest", false, "Ask the priority advisor using the edited fields")
	taskEditCmd.Flags().String("params", "", "Extra context for the advisor")
	taskEditCmd.Flags().BoolP("yes", "y", false, "Apply a suggestion without asking")

	taskRmCmd.Flags().BoolP("yes", "y", false, "Delete without asking")

	taskListCmd.Flags().String("filter", string(models.FilterAll), "Which tasks to show: all, pending or completed")
	taskListCmd.Flags().Bool("json", false, "Output tasks as JSON")

	taskSuggestCmd.Flags().String("params", "", "Extra context for the advisor, such as effort or dependencies")
	taskSuggestCmd.Flags().Bool("apply", false, "Apply the suggestion without asking")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskToggleCmd)
	taskCmd.AddCommand(taskRmCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskSuggestCmd)
	rootCmd.AddCommand(taskCmd)
}
