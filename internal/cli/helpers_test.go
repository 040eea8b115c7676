package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/internal/storage"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// testNow is the fixed clock used by command tests.
var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// stubAdvisor answers every suggestion with a canned result.
type stubAdvisor struct {
	suggestion *core.Suggestion
	err        error
	calls      []core.SuggestionInput
}

func (s *stubAdvisor) Suggest(_ context.Context, input core.SuggestionInput) (*core.Suggestion, error) {
	s.calls = append(s.calls, input)
	return s.suggestion, s.err
}

// setupCLI installs a fresh in-memory task store, the fixed clock and
// advisor, and restores the previous package state when the test ends.
func setupCLI(t *testing.T, advisor core.PriorityAdvisor) core.TaskStore {
	t.Helper()

	origStore, origAdvisor, origNow := Store, Advisor, Now
	origAlerts, origMetrics, origEvents := AlertEngine, MetricsCalc, EventLog
	t.Cleanup(func() {
		Store, Advisor, Now = origStore, origAdvisor, origNow
		AlertEngine, MetricsCalc, EventLog = origAlerts, origMetrics, origEvents
	})

	store := core.NewTaskStore(storage.NewMemoryBlobStore(), core.NewTaskIDGenerator(), nil)
	if err := store.LoadAll(context.Background()); err != nil {
		t.Fatalf("loading store: %v", err)
	}
	Store = store
	Advisor = advisor
	Now = func() time.Time { return testNow }
	return store
}

// setupSharedCLI is setupCLI with a second store on the same blobs, standing
// in for another fanya process.
func setupSharedCLI(t *testing.T) (store, other core.TaskStore) {
	t.Helper()
	setupCLI(t, nil)

	blobs := storage.NewMemoryBlobStore()
	store = core.NewTaskStore(blobs, core.NewTaskIDGenerator(), nil)
	other = core.NewTaskStore(blobs, core.NewTaskIDGenerator(), nil)
	for _, s := range []core.TaskStore{store, other} {
		if err := s.LoadAll(context.Background()); err != nil {
			t.Fatalf("loading store: %v", err)
		}
	}
	Store = store
	return store, other
}

// runCommand executes the root command with args and stdin and returns what
// was written to stdout.
func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute()
	return out.String(), err
}

// resetFlags restores every flag of cmd and its children to its default so
// values do not leak between Execute calls.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func dayOffset(n int) *time.Time {
	d := models.StartOfDay(testNow).AddDate(0, 0, n)
	return &d
}

func addTask(t *testing.T, store core.TaskStore, title string, due *time.Time, p models.Priority) models.Task {
	t.Helper()
	task, err := store.Create(context.Background(), models.TaskInput{Title: title, DueDate: due, Priority: p})
	if err != nil {
		t.Fatalf("creating %q: %v", title, err)
	}
	return task
}
