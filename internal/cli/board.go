package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// boardFilters is the order the filter key cycles through.
var boardFilters = []models.FilterStatus{models.FilterAll, models.FilterPending, models.FilterCompleted}

type boardModel struct {
	width  int
	height int

	filter models.FilterStatus
	cursor int

	// Data.
	all    []models.Task
	view   []models.Task
	alerts []alertSnapshot

	// Pending delete confirmation for the selected task.
	confirmDelete bool

	// Priority suggestion for the task with ID suggestionFor.
	session       *core.SuggestionSession
	suggesting    bool
	suggestionFor string
	suggestion    *core.Suggestion

	// State.
	loading bool
	status  string
	err     error
}

type alertSnapshot struct {
	severity string
	message  string
}

// boardLoadedMsg carries loaded data back to the model.
type boardLoadedMsg struct {
	tasks  []models.Task
	alerts []alertSnapshot
	err    error
}

// boardActionMsg reports the outcome of a mutation.
type boardActionMsg struct {
	status string
	err    error
}

// boardSuggestionMsg carries a suggestion outcome for taskID.
type boardSuggestionMsg struct {
	taskID  string
	outcome core.SuggestionOutcome
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel(advisor core.PriorityAdvisor) boardModel {
	m := boardModel{
		filter:  models.FilterAll,
		loading: true,
	}
	if advisor != nil {
		m.session = core.NewSuggestionSession(advisor)
	}
	return m
}

func (m boardModel) Init() tea.Cmd {
	return loadBoard
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmDelete {
			return m.updateConfirm(msg)
		}
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.all = msg.tasks
		m.alerts = msg.alerts
		m.err = nil
		m.refreshView()
		return m, nil

	case boardActionMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = msg.status
		}
		m.loading = true
		return m, loadBoard

	case boardSuggestionMsg:
		m.suggesting = false
		if msg.taskID != m.suggestionFor {
			return m, nil
		}
		if msg.outcome.Err != nil {
			m.suggestion = nil
			m.suggestionFor = ""
			m.status = suggestionErrorText(msg.outcome.Err)
			return m, nil
		}
		m.suggestion = msg.outcome.Suggestion
		m.status = ""
		return m, nil
	}

	return m, nil
}

func (m boardModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		if m.session != nil {
			m.session.Close()
		}
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.clearSuggestion()
		}
	case "down", "j":
		if m.cursor < len(m.view)-1 {
			m.cursor++
			m.clearSuggestion()
		}
	case "tab", "f":
		m.filter = nextFilter(m.filter)
		m.cursor = 0
		m.clearSuggestion()
		m.refreshView()
	case "r":
		m.loading = true
		return m, loadBoard
	case " ", "x":
		if task, ok := m.selected(); ok {
			m.clearSuggestion()
			return m, toggleTaskCmd(task)
		}
	case "d":
		if _, ok := m.selected(); ok {
			m.confirmDelete = true
		}
	case "s":
		return m.requestSuggestion()
	case "a":
		if task, ok := m.selected(); ok && m.suggestion != nil && m.suggestionFor == task.ID {
			s := *m.suggestion
			m.clearSuggestion()
			return m, applySuggestionCmd(task, s)
		}
	}
	return m, nil
}

func (m boardModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmDelete = false
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	task, ok := m.selected()
	if !ok || (msg.String() != "y" && msg.String() != "Y") {
		m.status = "Delete cancelled."
		return m, nil
	}
	m.clearSuggestion()
	return m, deleteTaskCmd(task)
}

func (m boardModel) requestSuggestion() (tea.Model, tea.Cmd) {
	task, ok := m.selected()
	if !ok {
		return m, nil
	}
	if m.session == nil {
		m.status = suggestionFallbackMessage
		return m, nil
	}
	if task.Completed {
		m.status = "Reopen the task before changing its priority."
		return m, nil
	}
	if err := core.ValidateSuggestionFields(task.Title, task.DueDate, Now()); err != nil {
		m.status = suggestionErrorText(err)
		return m, nil
	}

	m.suggesting = true
	m.suggestion = nil
	m.suggestionFor = task.ID
	m.status = "Asking the priority advisor..."

	ch := m.session.Request(context.Background(), core.SuggestionInput{
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate,
	})
	return m, waitForSuggestion(task.ID, ch)
}

func (m *boardModel) clearSuggestion() {
	m.suggesting = false
	m.suggestion = nil
	m.suggestionFor = ""
}

func (m *boardModel) refreshView() {
	m.view = core.View(m.all, m.filter)
	if m.cursor >= len(m.view) {
		m.cursor = len(m.view) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m boardModel) selected() (models.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view) {
		return models.Task{}, false
	}
	return m.view[m.cursor], true
}

func (m boardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Fanya Focus ")
	help := helpStyle.Render("↑/↓: move | space: toggle | d: delete | s: suggest | a: apply | tab: filter | r: refresh | q: quit")

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}
	if m.loading && m.all == nil {
		return fmt.Sprintf("%s\n\n  Loading tasks...\n\n%s", title, help)
	}

	panelWidth := m.width - 4
	if panelWidth < 20 {
		panelWidth = 20
	}
	body := panelStyle.Width(panelWidth).Render(m.renderTasksPanel())
	if len(m.alerts) > 0 {
		body = lipgloss.JoinVertical(lipgloss.Left, body, panelStyle.Width(panelWidth).Render(m.renderAlertsPanel()))
	}

	footer := m.status
	switch {
	case m.confirmDelete:
		if task, ok := m.selected(); ok {
			footer = warnStyle.Render(fmt.Sprintf("Are you sure? This will permanently delete %q. [y/N]", task.Title))
		}
	case m.suggestion != nil:
		footer = fmt.Sprintf("Suggested %s: %s  (a: apply)", renderPriority(m.suggestion.Priority), m.suggestion.Reasoning)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", title, body, footer, help)
}

func (m boardModel) renderTasksPanel() string {
	var b strings.Builder
	counts := core.CountByStatus(m.all)
	b.WriteString(headerStyle.Render(fmt.Sprintf("Tasks (%s)  %d pending, %d completed", m.filter, counts.Pending, counts.Completed)))
	b.WriteString("\n\n")

	if len(m.all) == 0 {
		b.WriteString("  Your task list is empty. Add one with: fanya task add <title>")
		return b.String()
	}
	if len(m.view) == 0 {
		b.WriteString("  No tasks found. Press tab to change the filter.")
		return b.String()
	}

	now := Now()
	for i, t := range m.view {
		var line strings.Builder
		writeTaskLine(&line, t, now)
		row := strings.TrimRight(line.String(), "\n")
		if i == m.cursor {
			row = cursorStyle.Render(">") + strings.TrimPrefix(row, " ")
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}

func (m boardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	return b.String()
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func nextFilter(f models.FilterStatus) models.FilterStatus {
	for i, candidate := range boardFilters {
		if candidate == f {
			return boardFilters[(i+1)%len(boardFilters)]
		}
	}
	return models.FilterAll
}

func suggestionErrorText(err error) string {
	if ve, ok := core.FieldError(err, core.FieldDueDate); ok {
		return "A due date of today or later is needed for a suggestion (" + ve.Reason + ")."
	}
	if _, ok := core.FieldError(err, core.FieldTitle); ok {
		return "A title is needed for a suggestion."
	}
	return suggestionFallbackMessage
}

func loadBoard() tea.Msg {
	result := boardLoadedMsg{}

	if Store == nil {
		result.err = fmt.Errorf("task store not initialized")
		return result
	}
	if err := Store.Refresh(context.Background()); err != nil {
		result.err = err
		return result
	}
	result.tasks = Store.Tasks()

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate(Now())
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))
		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
			})
		}
	}

	return result
}

func toggleTaskCmd(task models.Task) tea.Cmd {
	return func() tea.Msg {
		status, err := toggleTask(context.Background(), task)
		if err != nil {
			return boardActionMsg{err: err}
		}
		return boardActionMsg{status: status}
	}
}

func deleteTaskCmd(task models.Task) tea.Cmd {
	return func() tea.Msg {
		found, err := Store.Delete(context.Background(), task.ID)
		if err != nil {
			return boardActionMsg{err: err}
		}
		if !found {
			return boardActionMsg{err: errTaskGone(task)}
		}
		return boardActionMsg{status: fmt.Sprintf("Deleted %q.", task.Title)}
	}
}

func applySuggestionCmd(task models.Task, s core.Suggestion) tea.Cmd {
	return func() tea.Msg {
		task.Priority = s.Priority
		found, err := Store.Update(context.Background(), task)
		if err != nil {
			return boardActionMsg{err: err}
		}
		if !found {
			return boardActionMsg{err: errTaskGone(task)}
		}
		return boardActionMsg{status: fmt.Sprintf("Priority of %q set to %s.", task.Title, s.Priority)}
	}
}

// waitForSuggestion delivers the session outcome, or nothing when the
// request was superseded or the session closed.
func waitForSuggestion(taskID string, ch <-chan core.SuggestionOutcome) tea.Cmd {
	return func() tea.Msg {
		outcome, ok := <-ch
		if !ok {
			return nil
		}
		return boardSuggestionMsg{taskID: taskID, outcome: outcome}
	}
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Interactive TUI board for your tasks",
	Long: `Launch an interactive terminal board showing your tasks soonest-first,
with any active alerts underneath.

Move with the arrow keys, toggle completion with space, delete with d, ask
for a priority suggestion with s and apply it with a. Tab cycles the
filter between all, pending and completed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("task store not initialized")
		}
		p := tea.NewProgram(newBoardModel(Advisor), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
