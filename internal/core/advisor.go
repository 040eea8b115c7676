package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// ErrSuggestionUnavailable marks every advisor failure: transport errors,
// timeouts and responses that do not match the expected shape.
var ErrSuggestionUnavailable = errors.New("priority suggestion unavailable")

// SuggestionUnavailableError carries the underlying cause of a failed
// suggestion. errors.Is(err, ErrSuggestionUnavailable) holds for it.
type SuggestionUnavailableError struct {
	Cause error
}

func (e *SuggestionUnavailableError) Error() string {
	if e.Cause == nil {
		return ErrSuggestionUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSuggestionUnavailable, e.Cause)
}

func (e *SuggestionUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSuggestionUnavailable}
	}
	return []error{ErrSuggestionUnavailable, e.Cause}
}

// ClassificationRequest is the payload sent to the classification service.
type ClassificationRequest struct {
	TaskDetails    string `json:"taskDetails"`
	DueDate        string `json:"dueDate"`
	TaskParameters string `json:"taskParameters,omitempty"`
}

// ClassificationResponse is the raw, unvalidated reply of the service.
type ClassificationResponse struct {
	SuggestedPriority string `json:"suggestedPriority"`
	Reasoning         string `json:"reasoning"`
}

// Classifier performs one round trip to a classification service.
// Implementations live in the integration package.
type Classifier interface {
	Classify(ctx context.Context, req ClassificationRequest) (*ClassificationResponse, error)
}

// SuggestionInput holds the task fields a suggestion is based on.
type SuggestionInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	// Parameters is optional free text such as effort or dependencies.
	Parameters string
}

// Suggestion is a validated proposal from the advisor.
type Suggestion struct {
	Priority  models.Priority
	Reasoning string
}

// Apply returns a copy of input with the suggested priority set. Storing the
// result is left to the caller.
func (s Suggestion) Apply(input models.TaskInput) models.TaskInput {
	input.Priority = s.Priority
	return input
}

// PriorityAdvisor proposes a priority for a task. It never touches the task
// store.
type PriorityAdvisor interface {
	Suggest(ctx context.Context, input SuggestionInput) (*Suggestion, error)
}

type priorityAdvisor struct {
	classifier Classifier
	timeout    time.Duration
	events     EventLogger
	now        func() time.Time
}

// NewPriorityAdvisor creates a PriorityAdvisor on top of classifier. A
// positive timeout bounds each request. events may be nil.
func NewPriorityAdvisor(classifier Classifier, timeout time.Duration, events EventLogger) PriorityAdvisor {
	return &priorityAdvisor{
		classifier: classifier,
		timeout:    timeout,
		events:     events,
		now:        time.Now,
	}
}

// Suggest validates the input, issues exactly one classification request and
// checks the reply. Missing or invalid fields return ValidationErrors without
// contacting the service; every other failure is a SuggestionUnavailableError.
func (a *priorityAdvisor) Suggest(ctx context.Context, input SuggestionInput) (*Suggestion, error) {
	now := a.now()
	if err := ValidateSuggestionFields(input.Title, input.DueDate, now); err != nil {
		return nil, err
	}
	if a.classifier == nil {
		return nil, a.fail(&SuggestionUnavailableError{Cause: errors.New("no classifier configured")})
	}

	req := NewClassificationRequest(input, now.Location())
	logEvent(a.events, EventSuggestionRequested, map[string]any{"due_date": req.DueDate})

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.classifier.Classify(ctx, req)
	if err != nil {
		return nil, a.fail(&SuggestionUnavailableError{Cause: err})
	}

	suggestion, err := validateClassification(resp)
	if err != nil {
		return nil, a.fail(&SuggestionUnavailableError{Cause: err})
	}

	logEvent(a.events, EventSuggestionReceived, map[string]any{
		"priority": string(suggestion.Priority),
	})
	return suggestion, nil
}

func (a *priorityAdvisor) fail(err *SuggestionUnavailableError) error {
	logEvent(a.events, EventSuggestionFailed, map[string]any{"error": err.Error()})
	return err
}

// NewClassificationRequest builds the service payload: the title, followed by
// a newline and the description when there is one, and the due date as a
// calendar date in loc. input.DueDate must be set.
func NewClassificationRequest(input SuggestionInput, loc *time.Location) ClassificationRequest {
	details := strings.TrimSpace(input.Title)
	if desc := strings.TrimSpace(input.Description); desc != "" {
		details += "\n" + desc
	}
	return ClassificationRequest{
		TaskDetails:    details,
		DueDate:        input.DueDate.In(loc).Format(models.DateLayout),
		TaskParameters: strings.TrimSpace(input.Parameters),
	}
}

// validateClassification enforces the response schema exactly: the priority
// must be one of the three level names and reasoning must be non-empty.
func validateClassification(resp *ClassificationResponse) (*Suggestion, error) {
	if resp == nil {
		return nil, errors.New("empty response")
	}
	p := models.Priority(resp.SuggestedPriority)
	if !p.Valid() {
		return nil, fmt.Errorf("invalid suggestedPriority %q", resp.SuggestedPriority)
	}
	reasoning := strings.TrimSpace(resp.Reasoning)
	if reasoning == "" {
		return nil, errors.New("missing reasoning")
	}
	return &Suggestion{Priority: p, Reasoning: reasoning}, nil
}

// SuggestionOutcome is delivered by SuggestionSession.Request.
type SuggestionOutcome struct {
	Suggestion *Suggestion
	Err        error
}

// SuggestionSession ties suggestion requests to one editing context. A
// result is delivered only while its request is the latest one and the
// session is open; otherwise it is discarded and the channel is closed
// empty.
type SuggestionSession struct {
	advisor PriorityAdvisor

	mu         sync.Mutex
	generation uint64
	closed     bool
}

// NewSuggestionSession opens an editing context backed by advisor.
func NewSuggestionSession(advisor PriorityAdvisor) *SuggestionSession {
	return &SuggestionSession{advisor: advisor}
}

// Request starts a suggestion in the background. The returned channel yields
// at most one outcome and is then closed.
func (s *SuggestionSession) Request(ctx context.Context, input SuggestionInput) <-chan SuggestionOutcome {
	ch := make(chan SuggestionOutcome, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	go func() {
		defer close(ch)
		suggestion, err := s.advisor.Suggest(ctx, input)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || gen != s.generation {
			return
		}
		ch <- SuggestionOutcome{Suggestion: suggestion, Err: err}
	}()
	return ch
}

// Close ends the editing context. Pending results are discarded.
func (s *SuggestionSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
