package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// Field limits enforced before a task is created or updated.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Field names reported in validation errors.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldDueDate     = "dueDate"
	FieldPriority    = "priority"
)

// ValidationError identifies a rejected form field and the reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors collects every field failure found in one input.
// errors.As against *ValidationError finds the first one.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (es ValidationErrors) Unwrap() []error {
	errs := make([]error, len(es))
	for i, e := range es {
		errs[i] = e
	}
	return errs
}

// FieldError returns the validation failure for field, if err carries one.
func FieldError(err error, field string) (*ValidationError, bool) {
	var ves ValidationErrors
	if errors.As(err, &ves) {
		for _, ve := range ves {
			if ve.Field == field {
				return ve, true
			}
		}
		return nil, false
	}
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Field == field {
		return ve, true
	}
	return nil, false
}

// NormalizeTaskInput trims surrounding whitespace from the text fields.
func NormalizeTaskInput(in models.TaskInput) models.TaskInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// ValidateTaskInput checks the create/update constraints. The input is
// expected to be normalized already.
func ValidateTaskInput(in models.TaskInput) error {
	var errs ValidationErrors

	if ve := validateTitle(in.Title); ve != nil {
		errs = append(errs, ve)
	}
	if !utf8.ValidString(in.Description) {
		errs = append(errs, &ValidationError{Field: FieldDescription, Reason: errInvalidText})
	} else if n := utf8.RuneCountInString(in.Description); n > MaxDescriptionLength {
		errs = append(errs, &ValidationError{
			Field:  FieldDescription,
			Reason: fmt.Sprintf("must be %d characters or less, got %d", MaxDescriptionLength, n),
		})
	}
	if !in.Priority.Valid() {
		errs = append(errs, &ValidationError{
			Field:  FieldPriority,
			Reason: fmt.Sprintf("%q is not one of High, Medium, Low", in.Priority),
		})
	}
	if in.DueDate != nil && in.DueDate.IsZero() {
		errs = append(errs, &ValidationError{Field: FieldDueDate, Reason: "is not a valid date"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateSuggestionFields checks the fields a priority suggestion needs:
// a non-empty title and a valid due date that is not before today. Length
// limits belong to ValidateTaskInput and do not gate suggestions.
func ValidateSuggestionFields(title string, dueDate *time.Time, now time.Time) error {
	var errs ValidationErrors

	if strings.TrimSpace(title) == "" {
		errs = append(errs, &ValidationError{Field: FieldTitle, Reason: "is required"})
	}

	switch {
	case dueDate == nil:
		errs = append(errs, &ValidationError{Field: FieldDueDate, Reason: "a due date is needed for a priority suggestion"})
	case dueDate.IsZero():
		errs = append(errs, &ValidationError{Field: FieldDueDate, Reason: "is not a valid date"})
	case dueDate.Before(models.StartOfDay(now)):
		errs = append(errs, &ValidationError{Field: FieldDueDate, Reason: "must not be in the past"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CanSuggest reports whether the suggest trigger should be enabled. It gates
// only on the fields the advisor needs, not on overall form validity.
func CanSuggest(title string, dueDate *time.Time, now time.Time) bool {
	return ValidateSuggestionFields(title, dueDate, now) == nil
}

// errInvalidText is the reason given for text that is not valid UTF-8, which
// the collection document cannot store as a plain string.
const errInvalidText = "contains invalid UTF-8"

func validateTitle(title string) *ValidationError {
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return &ValidationError{Field: FieldTitle, Reason: "is required"}
	}
	if !utf8.ValidString(title) {
		return &ValidationError{Field: FieldTitle, Reason: errInvalidText}
	}
	if n > MaxTitleLength {
		return &ValidationError{
			Field:  FieldTitle,
			Reason: fmt.Sprintf("must be %d characters or less, got %d", MaxTitleLength, n),
		}
	}
	return nil
}
