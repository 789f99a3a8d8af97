package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session has not been started or was discarded.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrPlayerNotFound is returned when a player id does not exist in the player store.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrQuestionNotFound is returned when a question id does not exist in the question bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestion rejects a question with missing text or answer, or an out of range difficulty or rating.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrCategoryNotFound indicates a category filter names an unknown category.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrInvalidCategory rejects a new category with an empty name.
	ErrInvalidCategory = errors.New("category name must not be empty")
	// ErrCategoryExists is returned when a category with the same name exists.
	ErrCategoryExists = errors.New("category already exists")
	// ErrInvalidUsername is returned when creating a player with an empty username.
	ErrInvalidUsername = errors.New("username must not be empty")
	// ErrUsernameTaken is returned when a player with the same username exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrActionInFlight rejects an action while another one is waiting on an external call.
	ErrActionInFlight = errors.New("another action is still in progress")
	// ErrStaleResponse marks a response that arrived after its session was restarted.
	ErrStaleResponse = errors.New("response belongs to an abandoned session")

	// ErrDataIntegrity is the root of contract violations. They are rejected and
	// never partially applied.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrInvalidPhase is returned when an action is not allowed in the session's phase.
	ErrInvalidPhase = fmt.Errorf("%w: action not allowed in current phase", ErrDataIntegrity)
	// ErrMissingAnswer indicates a question without an expected answer.
	ErrMissingAnswer = fmt.Errorf("%w: question has no expected answer", ErrDataIntegrity)
	// ErrRepeatedQuestion indicates the supplier returned a question the session already saw.
	ErrRepeatedQuestion = fmt.Errorf("%w: question was already asked in this session", ErrDataIntegrity)

	// ErrTransient matches every TransientError.
	ErrTransient = errors.New("transient io failure")
)

// TransientError wraps a failed call to an external collaborator. The session is
// left untouched so the action can be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

// Transient wraps err as a TransientError unless it already reports a contract violation.
func Transient(op string, err error) error {
	if err == nil || errors.Is(err, ErrDataIntegrity) || errors.Is(err, ErrTransient) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
