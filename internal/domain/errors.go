package domain

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidAttempt is the root of every rejected submission. Invalid attempts are never recorded.
	ErrInvalidAttempt = errors.New("invalid attempt")
	// ErrPermissionDenied is returned when an attempt lacks the permission its activity requires.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNoGradableQuestions is returned when a caller opts to reject exams with no matched questions.
	ErrNoGradableQuestions = errors.New("no gradable questions in submission")
	// ErrContentAlreadyAwarded signals a lost race on the content idempotency ledger.
	ErrContentAlreadyAwarded = errors.New("content already awarded")
	// ErrExamNotFound indicates the exam config could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrMinigameNotFound indicates the mini-game config could not be loaded.
	ErrMinigameNotFound = errors.New("minigame not found")
	// ErrContentNotFound indicates the content award could not be loaded.
	ErrContentNotFound = errors.New("content not found")
)

// InvalidAttemptError lists what was wrong with an attempt.
type InvalidAttemptError struct {
	Reasons []string
}

func NewInvalidAttempt(reasons ...string) *InvalidAttemptError {
	return &InvalidAttemptError{Reasons: reasons}
}

func (e *InvalidAttemptError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrInvalidAttempt.Error()
	}
	return ErrInvalidAttempt.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *InvalidAttemptError) Unwrap() error {
	return ErrInvalidAttempt
}
