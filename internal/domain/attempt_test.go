package domain

import (
	"errors"
	"testing"
	"time"
)

func TestConstructorsValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := NewExamAttempt("u1", now, "exam-1", map[string]string{"q1": "A"}, nil); err != nil {
		t.Fatalf("valid exam attempt rejected: %v", err)
	}
	if _, err := NewExamAttempt("u1", now, "", map[string]string{"q1": "A"}, nil); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("expected missing exam id to be invalid, got %v", err)
	}
	neg := -1
	if _, err := NewMinigameAttempt("u1", now, MinigameResult{MinigameID: "m1", Score: 1, MaxPossibleScore: 1}, &neg); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("expected negative elapsed to be invalid, got %v", err)
	}
	if _, err := NewMinigameAttempt("u1", now, MinigameResult{MinigameID: "m1", Score: -5, MaxPossibleScore: 10}, nil); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("expected negative score to be invalid, got %v", err)
	}
	if _, err := NewAdminAward("u1", now, 50, ""); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("expected admin award without reason to be invalid, got %v", err)
	}
	if _, err := NewLoginAttempt("", now); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("expected missing user to be invalid, got %v", err)
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	a := ScoreAttempt{
		Kind:       ActivityLogin,
		UserID:     "u1",
		OccurredAt: time.Now(),
		Content:    &ContentEvent{ContentID: "c1"},
	}
	var invalid *InvalidAttemptError
	if err := a.Validate(); !errors.As(err, &invalid) || len(invalid.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", err)
	}
}

func TestSourceID(t *testing.T) {
	now := time.Now()
	exam, _ := NewExamAttempt("u1", now, "exam-9", map[string]string{}, nil)
	content, _ := NewContentAttempt("u1", now, "pod-3")
	login, _ := NewLoginAttempt("u1", now)
	if exam.SourceID() != "exam-9" || content.SourceID() != "pod-3" || login.SourceID() != "" {
		t.Fatalf("unexpected source ids %q %q %q", exam.SourceID(), content.SourceID(), login.SourceID())
	}
}
