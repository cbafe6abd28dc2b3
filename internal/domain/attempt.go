package domain

import (
	"fmt"
	"time"
)

// ScoreAttempt describes one scored activity. Exactly one payload is set and it matches Kind;
// LOGIN carries none. Build attempts with the New*Attempt constructors.
type ScoreAttempt struct {
	Kind           ActivityKind    `json:"kind"`
	UserID         string          `json:"userId"`
	OccurredAt     time.Time       `json:"occurredAt"`
	ElapsedSeconds *int            `json:"elapsedSeconds,omitempty"`
	Permissions    []string        `json:"permissions,omitempty"`
	Exam           *ExamSubmission `json:"exam,omitempty"`
	Minigame       *MinigameResult `json:"minigame,omitempty"`
	Content        *ContentEvent   `json:"content,omitempty"`
	Admin          *AdminAward     `json:"admin,omitempty"`
}

func NewExamAttempt(userID string, at time.Time, examID string, answers map[string]string, elapsedSeconds *int) (ScoreAttempt, error) {
	a := ScoreAttempt{
		Kind:           ActivityExam,
		UserID:         userID,
		OccurredAt:     at,
		ElapsedSeconds: elapsedSeconds,
		Exam:           &ExamSubmission{ExamID: examID, Answers: answers},
	}
	return a, a.Validate()
}

func NewMinigameAttempt(userID string, at time.Time, result MinigameResult, elapsedSeconds *int) (ScoreAttempt, error) {
	a := ScoreAttempt{
		Kind:           ActivityMinigame,
		UserID:         userID,
		OccurredAt:     at,
		ElapsedSeconds: elapsedSeconds,
		Minigame:       &result,
	}
	return a, a.Validate()
}

func NewContentAttempt(userID string, at time.Time, contentID string) (ScoreAttempt, error) {
	a := ScoreAttempt{
		Kind:       ActivityContentListen,
		UserID:     userID,
		OccurredAt: at,
		Content:    &ContentEvent{ContentID: contentID},
	}
	return a, a.Validate()
}

func NewLoginAttempt(userID string, at time.Time) (ScoreAttempt, error) {
	a := ScoreAttempt{Kind: ActivityLogin, UserID: userID, OccurredAt: at}
	return a, a.Validate()
}

func NewAdminAward(userID string, at time.Time, amount int, reason string) (ScoreAttempt, error) {
	a := ScoreAttempt{
		Kind:       ActivityAdminAward,
		UserID:     userID,
		OccurredAt: at,
		Admin:      &AdminAward{Amount: amount, Reason: reason},
	}
	return a, a.Validate()
}

// WithPermissions returns a copy of the attempt carrying the caller's granted permissions.
func (a ScoreAttempt) WithPermissions(perms ...string) ScoreAttempt {
	a.Permissions = append([]string(nil), perms...)
	return a
}

// HasPermission reports whether perm was granted. An empty perm is always satisfied.
func (a ScoreAttempt) HasPermission(perm string) bool {
	if perm == "" {
		return true
	}
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// SourceID is the exam, mini-game or content id the attempt refers to.
func (a ScoreAttempt) SourceID() string {
	switch a.Kind {
	case ActivityExam:
		if a.Exam != nil {
			return a.Exam.ExamID
		}
	case ActivityMinigame:
		if a.Minigame != nil {
			return a.Minigame.MinigameID
		}
	case ActivityContentListen:
		if a.Content != nil {
			return a.Content.ContentID
		}
	}
	return ""
}

// Validate checks the attempt's shape. It returns an *InvalidAttemptError listing every problem.
func (a ScoreAttempt) Validate() error {
	var reasons []string
	if !a.Kind.Valid() {
		return NewInvalidAttempt(fmt.Sprintf("unknown activity kind %q", a.Kind))
	}
	if a.UserID == "" {
		reasons = append(reasons, "userId is required")
	}
	if a.OccurredAt.IsZero() {
		reasons = append(reasons, "occurredAt is required")
	}
	if a.ElapsedSeconds != nil && *a.ElapsedSeconds < 0 {
		reasons = append(reasons, "elapsedSeconds must not be negative")
	}

	payloads := 0
	for _, set := range []bool{a.Exam != nil, a.Minigame != nil, a.Content != nil, a.Admin != nil} {
		if set {
			payloads++
		}
	}
	want := 1
	if a.Kind == ActivityLogin {
		want = 0
	}
	if payloads != want {
		reasons = append(reasons, fmt.Sprintf("%s attempt must carry exactly %d payload(s), got %d", a.Kind, want, payloads))
	}

	switch a.Kind {
	case ActivityExam:
		if a.Exam == nil {
			break
		}
		if a.Exam.ExamID == "" {
			reasons = append(reasons, "exam.examId is required")
		}
		if a.Exam.Answers == nil {
			reasons = append(reasons, "exam.answers is required")
		}
	case ActivityMinigame:
		if a.Minigame == nil {
			break
		}
		if a.Minigame.MinigameID == "" {
			reasons = append(reasons, "minigame.minigameId is required")
		}
		if a.Minigame.Score < 0 {
			reasons = append(reasons, "minigame.score must not be negative")
		}
		if a.Minigame.MaxPossibleScore < 0 {
			reasons = append(reasons, "minigame.maxPossibleScore must not be negative")
		}
	case ActivityContentListen:
		if a.Content != nil && a.Content.ContentID == "" {
			reasons = append(reasons, "content.contentId is required")
		}
	case ActivityAdminAward:
		if a.Admin != nil && a.Admin.Reason == "" {
			reasons = append(reasons, "admin.reason is required")
		}
	}

	if len(reasons) > 0 {
		return NewInvalidAttempt(reasons...)
	}
	return nil
}
