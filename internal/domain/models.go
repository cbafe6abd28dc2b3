package domain

import "time"

// ActivityKind identifies the kind of activity a ScoreAttempt describes.
type ActivityKind string

const (
	ActivityExam          ActivityKind = "EXAM"
	ActivityMinigame      ActivityKind = "MINIGAME"
	ActivityContentListen ActivityKind = "CONTENT_LISTEN"
	ActivityLogin         ActivityKind = "LOGIN"
	ActivityAdminAward    ActivityKind = "ADMIN_AWARD"
)

// Valid reports whether k is one of the known activity kinds.
func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityExam, ActivityMinigame, ActivityContentListen, ActivityLogin, ActivityAdminAward:
		return true
	}
	return false
}

// ExamSubmission carries the answers a user submitted for an exam.
type ExamSubmission struct {
	ExamID  string            `json:"examId"`
	Answers map[string]string `json:"answers"` // questionID -> answer key
}

// MinigameResult is the scoring output of a finished mini-game play.
type MinigameResult struct {
	MinigameID       string `json:"minigameId"`
	Score            int    `json:"score"`
	MaxPossibleScore int    `json:"maxPossibleScore"`
}

// ContentEvent signals that a piece of content (podcast, lesson) was consumed.
type ContentEvent struct {
	ContentID string `json:"contentId"`
}

// AdminAward is a manual XP grant or correction.
type AdminAward struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// AwardLogEntry is one XP award as remembered for daily cap enforcement.
type AwardLogEntry struct {
	UserID    string       `json:"userId"`
	Kind      ActivityKind `json:"kind"`
	SourceID  string       `json:"sourceId"`
	Amount    int          `json:"amount"`
	AwardedAt time.Time    `json:"awardedAt"`
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// UserProgressionState is the stored progression of a user.
// CurrentLevel is a cache of LevelFor(CumulativeXP) and is never trusted as input.
type UserProgressionState struct {
	UserID        string          `json:"userId"`
	CumulativeXP  int             `json:"cumulativeXp"`
	CurrentLevel  int             `json:"currentLevel"`
	DailyAwardLog []AwardLogEntry `json:"-"`
}

// ExamConfig is the read-only configuration of an exam.
type ExamConfig struct {
	ExamID                 string            `json:"examId"`
	BaseXPReward           int               `json:"baseXpReward"`
	TimeLimitSeconds       int               `json:"timeLimitSeconds"`
	PassingScorePercentage float64           `json:"passingScorePercentage"`
	NumQuestionsToDraw     int               `json:"numQuestionsToDraw"`
	RequiredPermission     string            `json:"requiredPermission,omitempty"`
	AnswerKey              map[string]string `json:"answerKey"`
}

// MinigameConfig is the read-only configuration of a mini-game.
type MinigameConfig struct {
	MinigameID         string `json:"minigameId"`
	BaseXPGain         int    `json:"baseXpGain"`
	MaxDailyXP         int    `json:"maxDailyXp"`
	RequiredPermission string `json:"requiredPermission,omitempty"`
}

// ContentConfig holds the XP award configured for a content item.
type ContentConfig struct {
	ContentID string `json:"contentId"`
	AwardXP   int    `json:"awardXp"`
}

// QuestionOutcome records whether a single graded question was answered correctly.
type QuestionOutcome struct {
	QuestionID string `json:"questionId"`
	IsCorrect  bool   `json:"isCorrect"`
}

// ExamResult is the output of grading an exam submission.
type ExamResult struct {
	ScorePercentage     float64           `json:"scorePercentage"`
	CorrectCount        int               `json:"correctCount"`
	TotalCount          int               `json:"totalCount"`
	PerQuestion         []QuestionOutcome `json:"perQuestion"`
	NoGradableQuestions bool              `json:"noGradableQuestions"`
	DroppedQuestionIDs  []string          `json:"droppedQuestionIds,omitempty"`
	Passed              bool              `json:"passed"`
}

// LevelInfo describes where a cumulative XP total sits in the level bands.
type LevelInfo struct {
	Level            int     `json:"level"`
	XPIntoLevel      int     `json:"xpIntoLevel"`
	XPToNextLevel    int     `json:"xpToNextLevel"`
	ProgressFraction float64 `json:"progressFraction"`
}

// Breakdown records which factors shaped an award.
type Breakdown struct {
	TimeFactor     float64  `json:"timeFactor,omitempty"`
	ScoreRatio     float64  `json:"scoreRatio,omitempty"`
	CapRemaining   *int     `json:"capRemaining,omitempty"`
	CapExhausted   bool     `json:"capExhausted"`
	AlreadyAwarded bool     `json:"alreadyAwarded"`
	ClampedToZero  bool     `json:"clampedToZero"`
	Factors        []string `json:"factors"`
}

// Diagnostics carries the award breakdown and any non-fatal warnings.
type Diagnostics struct {
	Breakdown Breakdown `json:"breakdown"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// ProgressionResult is the computed effect of one attempt, to be persisted by the caller.
type ProgressionResult struct {
	UserID          string       `json:"userId"`
	Kind            ActivityKind `json:"kind"`
	SourceID        string       `json:"sourceId,omitempty"`
	OccurredAt      time.Time    `json:"occurredAt"`
	RawAmount       int          `json:"rawAmount"`
	CappedAmount    int          `json:"cappedAmount"`
	AppliedXP       int          `json:"appliedXp"`
	OldCumulativeXP int          `json:"oldCumulativeXp"`
	NewCumulativeXP int          `json:"newCumulativeXp"`
	OldLevel        LevelInfo    `json:"oldLevel"`
	NewLevel        LevelInfo    `json:"newLevel"`
	LeveledUp       bool         `json:"leveledUp"`
	Exam            *ExamResult  `json:"exam,omitempty"`
	Diagnostics     Diagnostics  `json:"diagnostics"`
}

// AwardEntry returns the log entry the result should append to the daily award log.
func (r ProgressionResult) AwardEntry() AwardLogEntry {
	return AwardLogEntry{
		UserID:    r.UserID,
		Kind:      r.Kind,
		SourceID:  r.SourceID,
		Amount:    r.CappedAmount,
		AwardedAt: r.OccurredAt,
	}
}

// ProgressView is a read-only view of a user's progression.
type ProgressView struct {
	UserID       string    `json:"userId"`
	CumulativeXP int       `json:"cumulativeXp"`
	Level        LevelInfo `json:"level"`
}

// LeaderboardEntry is a snapshot-friendly view of a user's XP standing.
type LeaderboardEntry struct {
	UserID       string `json:"userId"`
	CumulativeXP int    `json:"cumulativeXp"`
	Level        int    `json:"level"`
}

// Leaderboard captures the ordered XP ranking.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
