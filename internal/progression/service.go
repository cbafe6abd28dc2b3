package progression

import (
	"fmt"

	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/logger"
)

// Service turns an attempt and a state snapshot into the progression delta to persist.
// It never mutates state; the caller persists the returned result.
type Service struct {
	grader *Grader
	policy *Policy
	log    *logger.Logger
}

func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		grader: NewGrader(log),
		policy: NewPolicy(),
		log:    log,
	}
}

// Apply grades (EXAM), consults the daily cap (MINIGAME) or idempotency flag (CONTENT_LISTEN),
// computes the award and the resulting level. Invalid attempts return an error matching
// domain.ErrInvalidAttempt and must not be recorded.
func (s *Service) Apply(attempt domain.ScoreAttempt, state domain.UserProgressionState, cfg ActivityConfig) (domain.ProgressionResult, error) {
	if err := attempt.Validate(); err != nil {
		return domain.ProgressionResult{}, err
	}
	if state.UserID != "" && state.UserID != attempt.UserID {
		return domain.ProgressionResult{}, domain.NewInvalidAttempt(
			fmt.Sprintf("state for user %q given for attempt by %q", state.UserID, attempt.UserID))
	}

	var warnings []string
	oldXP := state.CumulativeXP
	if oldXP < 0 {
		s.log.Warn("negative cumulative xp in state snapshot; clamping to 0", "user_id", attempt.UserID, "cumulative_xp", oldXP)
		warnings = append(warnings, fmt.Sprintf("cumulative xp %d was negative; clamped to 0", oldXP))
		oldXP = 0
	}

	var exam *domain.ExamResult
	if attempt.Kind == domain.ActivityExam {
		if cfg.Exam == nil {
			return domain.ProgressionResult{}, domain.NewInvalidAttempt("exam config is missing")
		}
		graded := s.grader.Grade(attempt.Exam.Answers, cfg.Exam.AnswerKey)
		graded.Passed = !graded.NoGradableQuestions && graded.ScorePercentage >= cfg.Exam.PassingScorePercentage
		if graded.NoGradableQuestions {
			warnings = append(warnings, domain.ErrNoGradableQuestions.Error())
		} else if cfg.Exam.NumQuestionsToDraw > 0 && graded.TotalCount < cfg.Exam.NumQuestionsToDraw {
			warnings = append(warnings, fmt.Sprintf("graded %d of %d drawn questions", graded.TotalCount, cfg.Exam.NumQuestionsToDraw))
		}
		if len(graded.DroppedQuestionIDs) > 0 {
			warnings = append(warnings, fmt.Sprintf("dropped %d unknown question id(s)", len(graded.DroppedQuestionIDs)))
		}
		exam = &graded
	}

	capsRemaining := 0
	if attempt.Kind == domain.ActivityMinigame && cfg.Minigame != nil {
		capsRemaining = NewCapTracker(state.DailyAwardLog).Remaining(
			attempt.UserID, attempt.Kind, attempt.SourceID(), attempt.OccurredAt, cfg.Minigame.MaxDailyXP)
	}

	award, err := s.policy.ComputeAward(attempt, cfg, exam, capsRemaining)
	if err != nil {
		return domain.ProgressionResult{}, err
	}

	newXP := oldXP + award.CappedAmount
	if newXP < 0 {
		newXP = 0
		award.Breakdown.ClampedToZero = true
	}

	oldLevel := LevelFor(oldXP)
	newLevel := LevelFor(newXP)
	return domain.ProgressionResult{
		UserID:          attempt.UserID,
		Kind:            attempt.Kind,
		SourceID:        attempt.SourceID(),
		OccurredAt:      attempt.OccurredAt,
		RawAmount:       award.RawAmount,
		CappedAmount:    award.CappedAmount,
		AppliedXP:       newXP - oldXP,
		OldCumulativeXP: oldXP,
		NewCumulativeXP: newXP,
		OldLevel:        oldLevel,
		NewLevel:        newLevel,
		LeveledUp:       newLevel.Level > oldLevel.Level,
		Exam:            exam,
		Diagnostics: domain.Diagnostics{
			Breakdown: award.Breakdown,
			Warnings:  warnings,
		},
	}, nil
}
