package progression

import (
	"fmt"
	"math"

	"elsa-progression-service/internal/domain"
)

const (
	SpeedBonusFactor      = 1.2
	OnTimeFactor          = 1.0
	OvertimePenaltyFactor = 0.7
)

// Breakdown factor names.
const (
	FactorSpeedBonus      = "speed_bonus"
	FactorOnTime          = "on_time"
	FactorOvertimePenalty = "overtime_penalty"
	FactorUntimed         = "untimed"
	FactorScoreRatio      = "score_ratio"
	FactorNoMaxScore      = "no_max_score"
	FactorDailyCap        = "daily_cap"
	FactorCapExhausted    = "cap_exhausted"
	FactorAlreadyAwarded  = "already_awarded"
	FactorFlatContent     = "flat_content_award"
	FactorLogin           = "login_no_xp"
	FactorAdminAward      = "admin_award"
	FactorAdminCorrection = "admin_correction"
)

// ActivityConfig bundles the external configuration an attempt is scored against.
// Only the entry matching the attempt's kind is consulted.
type ActivityConfig struct {
	Exam     *domain.ExamConfig
	Minigame *domain.MinigameConfig
	Content  *domain.ContentConfig
	// ContentAlreadyAwarded is the store's answer to HasContentBeenAwarded for CONTENT_LISTEN.
	ContentAlreadyAwarded bool
}

// Award is the XP computed for one attempt before it is applied to a user's total.
type Award struct {
	RawAmount    int
	CappedAmount int
	Breakdown    domain.Breakdown
}

// Policy converts attempts into XP awards.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

// ComputeAward applies the per-kind XP rules. exam must hold the graded result for EXAM attempts;
// capsRemaining is only read for MINIGAME attempts.
func (p *Policy) ComputeAward(attempt domain.ScoreAttempt, cfg ActivityConfig, exam *domain.ExamResult, capsRemaining int) (Award, error) {
	switch attempt.Kind {
	case domain.ActivityExam:
		return p.examAward(attempt, cfg.Exam, exam)
	case domain.ActivityMinigame:
		return p.minigameAward(attempt, cfg.Minigame, capsRemaining)
	case domain.ActivityContentListen:
		return p.contentAward(cfg.Content, cfg.ContentAlreadyAwarded)
	case domain.ActivityLogin:
		return Award{Breakdown: domain.Breakdown{Factors: []string{FactorLogin}}}, nil
	case domain.ActivityAdminAward:
		return p.adminAward(attempt)
	}
	return Award{}, domain.NewInvalidAttempt(fmt.Sprintf("unknown activity kind %q", attempt.Kind))
}

// TimeFactor rewards finishing within half the limit and penalizes overtime.
// A non-positive limit means the exam is untimed.
func TimeFactor(elapsedSeconds *int, timeLimitSeconds int) (float64, string) {
	if elapsedSeconds == nil || timeLimitSeconds <= 0 {
		return OnTimeFactor, FactorUntimed
	}
	elapsed := float64(*elapsedSeconds)
	limit := float64(timeLimitSeconds)
	switch {
	case elapsed <= limit*0.5:
		return SpeedBonusFactor, FactorSpeedBonus
	case elapsed <= limit:
		return OnTimeFactor, FactorOnTime
	default:
		return OvertimePenaltyFactor, FactorOvertimePenalty
	}
}

func (p *Policy) examAward(attempt domain.ScoreAttempt, cfg *domain.ExamConfig, exam *domain.ExamResult) (Award, error) {
	if cfg == nil {
		return Award{}, domain.NewInvalidAttempt("exam config is missing")
	}
	if exam == nil {
		return Award{}, domain.NewInvalidAttempt("exam result is missing")
	}
	if cfg.BaseXPReward < 0 {
		return Award{}, domain.NewInvalidAttempt("exam baseXpReward must not be negative")
	}
	if !attempt.HasPermission(cfg.RequiredPermission) {
		return Award{}, permissionDenied(cfg.RequiredPermission)
	}

	factor, factorName := TimeFactor(attempt.ElapsedSeconds, cfg.TimeLimitSeconds)
	ratio := exam.ScorePercentage / 100
	raw := int(math.Round(float64(cfg.BaseXPReward) * ratio * factor))
	if raw < 0 {
		raw = 0
	}
	return Award{
		RawAmount:    raw,
		CappedAmount: raw,
		Breakdown: domain.Breakdown{
			TimeFactor: factor,
			ScoreRatio: ratio,
			Factors:    []string{FactorScoreRatio, factorName},
		},
	}, nil
}

func (p *Policy) minigameAward(attempt domain.ScoreAttempt, cfg *domain.MinigameConfig, capsRemaining int) (Award, error) {
	if cfg == nil {
		return Award{}, domain.NewInvalidAttempt("minigame config is missing")
	}
	if attempt.Minigame == nil {
		return Award{}, domain.NewInvalidAttempt("minigame result is missing")
	}
	if attempt.Minigame.Score < 0 || attempt.Minigame.MaxPossibleScore < 0 {
		return Award{}, domain.NewInvalidAttempt("minigame scores must not be negative")
	}
	if cfg.BaseXPGain < 0 || cfg.MaxDailyXP < 0 {
		return Award{}, domain.NewInvalidAttempt("minigame config values must not be negative")
	}
	if !attempt.HasPermission(cfg.RequiredPermission) {
		return Award{}, permissionDenied(cfg.RequiredPermission)
	}

	breakdown := domain.Breakdown{}
	raw := cfg.BaseXPGain
	if attempt.Minigame.MaxPossibleScore > 0 {
		ratio := math.Min(1, float64(attempt.Minigame.Score)/float64(attempt.Minigame.MaxPossibleScore))
		raw = int(math.Round(float64(cfg.BaseXPGain) * ratio))
		breakdown.ScoreRatio = ratio
		breakdown.Factors = append(breakdown.Factors, FactorScoreRatio)
	} else {
		breakdown.Factors = append(breakdown.Factors, FactorNoMaxScore)
	}

	if capsRemaining < 0 {
		capsRemaining = 0
	}
	remaining := capsRemaining
	breakdown.CapRemaining = &remaining

	capped := raw
	if capped > capsRemaining {
		capped = capsRemaining
		breakdown.Factors = append(breakdown.Factors, FactorDailyCap)
	}
	if capped == 0 && raw > 0 {
		breakdown.CapExhausted = true
		breakdown.Factors = append(breakdown.Factors, FactorCapExhausted)
	}
	return Award{RawAmount: raw, CappedAmount: capped, Breakdown: breakdown}, nil
}

func (p *Policy) contentAward(cfg *domain.ContentConfig, alreadyAwarded bool) (Award, error) {
	if cfg == nil {
		return Award{}, domain.NewInvalidAttempt("content config is missing")
	}
	if cfg.AwardXP < 0 {
		return Award{}, domain.NewInvalidAttempt("content award must not be negative")
	}

	award := Award{
		RawAmount:    cfg.AwardXP,
		CappedAmount: cfg.AwardXP,
		Breakdown:    domain.Breakdown{Factors: []string{FactorFlatContent}},
	}
	if alreadyAwarded {
		award.CappedAmount = 0
		award.Breakdown.AlreadyAwarded = true
		award.Breakdown.Factors = append(award.Breakdown.Factors, FactorAlreadyAwarded)
	}
	return award, nil
}

func (p *Policy) adminAward(attempt domain.ScoreAttempt) (Award, error) {
	if attempt.Admin == nil {
		return Award{}, domain.NewInvalidAttempt("admin award is missing")
	}
	factor := FactorAdminAward
	if attempt.Admin.Amount < 0 {
		factor = FactorAdminCorrection
	}
	return Award{
		RawAmount:    attempt.Admin.Amount,
		CappedAmount: attempt.Admin.Amount,
		Breakdown:    domain.Breakdown{Factors: []string{factor}},
	}, nil
}

func permissionDenied(perm string) error {
	return fmt.Errorf("%w: %w: requires %q", domain.ErrInvalidAttempt, domain.ErrPermissionDenied, perm)
}
