package progression

import "elsa-progression-service/internal/domain"

// LevelBandXP is the width of every level band.
const LevelBandXP = 1000

// LevelFor maps cumulative XP to its level band. Level 1 covers [0, 1000).
// Negative input is treated as 0.
func LevelFor(cumulativeXP int) domain.LevelInfo {
	if cumulativeXP < 0 {
		cumulativeXP = 0
	}
	into := cumulativeXP % LevelBandXP
	return domain.LevelInfo{
		Level:            cumulativeXP/LevelBandXP + 1,
		XPIntoLevel:      into,
		XPToNextLevel:    LevelBandXP - into,
		ProgressFraction: float64(into) / LevelBandXP,
	}
}
