package progression

import (
	"time"

	"elsa-progression-service/internal/domain"
)

// DayWindow returns the UTC calendar day containing asOf as [midnight, next midnight).
func DayWindow(asOf time.Time) domain.TimeWindow {
	t := asOf.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return domain.TimeWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// CapTracker answers how much of a daily XP ceiling is left, given a user's award log.
// It only reads the log; appending awards is the store's job.
type CapTracker struct {
	log []domain.AwardLogEntry
}

func NewCapTracker(log []domain.AwardLogEntry) *CapTracker {
	return &CapTracker{log: log}
}

// Consumed sums the awards for (userID, kind, sourceID) within asOf's UTC day.
func (c *CapTracker) Consumed(userID string, kind domain.ActivityKind, sourceID string, asOf time.Time) int {
	window := DayWindow(asOf)
	total := 0
	for _, e := range c.log {
		if e.UserID != userID || e.Kind != kind || e.SourceID != sourceID {
			continue
		}
		if !window.Contains(e.AwardedAt) {
			continue
		}
		total += e.Amount
	}
	return total
}

// Remaining is max(0, dailyMax - consumed today).
func (c *CapTracker) Remaining(userID string, kind domain.ActivityKind, sourceID string, asOf time.Time, dailyMax int) int {
	remaining := dailyMax - c.Consumed(userID, kind, sourceID, asOf)
	if remaining < 0 {
		return 0
	}
	return remaining
}
