// Package recurrence computes the next occurrence of recurring agenda items.
package recurrence

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/models"
)

// SuccessorID derives the id of the next occurrence deterministically from
// the original item and the moment it was discussed. A crashed sync that
// re-runs the spawn therefore writes the same successor instead of a
// duplicate.
func SuccessorID(item models.AgendaItem, discussedAt time.Time) string {
	seed := item.ID + "|" + discussedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// NextOccurrence produces the successor of a recurring item that has just
// been discussed. The successor starts active with the title, description,
// priority and pattern of the original; its anchor advances from reference
// by the item's recurrence pattern and its created_at is now.
func NextOccurrence(item models.AgendaItem, reference, now time.Time) models.AgendaItem {
	anchor := Advance(reference, item.RecurrencePattern)
	return models.AgendaItem{
		ID:                SuccessorID(item, reference),
		SubjectID:         item.SubjectID,
		Title:             item.Title,
		Description:       item.Description,
		Priority:          item.Priority,
		Status:            models.AgendaActive,
		CreatedAt:         now,
		IsRecurring:       true,
		RecurrencePattern: item.RecurrencePattern,
		RecurrenceAnchor:  &anchor,
	}
}

// Advance moves a recurrence anchor forward one interval: weekly adds seven
// days, monthly and quarterly land on the same day-of-month one or three
// months ahead, clamped to the target month's length so a Jan 31 anchor
// yields Feb 28 (or 29) rather than skipping into March.
func Advance(anchor time.Time, pattern models.RecurrencePattern) time.Time {
	switch pattern {
	case models.RecurWeekly:
		return anchor.AddDate(0, 0, 7)
	case models.RecurMonthly:
		return addMonthsClamped(anchor, 1)
	case models.RecurQuarterly:
		return addMonthsClamped(anchor, 3)
	default:
		return anchor
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// First of the target month, then clamp the day.
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
