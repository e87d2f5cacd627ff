// Package archive computes the visibility state of completed actions.
//
// The state is a pure function of (action, now) and is recomputed on every
// sync and query. archived_at is only ever persisted lazily, the first time
// the computed state crosses into archived.
package archive

import (
	"time"

	"github.com/starford/raido/internal/models"
)

// RetentionPeriod is how long a completed action stays visible before it is
// archived.
const RetentionPeriod = 7 * 24 * time.Hour

// State classifies an action's visibility.
type State int

const (
	// VisibleActive: the action is still being worked (todo or in_progress).
	VisibleActive State = iota
	// VisibleCompleted: done less than the retention period ago.
	VisibleCompleted
	// Archived: done and past the retention period; hidden by default.
	Archived
)

func (s State) String() string {
	switch s {
	case VisibleActive:
		return "visible-active"
	case VisibleCompleted:
		return "visible-completed"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// StateOf returns the archival state of an action at the given instant.
// An action completed at T becomes archived at exactly T plus the retention
// period.
func StateOf(a models.Action, now time.Time) State {
	if a.Status != models.ActionDone || a.CompletedAt == nil {
		return VisibleActive
	}
	if now.Sub(*a.CompletedAt) >= RetentionPeriod {
		return Archived
	}
	return VisibleCompleted
}

// ArchiveTime returns the instant a completed action crosses into archived.
// It is only meaningful when CompletedAt is set.
func ArchiveTime(a models.Action) time.Time {
	return a.CompletedAt.Add(RetentionPeriod)
}
