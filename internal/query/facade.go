// Package query is the read side of the application: it translates
// presentation-level requests (dashboard timeframes, subject detail pages,
// search text) into index lookups, applying the archive policy on the way
// out so callers never see items the retention window has hidden.
package query

import (
	"fmt"
	"time"

	"github.com/starford/raido/internal/archive"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
)

// Timeframe names a due-date window on the dashboard.
type Timeframe string

const (
	TimeframeToday    Timeframe = "today"
	TimeframeWeek     Timeframe = "week"
	TimeframeNextWeek Timeframe = "next_week"
	TimeframeAll      Timeframe = "all"
)

// ParseTimeframe validates a user-supplied timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeToday, TimeframeWeek, TimeframeNextWeek, TimeframeAll:
		return Timeframe(s), nil
	case "":
		return TimeframeAll, nil
	default:
		return "", fmt.Errorf("query: unknown timeframe %q", s)
	}
}

// Facade is a stateless view over the index store.
type Facade struct {
	db  index.Store
	now func() time.Time
}

// Option configures a Facade.
type Option func(*Facade)

// WithClock overrides the facade's time source.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

func New(db index.Store, opts ...Option) *Facade {
	f := &Facade{db: db, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// window translates a timeframe into a half-open due-date interval. Today is
// anchored to midnight of the current day; week and next_week are anchored
// to the current instant. Nil bounds leave that side open, and the all
// timeframe returns both bounds nil so undated actions are included too.
func (f *Facade) window(tf Timeframe) (from, to *time.Time) {
	now := f.now()
	switch tf {
	case TimeframeToday:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 0, 1)
		return &start, &end
	case TimeframeWeek:
		end := now.AddDate(0, 0, 7)
		return &now, &end
	case TimeframeNextWeek:
		start := now.AddDate(0, 0, 7)
		end := now.AddDate(0, 0, 14)
		return &start, &end
	default:
		return nil, nil
	}
}

// ActionsByTimeframe returns actions due inside the timeframe's window,
// ordered soonest-due first with undated actions last. Archived actions are
// filtered out unless includeArchived is set.
func (f *Facade) ActionsByTimeframe(tf Timeframe, includeArchived bool) ([]models.Action, error) {
	from, to := f.window(tf)
	actions, err := f.db.ActionsInWindow(from, to)
	if err != nil {
		return nil, err
	}
	if includeArchived {
		return actions, nil
	}

	now := f.now()
	visible := actions[:0]
	for _, a := range actions {
		if archive.StateOf(a, now) == archive.Archived {
			continue
		}
		visible = append(visible, a)
	}
	return visible, nil
}

// ActionsForSubject returns a subject's actions, archive-filtered the same
// way the dashboard is.
func (f *Facade) ActionsForSubject(subjectID string, includeArchived bool) ([]models.Action, error) {
	actions, err := f.db.ActionsForSubject(subjectID)
	if err != nil {
		return nil, err
	}
	if includeArchived {
		return actions, nil
	}

	now := f.now()
	visible := actions[:0]
	for _, a := range actions {
		if archive.StateOf(a, now) == archive.Archived {
			continue
		}
		visible = append(visible, a)
	}
	return visible, nil
}

// AgendaFor returns a subject's agenda, highest priority first.
func (f *Facade) AgendaFor(subjectID string, includeArchived bool) ([]models.AgendaItem, error) {
	return f.db.AgendaForSubject(subjectID, includeArchived)
}

// MeetingsFor returns a subject's meetings, newest first.
func (f *Facade) MeetingsFor(subjectID string) ([]models.Meeting, error) {
	return f.db.MeetingsForSubject(subjectID)
}

// NotesFor returns a subject's notes, most recently updated first.
func (f *Facade) NotesFor(subjectID string) ([]models.Note, error) {
	return f.db.NotesForSubject(subjectID)
}

// Subject returns one subject by id.
func (f *Facade) Subject(id string) (*models.Subject, error) {
	return f.db.Subject(id)
}

// Subjects returns all subjects, most recently reviewed first.
func (f *Facade) Subjects() ([]models.Subject, error) {
	return f.db.Subjects()
}

// Search runs a unified full-text search, optionally restricted to the given
// content types.
func (f *Facade) Search(text string, contentTypes []string) ([]index.SearchResult, error) {
	return f.db.Search(text, contentTypes, 0)
}

// Overview bundles everything the subject detail view needs in one call.
type Overview struct {
	Subject  models.Subject      `json:"subject"`
	Agenda   []models.AgendaItem `json:"agenda"`
	Actions  []models.Action     `json:"actions"`
	Meetings []models.Meeting    `json:"meetings"`
	Notes    []models.Note       `json:"notes"`
}

// SubjectOverview assembles the full detail view for one subject.
func (f *Facade) SubjectOverview(subjectID string, includeArchived bool) (*Overview, error) {
	sub, err := f.db.Subject(subjectID)
	if err != nil {
		return nil, err
	}
	agenda, err := f.AgendaFor(subjectID, includeArchived)
	if err != nil {
		return nil, err
	}
	actions, err := f.ActionsForSubject(subjectID, includeArchived)
	if err != nil {
		return nil, err
	}
	meetings, err := f.MeetingsFor(subjectID)
	if err != nil {
		return nil, err
	}
	notes, err := f.NotesFor(subjectID)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Subject:  *sub,
		Agenda:   agenda,
		Actions:  actions,
		Meetings: meetings,
		Notes:    notes,
	}, nil
}
