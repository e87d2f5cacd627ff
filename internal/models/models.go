// Package models defines the domain entities for Raido.
//
// The canonical copy of every entity lives in the file store; anything held
// in the index is a derived, regenerable projection of these types.
package models

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SubjectType classifies the organizing context a subject represents.
type SubjectType string

const (
	SubjectBoard   SubjectType = "board"
	SubjectProject SubjectType = "project"
	SubjectTeam    SubjectType = "team"
	SubjectPerson  SubjectType = "person"
)

// AgendaStatus is the lifecycle state of an agenda item.
type AgendaStatus string

const (
	AgendaActive    AgendaStatus = "active"
	AgendaDiscussed AgendaStatus = "discussed"
	AgendaArchived  AgendaStatus = "archived"
)

// RecurrencePattern controls how a recurring agenda item advances.
type RecurrencePattern string

const (
	RecurWeekly    RecurrencePattern = "weekly"
	RecurMonthly   RecurrencePattern = "monthly"
	RecurQuarterly RecurrencePattern = "quarterly"
)

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	ActionTodo       ActionStatus = "todo"
	ActionInProgress ActionStatus = "in_progress"
	ActionDone       ActionStatus = "done"
)

// Subject is a context for organizing information: a board, project, team or
// person.
type Subject struct {
	ID             string      `yaml:"id" json:"id"`
	Name           string      `yaml:"name" json:"name"`
	Code           string      `yaml:"code,omitempty" json:"code,omitempty"`
	Type           SubjectType `yaml:"type" json:"type"`
	Description    string      `yaml:"description,omitempty" json:"description,omitempty"`
	CreatedAt      time.Time   `yaml:"created_at" json:"created_at"`
	LastReviewedAt time.Time   `yaml:"last_reviewed_at" json:"last_reviewed_at"`
}

// Validate checks subject invariants.
func (s Subject) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Name, validation.Required),
		validation.Field(&s.Type, validation.Required,
			validation.In(SubjectBoard, SubjectProject, SubjectTeam, SubjectPerson)),
	)
}

// Slug returns the deterministic folder name derived from the subject name:
// lowercased, special characters stripped, whitespace and hyphens collapsed
// to single underscores.
func (s Subject) Slug() string {
	return Slugify(s.Name)
}

var (
	slugStripRe    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapseRe = regexp.MustCompile(`[-\s]+`)
)

// Slugify converts a display name to its on-disk directory name.
func Slugify(name string) string {
	s := slugStripRe.ReplaceAllString(strings.ToLower(name), "")
	s = slugCollapseRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// AgendaItem is something to bring up in the next encounter with a subject.
//
// SuccessorID is the idempotency marker for recurrence: once a discussed
// recurring item has spawned its next occurrence, the successor's id is
// recorded here so a re-run of sync never spawns a duplicate.
type AgendaItem struct {
	ID                string            `yaml:"id" json:"id"`
	SubjectID         string            `yaml:"subject_id" json:"subject_id"`
	Title             string            `yaml:"title" json:"title"`
	Description       string            `yaml:"description,omitempty" json:"description,omitempty"`
	Priority          int               `yaml:"priority" json:"priority"`
	Status            AgendaStatus      `yaml:"status" json:"status"`
	CreatedAt         time.Time         `yaml:"created_at" json:"created_at"`
	DiscussedAt       *time.Time        `yaml:"discussed_at,omitempty" json:"discussed_at,omitempty"`
	IsRecurring       bool              `yaml:"is_recurring" json:"is_recurring"`
	RecurrencePattern RecurrencePattern `yaml:"recurrence_pattern,omitempty" json:"recurrence_pattern,omitempty"`
	RecurrenceAnchor  *time.Time        `yaml:"recurrence_anchor,omitempty" json:"recurrence_anchor,omitempty"`
	SuccessorID       string            `yaml:"successor_id,omitempty" json:"successor_id,omitempty"`
}

// Validate checks agenda item invariants, including that a recurrence
// pattern is present exactly when the item is recurring.
func (a AgendaItem) Validate() error {
	if err := validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required),
		validation.Field(&a.SubjectID, validation.Required),
		validation.Field(&a.Title, validation.Required),
		validation.Field(&a.Priority, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&a.Status, validation.Required,
			validation.In(AgendaActive, AgendaDiscussed, AgendaArchived)),
	); err != nil {
		return err
	}
	if a.IsRecurring && a.RecurrencePattern == "" {
		return validation.NewError("validation_recurrence", "recurring item requires a recurrence pattern")
	}
	if !a.IsRecurring && a.RecurrencePattern != "" {
		return validation.NewError("validation_recurrence", "recurrence pattern set on non-recurring item")
	}
	if a.RecurrencePattern != "" {
		return validation.Validate(a.RecurrencePattern,
			validation.In(RecurWeekly, RecurMonthly, RecurQuarterly))
	}
	return nil
}

// Meeting records one encounter with a subject. At most one meeting exists
// per subject and date; the date keys the file on disk.
type Meeting struct {
	ID        string    `yaml:"id" json:"id"`
	SubjectID string    `yaml:"subject_id" json:"subject_id"`
	Title     string    `yaml:"title" json:"title"`
	Date      time.Time `yaml:"date" json:"date"`
	Attendees []string  `yaml:"attendees" json:"attendees"`
	Content   string    `yaml:"-" json:"content"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Validate checks meeting invariants.
func (m Meeting) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.SubjectID, validation.Required),
		validation.Field(&m.Date, validation.Required),
	)
}

// Action is a personal task related to a subject.
//
// CompletedAt is set exactly when Status transitions to done. ArchivedAt is
// derived by the archive policy and persisted lazily, never set by the user.
type Action struct {
	ID           string       `yaml:"id" json:"id"`
	SubjectID    string       `yaml:"subject_id" json:"subject_id"`
	Title        string       `yaml:"title" json:"title"`
	Description  string       `yaml:"description,omitempty" json:"description,omitempty"`
	Status       ActionStatus `yaml:"status" json:"status"`
	DueDate      *time.Time   `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	CreatedAt    time.Time    `yaml:"created_at" json:"created_at"`
	CompletedAt  *time.Time   `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
	ArchivedAt   *time.Time   `yaml:"archived_at,omitempty" json:"archived_at,omitempty"`
	MeetingID    string       `yaml:"meeting_id,omitempty" json:"meeting_id,omitempty"`
	NoteID       string       `yaml:"note_id,omitempty" json:"note_id,omitempty"`
	AgendaItemID string       `yaml:"agenda_item_id,omitempty" json:"agenda_item_id,omitempty"`
	Tags         []string     `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Validate checks action invariants, including completed_at iff done.
func (a Action) Validate() error {
	if err := validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required),
		validation.Field(&a.SubjectID, validation.Required),
		validation.Field(&a.Title, validation.Required),
		validation.Field(&a.Status, validation.Required,
			validation.In(ActionTodo, ActionInProgress, ActionDone)),
	); err != nil {
		return err
	}
	if a.Status == ActionDone && a.CompletedAt == nil {
		return validation.NewError("validation_completed", "done action requires completed_at")
	}
	if a.Status != ActionDone && a.CompletedAt != nil {
		return validation.NewError("validation_completed", "completed_at set on unfinished action")
	}
	return nil
}

// Note holds reference information for a subject as a Markdown document.
type Note struct {
	ID        string    `yaml:"id" json:"id"`
	SubjectID string    `yaml:"subject_id" json:"subject_id"`
	Title     string    `yaml:"title" json:"title"`
	Content   string    `yaml:"-" json:"content"`
	Tags      []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Validate checks note invariants.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.SubjectID, validation.Required),
		validation.Field(&n.Title, validation.Required),
	)
}
