// Package subjectservice is the write side of the application. Every
// mutation goes to the file store first and is then synced into the index,
// so a crash between the two leaves the files authoritative and the index
// merely stale.
package subjectservice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/filestore"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/recurrence"
	"github.com/starford/raido/internal/syncengine"
)

// Service coordinates file store writes with index synchronization.
type Service struct {
	store  *filestore.Store
	db     index.Store
	engine *syncengine.Engine
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDSource overrides how new entity ids are minted.
func WithIDSource(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(store *filestore.Store, db index.Store, engine *syncengine.Engine, opts ...Option) *Service {
	s := &Service{
		store:  store,
		db:     db,
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// slugOf resolves a subject id to its directory slug via the index.
func (s *Service) slugOf(subjectID string) (string, error) {
	sub, err := s.db.Subject(subjectID)
	if err != nil {
		return "", err
	}
	return sub.Slug(), nil
}

// --- subjects ---

// SubjectInput carries the editable fields of a subject.
type SubjectInput struct {
	Name        string             `json:"name"`
	Code        string             `json:"code"`
	Type        models.SubjectType `json:"type"`
	Description string             `json:"description"`
}

// CreateSubject mints a new subject and its directory.
func (s *Service) CreateSubject(ctx context.Context, in SubjectInput) (*models.Subject, error) {
	now := s.now().UTC()
	sub := models.Subject{
		ID:             s.newID(),
		Name:           in.Name,
		Code:           in.Code,
		Type:           in.Type,
		Description:    in.Description,
		CreatedAt:      now,
		LastReviewedAt: now,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	rel, err := s.store.WriteSubject(sub)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubject edits a subject's metadata. Renaming a subject so that its
// slug would change is rejected: the slug is the directory name, and moving
// a whole subject tree is not an edit.
func (s *Service) UpdateSubject(ctx context.Context, id string, in SubjectInput) (*models.Subject, error) {
	existing, err := s.db.Subject(id)
	if err != nil {
		return nil, err
	}
	sub, err := s.store.ReadSubject(existing.Slug())
	if err != nil {
		return nil, err
	}

	updated := *sub
	updated.Name = in.Name
	updated.Code = in.Code
	updated.Type = in.Type
	updated.Description = in.Description
	if updated.Slug() != sub.Slug() {
		return nil, fmt.Errorf("subjectservice: rename would move directory %s: %w",
			sub.Slug(), apperr.ErrConflict)
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteSubject(updated)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkReviewed stamps a subject's last review time.
func (s *Service) MarkReviewed(ctx context.Context, id string) (*models.Subject, error) {
	existing, err := s.db.Subject(id)
	if err != nil {
		return nil, err
	}
	sub, err := s.store.ReadSubject(existing.Slug())
	if err != nil {
		return nil, err
	}
	sub.LastReviewedAt = s.now().UTC()

	rel, err := s.store.WriteSubject(*sub)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubject removes a subject's whole directory tree and every index
// entry derived from it.
func (s *Service) DeleteSubject(ctx context.Context, id string) error {
	existing, err := s.db.Subject(id)
	if err != nil {
		return err
	}
	removed, err := s.store.DeleteSubjectTree(existing.Slug())
	if err != nil {
		return err
	}
	for _, rel := range removed {
		if err := s.engine.SyncPath(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// --- agenda ---

// AgendaInput carries the editable fields of an agenda item.
type AgendaInput struct {
	Title             string                   `json:"title"`
	Description       string                   `json:"description"`
	Priority          int                      `json:"priority"`
	IsRecurring       bool                     `json:"is_recurring"`
	RecurrencePattern models.RecurrencePattern `json:"recurrence_pattern,omitempty"`
}

// AddAgendaItem appends a new item to a subject's agenda.
func (s *Service) AddAgendaItem(ctx context.Context, subjectID string, in AgendaInput) (*models.AgendaItem, error) {
	slug, err := s.slugOf(subjectID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ReadAgenda(slug)
	if err != nil {
		return nil, err
	}

	item := models.AgendaItem{
		ID:                s.newID(),
		SubjectID:         subjectID,
		Title:             in.Title,
		Description:       in.Description,
		Priority:          in.Priority,
		Status:            models.AgendaActive,
		CreatedAt:         s.now().UTC(),
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: in.RecurrencePattern,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	items = append(items, item)
	if err := s.writeAgenda(ctx, slug, items); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateAgendaItem edits an item in place.
func (s *Service) UpdateAgendaItem(ctx context.Context, itemID string, in AgendaInput) (*models.AgendaItem, error) {
	slug, items, i, err := s.findAgendaItem(itemID)
	if err != nil {
		return nil, err
	}

	item := items[i]
	item.Title = in.Title
	item.Description = in.Description
	item.Priority = in.Priority
	item.IsRecurring = in.IsRecurring
	item.RecurrencePattern = in.RecurrencePattern
	if !item.IsRecurring {
		item.RecurrencePattern = ""
		item.RecurrenceAnchor = nil
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	items[i] = item
	if err := s.writeAgenda(ctx, slug, items); err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkDiscussed records that an item was covered in a meeting. A recurring
// item spawns its next occurrence immediately; the successor id is derived
// deterministically, so the rebuild-time spawn pass writes the same item if
// this call is interrupted between file write and index sync.
func (s *Service) MarkDiscussed(ctx context.Context, itemID string) (*models.AgendaItem, error) {
	slug, items, i, err := s.findAgendaItem(itemID)
	if err != nil {
		return nil, err
	}
	if items[i].Status == models.AgendaDiscussed {
		return &items[i], nil
	}

	now := s.now().UTC()
	items[i].Status = models.AgendaDiscussed
	items[i].DiscussedAt = &now

	if items[i].IsRecurring {
		reference := now
		if items[i].RecurrenceAnchor != nil {
			reference = *items[i].RecurrenceAnchor
		}
		succ := recurrence.NextOccurrence(items[i], reference, now)
		items[i].SuccessorID = succ.ID
		items = append(items, succ)
	}

	if err := s.writeAgenda(ctx, slug, items); err != nil {
		return nil, err
	}
	return &items[i], nil
}

// DeleteAgendaItem removes an item from its agenda file.
func (s *Service) DeleteAgendaItem(ctx context.Context, itemID string) error {
	slug, items, i, err := s.findAgendaItem(itemID)
	if err != nil {
		return err
	}
	items = append(items[:i], items[i+1:]...)
	return s.writeAgenda(ctx, slug, items)
}

func (s *Service) findAgendaItem(itemID string) (slug string, items []models.AgendaItem, idx int, err error) {
	rec, err := s.db.AgendaItem(itemID)
	if err != nil {
		return "", nil, 0, err
	}
	_, slug, ok := filestore.KindOfPath(rec.Path)
	if !ok {
		return "", nil, 0, fmt.Errorf("subjectservice: bad agenda path %s: %w", rec.Path, apperr.ErrNotFound)
	}
	items, err = s.store.ReadAgenda(slug)
	if err != nil {
		return "", nil, 0, err
	}
	for i := range items {
		if items[i].ID == itemID {
			return slug, items, i, nil
		}
	}
	// Index knew the item but the file no longer has it.
	return "", nil, 0, fmt.Errorf("subjectservice: agenda item %s: %w", itemID, apperr.ErrNotFound)
}

func (s *Service) writeAgenda(ctx context.Context, slug string, items []models.AgendaItem) error {
	rel, err := s.store.WriteAgenda(slug, items)
	if err != nil {
		return err
	}
	return s.engine.SyncPath(ctx, rel)
}

// --- meetings ---

// MeetingInput carries the editable fields of a meeting.
type MeetingInput struct {
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Attendees []string  `json:"attendees"`
	Content   string    `json:"content"`
}

// CreateMeeting records a meeting for a subject. One meeting per subject per
// calendar day: a second meeting on the same date is a conflict.
func (s *Service) CreateMeeting(ctx context.Context, subjectID string, in MeetingInput) (*models.Meeting, error) {
	slug, err := s.slugOf(subjectID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m := models.Meeting{
		ID:        s.newID(),
		SubjectID: subjectID,
		Title:     in.Title,
		Date:      in.Date,
		Attendees: in.Attendees,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteMeeting(slug, m)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMeeting edits a meeting's content and attendees. The date is fixed:
// it names the file on disk.
func (s *Service) UpdateMeeting(ctx context.Context, id string, in MeetingInput) (*models.Meeting, error) {
	rec, err := s.db.Meeting(id)
	if err != nil {
		return nil, err
	}
	_, slug, ok := filestore.KindOfPath(rec.Path)
	if !ok {
		return nil, fmt.Errorf("subjectservice: bad meeting path %s: %w", rec.Path, apperr.ErrNotFound)
	}
	// Load through the recorded path: the indexed date is UTC-normalized and
	// may name a different calendar day than the file does.
	data, err := s.store.Read(rec.Path)
	if err != nil {
		return nil, err
	}
	parsed, err := filestore.Parse(rec.Path, data)
	if err != nil {
		return nil, err
	}
	m := parsed.Meeting

	m.Title = in.Title
	m.Attendees = in.Attendees
	m.Content = in.Content
	m.UpdatedAt = s.now().UTC()
	if err := m.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteMeeting(slug, *m)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMeeting removes a meeting file and its index entry.
func (s *Service) DeleteMeeting(ctx context.Context, id string) error {
	rec, err := s.db.Meeting(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(rec.Path); err != nil {
		return err
	}
	return s.engine.SyncPath(ctx, rec.Path)
}

// --- actions ---

// ActionInput carries the editable fields of an action.
type ActionInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Status       models.ActionStatus `json:"status"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
	MeetingID    string              `json:"meeting_id,omitempty"`
	NoteID       string              `json:"note_id,omitempty"`
	AgendaItemID string              `json:"agenda_item_id,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
}

// CreateAction records a new action for a subject.
func (s *Service) CreateAction(ctx context.Context, subjectID string, in ActionInput) (*models.Action, error) {
	slug, err := s.slugOf(subjectID)
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = models.ActionTodo
	}
	now := s.now().UTC()
	a := models.Action{
		ID:           s.newID(),
		SubjectID:    subjectID,
		Title:        in.Title,
		Description:  in.Description,
		Status:       status,
		DueDate:      in.DueDate,
		MeetingID:    in.MeetingID,
		NoteID:       in.NoteID,
		AgendaItemID: in.AgendaItemID,
		Tags:         in.Tags,
		CreatedAt:    now,
	}
	if a.Status == models.ActionDone {
		a.CompletedAt = &now
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteAction(slug, a)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAction edits an action. Moving into done stamps completed_at;
// moving back out clears both completed_at and archived_at, resurrecting an
// archived action.
func (s *Service) UpdateAction(ctx context.Context, id string, in ActionInput) (*models.Action, error) {
	rec, err := s.db.Action(id)
	if err != nil {
		return nil, err
	}
	_, slug, ok := filestore.KindOfPath(rec.Path)
	if !ok {
		return nil, fmt.Errorf("subjectservice: bad action path %s: %w", rec.Path, apperr.ErrNotFound)
	}
	a, err := s.store.ReadAction(slug, id)
	if err != nil {
		return nil, err
	}

	a.Title = in.Title
	a.Description = in.Description
	a.DueDate = in.DueDate
	a.MeetingID = in.MeetingID
	a.NoteID = in.NoteID
	a.AgendaItemID = in.AgendaItemID
	a.Tags = in.Tags
	if in.Status != "" && in.Status != a.Status {
		switch {
		case in.Status == models.ActionDone:
			now := s.now().UTC()
			a.CompletedAt = &now
		case a.Status == models.ActionDone:
			a.CompletedAt = nil
			a.ArchivedAt = nil
		}
		a.Status = in.Status
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteAction(slug, *a)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAction removes an action file and its index entry.
func (s *Service) DeleteAction(ctx context.Context, id string) error {
	rec, err := s.db.Action(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(rec.Path); err != nil {
		return err
	}
	return s.engine.SyncPath(ctx, rec.Path)
}

// --- notes ---

// NoteInput carries the editable fields of a note.
type NoteInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// CreateNote records a freeform note for a subject.
func (s *Service) CreateNote(ctx context.Context, subjectID string, in NoteInput) (*models.Note, error) {
	slug, err := s.slugOf(subjectID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	n := models.Note{
		ID:        s.newID(),
		SubjectID: subjectID,
		Title:     in.Title,
		Content:   in.Content,
		Tags:      in.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteNote(slug, n)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNote edits a note's content.
func (s *Service) UpdateNote(ctx context.Context, id string, in NoteInput) (*models.Note, error) {
	rec, err := s.db.Note(id)
	if err != nil {
		return nil, err
	}
	_, slug, ok := filestore.KindOfPath(rec.Path)
	if !ok {
		return nil, fmt.Errorf("subjectservice: bad note path %s: %w", rec.Path, apperr.ErrNotFound)
	}
	n, err := s.store.ReadNote(slug, id)
	if err != nil {
		return nil, err
	}

	n.Title = in.Title
	n.Content = in.Content
	n.Tags = in.Tags
	n.UpdatedAt = s.now().UTC()
	if err := n.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.WriteNote(slug, *n)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SyncPath(ctx, rel); err != nil {
		return nil, err
	}
	return n, nil
}

// DeleteNote removes a note file and its index entry.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	rec, err := s.db.Note(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(rec.Path); err != nil {
		return err
	}
	return s.engine.SyncPath(ctx, rec.Path)
}
