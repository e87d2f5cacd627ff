package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

const subjectCols = `id, name, code, type, description, created_at, last_reviewed_at`

func scanSubject(row interface{ Scan(...any) error }) (*models.Subject, error) {
	var s models.Subject
	var created, reviewed string
	var typ string
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &typ, &s.Description, &created, &reviewed); err != nil {
		return nil, err
	}
	s.Type = models.SubjectType(typ)
	s.CreatedAt = parseTime(created)
	s.LastReviewedAt = parseTime(reviewed)
	return &s, nil
}

// Subject returns a subject by id.
func (db *DB) Subject(id string) (*models.Subject, error) {
	row := db.conn.QueryRow(`SELECT `+subjectCols+` FROM subjects WHERE id = ?`, id)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: subject %s: %w", id, apperr.ErrNotFound)
	}
	return s, err
}

// SubjectByPath returns the subject whose metadata file is at path.
func (db *DB) SubjectByPath(path string) (*models.Subject, error) {
	row := db.conn.QueryRow(`SELECT `+subjectCols+` FROM subjects WHERE path = ?`, path)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: subject at %s: %w", path, apperr.ErrNotFound)
	}
	return s, err
}

// Subjects returns all subjects, most recently reviewed first.
func (db *DB) Subjects() ([]models.Subject, error) {
	rows, err := db.conn.Query(`SELECT ` + subjectCols + ` FROM subjects ORDER BY last_reviewed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("index: subjects: %w", err)
	}
	defer rows.Close()

	var out []models.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

const agendaCols = `id, subject_id, title, description, priority, status, created_at,
	discussed_at, is_recurring, recurrence_pattern, recurrence_anchor, successor_id, path`

func scanAgenda(row interface{ Scan(...any) error }) (*AgendaRecord, error) {
	var r AgendaRecord
	var created string
	var discussed, anchor sql.NullString
	var status, pattern string
	var recurring int
	if err := row.Scan(&r.ID, &r.SubjectID, &r.Title, &r.Description, &r.Priority, &status,
		&created, &discussed, &recurring, &pattern, &anchor, &r.SuccessorID, &r.Path); err != nil {
		return nil, err
	}
	r.Status = models.AgendaStatus(status)
	r.CreatedAt = parseTime(created)
	r.DiscussedAt = parseTimePtr(discussed)
	r.IsRecurring = recurring != 0
	r.RecurrencePattern = models.RecurrencePattern(pattern)
	r.RecurrenceAnchor = parseTimePtr(anchor)
	return &r, nil
}

// AgendaItem returns one agenda item with its source path.
func (db *DB) AgendaItem(id string) (*AgendaRecord, error) {
	row := db.conn.QueryRow(`SELECT `+agendaCols+` FROM agenda_items WHERE id = ?`, id)
	r, err := scanAgenda(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: agenda item %s: %w", id, apperr.ErrNotFound)
	}
	return r, err
}

// AgendaForSubject returns a subject's agenda ordered by priority, highest
// first. Archived items are excluded unless requested.
func (db *DB) AgendaForSubject(subjectID string, includeArchived bool) ([]models.AgendaItem, error) {
	q := `SELECT ` + agendaCols + ` FROM agenda_items WHERE subject_id = ?`
	if !includeArchived {
		q += ` AND status != 'archived'`
	}
	q += ` ORDER BY priority DESC, created_at ASC`

	rows, err := db.conn.Query(q, subjectID)
	if err != nil {
		return nil, fmt.Errorf("index: agenda for subject: %w", err)
	}
	defer rows.Close()

	var out []models.AgendaItem
	for rows.Next() {
		r, err := scanAgenda(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.AgendaItem)
	}
	return out, rows.Err()
}

// SpawnCandidates returns discussed recurring items that have not yet
// spawned a successor.
func (db *DB) SpawnCandidates() ([]AgendaRecord, error) {
	rows, err := db.conn.Query(`
		SELECT ` + agendaCols + ` FROM agenda_items
		WHERE status = 'discussed' AND is_recurring = 1 AND successor_id = ''
	`)
	if err != nil {
		return nil, fmt.Errorf("index: spawn candidates: %w", err)
	}
	defer rows.Close()

	var out []AgendaRecord
	for rows.Next() {
		r, err := scanAgenda(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const actionCols = `id, subject_id, title, description, status, due_date, created_at,
	completed_at, archived_at, meeting_id, note_id, agenda_item_id, tags, path`

func scanAction(row interface{ Scan(...any) error }) (*ActionRecord, error) {
	var r ActionRecord
	var created, status, tags string
	var due, completed, archived sql.NullString
	if err := row.Scan(&r.ID, &r.SubjectID, &r.Title, &r.Description, &status, &due,
		&created, &completed, &archived, &r.MeetingID, &r.NoteID, &r.AgendaItemID,
		&tags, &r.Path); err != nil {
		return nil, err
	}
	r.Status = models.ActionStatus(status)
	r.DueDate = parseTimePtr(due)
	r.CreatedAt = parseTime(created)
	r.CompletedAt = parseTimePtr(completed)
	r.ArchivedAt = parseTimePtr(archived)
	r.Tags = fromJSONList(tags)
	return &r, nil
}

// Action returns one action with its source path.
func (db *DB) Action(id string) (*ActionRecord, error) {
	row := db.conn.QueryRow(`SELECT `+actionCols+` FROM actions WHERE id = ?`, id)
	r, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: action %s: %w", id, apperr.ErrNotFound)
	}
	return r, err
}

// actionOrder puts undated actions last, then sorts by due date and
// creation time.
const actionOrder = ` ORDER BY
	CASE WHEN due_date IS NULL THEN 1 ELSE 0 END,
	due_date ASC,
	created_at ASC`

// ActionsForSubject returns all of a subject's actions in due-date order.
func (db *DB) ActionsForSubject(subjectID string) ([]models.Action, error) {
	rows, err := db.conn.Query(
		`SELECT `+actionCols+` FROM actions WHERE subject_id = ?`+actionOrder, subjectID)
	if err != nil {
		return nil, fmt.Errorf("index: actions for subject: %w", err)
	}
	return collectActions(rows)
}

// ActionsInWindow returns actions whose due date falls in [from, to). A nil
// bound leaves that side open; with both bounds nil every action is
// returned, including undated ones.
func (db *DB) ActionsInWindow(from, to *time.Time) ([]models.Action, error) {
	q := `SELECT ` + actionCols + ` FROM actions`
	var conds []string
	var args []any
	if from != nil {
		conds = append(conds, `due_date >= ?`)
		args = append(args, fmtTime(*from))
	}
	if to != nil {
		conds = append(conds, `due_date < ?`)
		args = append(args, fmtTime(*to))
	}
	if len(conds) > 0 {
		q += ` WHERE due_date IS NOT NULL`
		for _, c := range conds {
			q += ` AND ` + c
		}
	}
	q += actionOrder

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: actions in window: %w", err)
	}
	return collectActions(rows)
}

// ArchiveCandidates returns done, not-yet-archived actions completed at or
// before the cutoff.
func (db *DB) ArchiveCandidates(cutoff time.Time) ([]ActionRecord, error) {
	rows, err := db.conn.Query(`
		SELECT `+actionCols+` FROM actions
		WHERE status = 'done' AND archived_at IS NULL AND completed_at <= ?
	`, fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("index: archive candidates: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		r, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func collectActions(rows *sql.Rows) ([]models.Action, error) {
	defer rows.Close()
	var out []models.Action
	for rows.Next() {
		r, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Action)
	}
	return out, rows.Err()
}

const meetingCols = `id, subject_id, title, date, attendees, content, created_at, updated_at, path`

func scanMeeting(row interface{ Scan(...any) error }) (*MeetingRecord, error) {
	var r MeetingRecord
	var date, attendees, created, updated string
	if err := row.Scan(&r.ID, &r.SubjectID, &r.Title, &date, &attendees, &r.Content,
		&created, &updated, &r.Path); err != nil {
		return nil, err
	}
	r.Date = parseTime(date)
	r.Attendees = fromJSONList(attendees)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

// Meeting returns one meeting with its source path.
func (db *DB) Meeting(id string) (*MeetingRecord, error) {
	row := db.conn.QueryRow(`SELECT `+meetingCols+` FROM meetings WHERE id = ?`, id)
	r, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: meeting %s: %w", id, apperr.ErrNotFound)
	}
	return r, err
}

// MeetingsForSubject returns a subject's meetings, most recent first.
func (db *DB) MeetingsForSubject(subjectID string) ([]models.Meeting, error) {
	rows, err := db.conn.Query(
		`SELECT `+meetingCols+` FROM meetings WHERE subject_id = ? ORDER BY date DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("index: meetings for subject: %w", err)
	}
	defer rows.Close()

	var out []models.Meeting
	for rows.Next() {
		r, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Meeting)
	}
	return out, rows.Err()
}

const noteCols = `id, subject_id, title, content, tags, created_at, updated_at, path`

func scanNote(row interface{ Scan(...any) error }) (*NoteRecord, error) {
	var r NoteRecord
	var tags, created, updated string
	if err := row.Scan(&r.ID, &r.SubjectID, &r.Title, &r.Content, &tags, &created, &updated, &r.Path); err != nil {
		return nil, err
	}
	r.Tags = fromJSONList(tags)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

// Note returns one note with its source path.
func (db *DB) Note(id string) (*NoteRecord, error) {
	row := db.conn.QueryRow(`SELECT `+noteCols+` FROM notes WHERE id = ?`, id)
	r, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", id, apperr.ErrNotFound)
	}
	return r, err
}

// NotesForSubject returns a subject's notes, most recently updated first.
func (db *DB) NotesForSubject(subjectID string) ([]models.Note, error) {
	rows, err := db.conn.Query(
		`SELECT `+noteCols+` FROM notes WHERE subject_id = ? ORDER BY updated_at DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("index: notes for subject: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		r, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Note)
	}
	return out, rows.Err()
}
