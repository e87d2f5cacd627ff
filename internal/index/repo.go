package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
)

// Times are stored as UTC RFC 3339 text with a fixed-width fractional part
// so that lexical ordering matches chronological ordering in SQL.
// RFC3339Nano trims trailing zeros, which would sort "T09:00:00Z" after
// "T09:00:00.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	// RFC3339Nano accepts any fractional width, including none.
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func fromJSONList(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// subjectName resolves the display name for denormalized search rows. An
// unknown subject (child indexed before its metadata) yields empty; the name
// is corrected when the child is re-indexed.
func subjectName(tx *sql.Tx, subjectID string) string {
	var name string
	_ = tx.QueryRow(`SELECT name FROM subjects WHERE id = ?`, subjectID).Scan(&name)
	return name
}

func recordSync(tx *sql.Tx, path, kind string, fp checksum.Fingerprint, syncedAt time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO sync_records (path, kind, hash, size, mtime, needs_attention, last_synced_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind            = excluded.kind,
			hash            = excluded.hash,
			size            = excluded.size,
			mtime           = excluded.mtime,
			needs_attention = 0,
			last_synced_at  = excluded.last_synced_at
	`, path, kind, fp.Hash, fp.Size, fmtTime(fp.ModTime), fmtTime(syncedAt))
	if err != nil {
		return fmt.Errorf("index: record sync: %w", err)
	}
	return nil
}

// UpsertSubject replaces a subject row, its search entry, and its sync
// record in one transaction.
func (db *DB) UpsertSubject(sub models.Subject, path string, fp checksum.Fingerprint, syncedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO subjects (id, name, code, type, description, created_at, last_reviewed_at, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name             = excluded.name,
			code             = excluded.code,
			type             = excluded.type,
			description      = excluded.description,
			created_at       = excluded.created_at,
			last_reviewed_at = excluded.last_reviewed_at,
			path             = excluded.path
	`, sub.ID, sub.Name, sub.Code, string(sub.Type), sub.Description,
		fmtTime(sub.CreatedAt), fmtTime(sub.LastReviewedAt), path)
	if err != nil {
		return fmt.Errorf("index: upsert subject: %w", err)
	}

	entry := searchEntry{
		contentType: TypeSubject,
		contentID:   sub.ID,
		subjectName: sub.Name,
		title:       sub.Name,
		text:        strings.TrimSpace(sub.Name + " " + sub.Code + " " + sub.Description),
	}
	if err := ftsUpsert(tx, entry); err != nil {
		return err
	}
	if err := recordSync(tx, path, TypeSubject, fp, syncedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceAgenda swaps the indexed agenda of one file for the given items.
// Items removed from the file disappear from the index in the same
// transaction that inserts their replacements.
func (db *DB) ReplaceAgenda(path string, items []models.AgendaItem, fp checksum.Fingerprint, syncedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.Query(`SELECT id FROM agenda_items WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("index: stale agenda: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		stale = append(stale, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range stale {
		ftsDelete(tx, TypeAgenda, id)
	}
	if _, err := tx.Exec(`DELETE FROM agenda_items WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear agenda: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(`
			INSERT INTO agenda_items
				(id, subject_id, title, description, priority, status, created_at,
				 discussed_at, is_recurring, recurrence_pattern, recurrence_anchor, successor_id, path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID, item.SubjectID, item.Title, item.Description, item.Priority,
			string(item.Status), fmtTime(item.CreatedAt), fmtTimePtr(item.DiscussedAt),
			boolInt(item.IsRecurring), string(item.RecurrencePattern),
			fmtTimePtr(item.RecurrenceAnchor), item.SuccessorID, path)
		if err != nil {
			return fmt.Errorf("index: insert agenda item: %w", err)
		}
		entry := searchEntry{
			contentType: TypeAgenda,
			contentID:   item.ID,
			subjectID:   item.SubjectID,
			subjectName: subjectName(tx, item.SubjectID),
			title:       item.Title,
			text:        strings.TrimSpace(item.Title + " " + item.Description),
		}
		if err := ftsUpsert(tx, entry); err != nil {
			return err
		}
	}

	if err := recordSync(tx, path, TypeAgenda, fp, syncedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertMeeting replaces a meeting row, its search entry, and its sync
// record in one transaction.
func (db *DB) UpsertMeeting(m models.Meeting, path string, fp checksum.Fingerprint, syncedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO meetings (id, subject_id, title, date, attendees, content, created_at, updated_at, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id,
			title      = excluded.title,
			date       = excluded.date,
			attendees  = excluded.attendees,
			content    = excluded.content,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			path       = excluded.path
	`, m.ID, m.SubjectID, m.Title, fmtTime(m.Date), jsonList(m.Attendees), m.Content,
		fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt), path)
	if err != nil {
		return fmt.Errorf("index: upsert meeting: %w", err)
	}

	title := m.Title
	if title == "" {
		title = "Meeting " + m.Date.Format("2006-01-02")
	}
	entry := searchEntry{
		contentType: TypeMeeting,
		contentID:   m.ID,
		subjectID:   m.SubjectID,
		subjectName: subjectName(tx, m.SubjectID),
		title:       title,
		text:        strings.TrimSpace(title + " " + strings.Join(m.Attendees, " ") + " " + m.Content),
	}
	if err := ftsUpsert(tx, entry); err != nil {
		return err
	}
	if err := recordSync(tx, path, TypeMeeting, fp, syncedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertAction replaces an action row, its search entry, and its sync record
// in one transaction.
func (db *DB) UpsertAction(a models.Action, path string, fp checksum.Fingerprint, syncedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO actions
			(id, subject_id, title, description, status, due_date, created_at,
			 completed_at, archived_at, meeting_id, note_id, agenda_item_id, tags, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id     = excluded.subject_id,
			title          = excluded.title,
			description    = excluded.description,
			status         = excluded.status,
			due_date       = excluded.due_date,
			created_at     = excluded.created_at,
			completed_at   = excluded.completed_at,
			archived_at    = excluded.archived_at,
			meeting_id     = excluded.meeting_id,
			note_id        = excluded.note_id,
			agenda_item_id = excluded.agenda_item_id,
			tags           = excluded.tags,
			path           = excluded.path
	`, a.ID, a.SubjectID, a.Title, a.Description, string(a.Status), fmtTimePtr(a.DueDate),
		fmtTime(a.CreatedAt), fmtTimePtr(a.CompletedAt), fmtTimePtr(a.ArchivedAt),
		a.MeetingID, a.NoteID, a.AgendaItemID, jsonList(a.Tags), path)
	if err != nil {
		return fmt.Errorf("index: upsert action: %w", err)
	}

	entry := searchEntry{
		contentType: TypeAction,
		contentID:   a.ID,
		subjectID:   a.SubjectID,
		subjectName: subjectName(tx, a.SubjectID),
		title:       a.Title,
		text:        strings.TrimSpace(a.Title + " " + a.Description + " " + strings.Join(a.Tags, " ")),
	}
	if err := ftsUpsert(tx, entry); err != nil {
		return err
	}
	if err := recordSync(tx, path, TypeAction, fp, syncedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertNote replaces a note row, its search entry, and its sync record in
// one transaction.
func (db *DB) UpsertNote(n models.Note, path string, fp checksum.Fingerprint, syncedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO notes (id, subject_id, title, content, tags, created_at, updated_at, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id,
			title      = excluded.title,
			content    = excluded.content,
			tags       = excluded.tags,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			path       = excluded.path
	`, n.ID, n.SubjectID, n.Title, n.Content, jsonList(n.Tags),
		fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt), path)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	entry := searchEntry{
		contentType: TypeNote,
		contentID:   n.ID,
		subjectID:   n.SubjectID,
		subjectName: subjectName(tx, n.SubjectID),
		title:       n.Title,
		text:        strings.TrimSpace(n.Title + " " + n.Content + " " + strings.Join(n.Tags, " ")),
	}
	if err := ftsUpsert(tx, entry); err != nil {
		return err
	}
	if err := recordSync(tx, path, TypeNote, fp, syncedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// entityTables maps content types to the table holding their rows.
var entityTables = map[string]string{
	TypeSubject: "subjects",
	TypeAgenda:  "agenda_items",
	TypeMeeting: "meetings",
	TypeAction:  "actions",
	TypeNote:    "notes",
}

// DeleteByPath tombstones everything the index derived from one store file:
// entity rows, search entries, and the sync record, in one transaction.
func (db *DB) DeleteByPath(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for contentType, table := range entityTables {
		rows, err := tx.Query(`SELECT id FROM `+table+` WHERE path = ?`, path)
		if err != nil {
			return fmt.Errorf("index: delete by path: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			ftsDelete(tx, contentType, id)
		}
		if len(ids) > 0 {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE path = ?`, path); err != nil {
				return fmt.Errorf("index: delete by path: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM sync_records WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete sync record: %w", err)
	}
	return tx.Commit()
}

// MarkAttention flags a file whose latest content failed to parse. Any prior
// entity rows stay in place (stale but queryable); the empty hash forces a
// re-parse attempt on the next scan.
func (db *DB) MarkAttention(path, kind string, syncedAt time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_records (path, kind, hash, size, mtime, needs_attention, last_synced_at)
		VALUES (?, ?, '', 0, '', 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash            = '',
			needs_attention = 1,
			last_synced_at  = excluded.last_synced_at
	`, path, kind, fmtTime(syncedAt))
	if err != nil {
		return fmt.Errorf("index: mark attention: %w", err)
	}
	return nil
}

// SyncRecords returns the index's recorded fingerprint for every known path.
func (db *DB) SyncRecords() (map[string]SyncRecord, error) {
	rows, err := db.conn.Query(`
		SELECT path, kind, hash, size, mtime, needs_attention, last_synced_at
		FROM sync_records
	`)
	if err != nil {
		return nil, fmt.Errorf("index: sync records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]SyncRecord)
	for rows.Next() {
		var r SyncRecord
		var mtime, synced string
		var attention int
		if err := rows.Scan(&r.Path, &r.Kind, &r.Hash, &r.Size, &mtime, &attention, &synced); err != nil {
			return nil, err
		}
		r.ModTime = parseTime(mtime)
		r.NeedsAttention = attention != 0
		r.LastSyncedAt = parseTime(synced)
		out[r.Path] = r
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
