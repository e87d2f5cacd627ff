package index

import (
	"time"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
)

// Store defines the index operations the sync engine and query facade depend
// on. Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type Store interface {
	UpsertSubject(sub models.Subject, path string, fp checksum.Fingerprint, syncedAt time.Time) error
	ReplaceAgenda(path string, items []models.AgendaItem, fp checksum.Fingerprint, syncedAt time.Time) error
	UpsertMeeting(m models.Meeting, path string, fp checksum.Fingerprint, syncedAt time.Time) error
	UpsertAction(a models.Action, path string, fp checksum.Fingerprint, syncedAt time.Time) error
	UpsertNote(n models.Note, path string, fp checksum.Fingerprint, syncedAt time.Time) error
	DeleteByPath(path string) error
	MarkAttention(path, kind string, syncedAt time.Time) error
	SyncRecords() (map[string]SyncRecord, error)

	Subject(id string) (*models.Subject, error)
	SubjectByPath(path string) (*models.Subject, error)
	Subjects() ([]models.Subject, error)
	AgendaItem(id string) (*AgendaRecord, error)
	AgendaForSubject(subjectID string, includeArchived bool) ([]models.AgendaItem, error)
	SpawnCandidates() ([]AgendaRecord, error)
	Action(id string) (*ActionRecord, error)
	ActionsForSubject(subjectID string) ([]models.Action, error)
	ActionsInWindow(from, to *time.Time) ([]models.Action, error)
	ArchiveCandidates(cutoff time.Time) ([]ActionRecord, error)
	Meeting(id string) (*MeetingRecord, error)
	MeetingsForSubject(subjectID string) ([]models.Meeting, error)
	Note(id string) (*NoteRecord, error)
	NotesForSubject(subjectID string) ([]models.Note, error)
	Search(query string, contentTypes []string, limit int) ([]SearchResult, error)

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// SyncRecord is the index's memory of one store file: its fingerprint at the
// last successful sync plus a flag for files that failed to parse and need
// user attention.
type SyncRecord struct {
	Path           string
	Kind           string
	Hash           string
	Size           int64
	ModTime        time.Time
	NeedsAttention bool
	LastSyncedAt   time.Time
}

// Fingerprint reconstructs the content fingerprint recorded at the last sync.
func (r SyncRecord) Fingerprint() checksum.Fingerprint {
	return checksum.Fingerprint{Size: r.Size, ModTime: r.ModTime, Hash: r.Hash}
}

// AgendaRecord pairs an indexed agenda item with its source file path.
type AgendaRecord struct {
	models.AgendaItem
	Path string
}

// ActionRecord pairs an indexed action with its source file path.
type ActionRecord struct {
	models.Action
	Path string
}

// MeetingRecord pairs an indexed meeting with its source file path.
type MeetingRecord struct {
	models.Meeting
	Path string
}

// NoteRecord pairs an indexed note with its source file path.
type NoteRecord struct {
	models.Note
	Path string
}

// SearchResult is one ranked hit from the unified search index.
type SearchResult struct {
	ContentType string  `json:"content_type"`
	ContentID   string  `json:"content_id"`
	SubjectID   string  `json:"subject_id,omitempty"`
	SubjectName string  `json:"subject_name,omitempty"`
	Title       string  `json:"title"`
	Rank        float64 `json:"rank"`
}

// searchEntry is the row written to the unified search index, one per
// indexable entity.
type searchEntry struct {
	contentType string
	contentID   string
	subjectID   string
	subjectName string
	title       string
	text        string
}

const (
	// TypeSubject and friends are the content_type values of the unified
	// search index.
	TypeSubject = "subject"
	TypeAgenda  = "agenda"
	TypeMeeting = "meeting"
	TypeAction  = "action"
	TypeNote    = "note"
)
