// Package filestore reads and writes the durable entity files that are the
// system's source of truth. Everything else, the index included, is derived
// from what this package persists.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
)

// FileInfo describes one entity file found by a scan.
type FileInfo struct {
	Path        string
	Kind        Kind
	Slug        string
	Fingerprint checksum.Fingerprint
}

// Store is the file-backed entity store rooted at a single directory.
type Store struct {
	root string // absolute path to the store root
}

// New creates a Store rooted at the given directory. The directory must
// already exist; a missing or unreadable root is a StoreUnavailable error
// because no derived data can be trusted without it.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filestore: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("filestore: root %s: %w", abs, apperr.ErrStoreUnavailable)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filestore: root %s is not a directory: %w", abs, apperr.ErrStoreUnavailable)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string { return s.root }

// safePath resolves a relative path against the store root and rejects any
// result that escapes it.
func (s *Store) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("filestore: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(s.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("filestore: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("filestore: path escapes store root: %s", rel)
	}
	return abs, nil
}

// Read returns the raw bytes of a store file.
func (s *Store) Read(rel string) ([]byte, error) {
	abs, err := s.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("filestore: %s: %w", rel, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("filestore: read %s: %w", rel, err)
	}
	return data, nil
}

// Stat returns the current fingerprint of a store file.
func (s *Store) Stat(rel string) (checksum.Fingerprint, error) {
	abs, err := s.safePath(rel)
	if err != nil {
		return checksum.Fingerprint{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return checksum.Fingerprint{}, fmt.Errorf("filestore: %s: %w", rel, apperr.ErrNotFound)
		}
		return checksum.Fingerprint{}, fmt.Errorf("filestore: stat %s: %w", rel, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return checksum.Fingerprint{}, fmt.Errorf("filestore: read %s: %w", rel, err)
	}
	return checksum.Fingerprint{Size: info.Size(), ModTime: info.ModTime(), Hash: checksum.Sum(data)}, nil
}

// Write atomically writes content: tmp sibling file, fsync, rename. No
// observer ever sees a partially written file, even on crash.
func (s *Store) Write(rel string, content []byte) error {
	abs, err := s.safePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".raido-tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("filestore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("filestore: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a store file.
func (s *Store) Delete(rel string) error {
	abs, err := s.safePath(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("filestore: %s: %w", rel, apperr.ErrNotFound)
		}
		return fmt.Errorf("filestore: delete %s: %w", rel, err)
	}
	return nil
}

// List walks the store and returns fingerprints for every recognized entity
// file, ordered so each subject's metadata precedes its child entities. A
// missing subjects directory is an empty store, not an error.
func (s *Store) List() ([]FileInfo, error) {
	base := filepath.Join(s.root, subjectsDir)
	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var out []FileInfo
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		kind, slug, ok := KindOfPath(rel)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, FileInfo{
			Path: rel,
			Kind: kind,
			Slug: slug,
			Fingerprint: checksum.Fingerprint{
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Hash:    checksum.Sum(data),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filestore: list: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := kindRank(out[i].Kind), kindRank(out[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// WriteSubject persists subject metadata. Writing a subject whose slug is
// already taken by a different subject is a conflict, never an overwrite.
func (s *Store) WriteSubject(sub models.Subject) (string, error) {
	rel := SubjectPath(sub.Slug())
	if data, err := s.Read(rel); err == nil {
		existing, perr := Parse(rel, data)
		if perr != nil || existing.Subject.ID != sub.ID {
			// An unparsable file still holds someone's data; never clobber it.
			return "", fmt.Errorf("filestore: slug %q already taken: %w",
				sub.Slug(), apperr.ErrConflict)
		}
	}
	data, err := encodeYAML(sub)
	if err != nil {
		return "", fmt.Errorf("filestore: encode subject: %w", err)
	}
	return rel, s.Write(rel, data)
}

// ReadSubject loads subject metadata by slug.
func (s *Store) ReadSubject(slug string) (*models.Subject, error) {
	rel := SubjectPath(slug)
	data, err := s.Read(rel)
	if err != nil {
		return nil, err
	}
	p, err := Parse(rel, data)
	if err != nil {
		return nil, err
	}
	return p.Subject, nil
}

// DeleteSubjectTree removes a subject directory and everything under it,
// returning the store-relative paths of the removed entity files so the
// caller can reconcile the index.
func (s *Store) DeleteSubjectTree(slug string) ([]string, error) {
	dir, err := s.safePath(filepath.Join(subjectsDir, slug))
	if err != nil {
		return nil, err
	}
	var removed []string
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return werr
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr == nil {
			rel = filepath.ToSlash(rel)
			if _, _, ok := KindOfPath(rel); ok {
				removed = append(removed, rel)
			}
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("filestore: subject %s: %w", slug, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("filestore: delete subject: %w", walkErr)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("filestore: delete subject: %w", err)
	}
	return removed, nil
}

// WriteAgenda persists the complete agenda list of a subject.
func (s *Store) WriteAgenda(slug string, items []models.AgendaItem) (string, error) {
	rel := AgendaPath(slug)
	if items == nil {
		items = []models.AgendaItem{}
	}
	data, err := encodeYAML(items)
	if err != nil {
		return "", fmt.Errorf("filestore: encode agenda: %w", err)
	}
	return rel, s.Write(rel, data)
}

// ReadAgenda loads the agenda list of a subject. A missing file is an empty
// agenda.
func (s *Store) ReadAgenda(slug string) ([]models.AgendaItem, error) {
	rel := AgendaPath(slug)
	data, err := s.Read(rel)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	p, err := Parse(rel, data)
	if err != nil {
		return nil, err
	}
	return p.Agenda, nil
}

// WriteMeeting persists a meeting document. A second meeting for the same
// subject and date is a conflict; the existing file is left untouched.
func (s *Store) WriteMeeting(slug string, m models.Meeting) (string, error) {
	rel := MeetingPath(slug, m.Date)
	if data, err := s.Read(rel); err == nil {
		existing, perr := Parse(rel, data)
		if perr != nil || existing.Meeting.ID != m.ID {
			return "", fmt.Errorf("filestore: meeting already exists for %s on %s: %w",
				slug, m.Date.Format(meetingDateLayout), apperr.ErrConflict)
		}
	}
	data, err := encodeDocument(m, m.Content)
	if err != nil {
		return "", fmt.Errorf("filestore: encode meeting: %w", err)
	}
	return rel, s.Write(rel, data)
}

// ReadMeeting loads the meeting of a subject on a given date.
func (s *Store) ReadMeeting(slug string, date time.Time) (*models.Meeting, error) {
	rel := MeetingPath(slug, date)
	data, err := s.Read(rel)
	if err != nil {
		return nil, err
	}
	p, err := Parse(rel, data)
	if err != nil {
		return nil, err
	}
	return p.Meeting, nil
}

// WriteAction persists an action file.
func (s *Store) WriteAction(slug string, a models.Action) (string, error) {
	rel := ActionPath(slug, a.ID)
	data, err := encodeYAML(a)
	if err != nil {
		return "", fmt.Errorf("filestore: encode action: %w", err)
	}
	return rel, s.Write(rel, data)
}

// ReadAction loads an action by subject slug and id.
func (s *Store) ReadAction(slug, id string) (*models.Action, error) {
	rel := ActionPath(slug, id)
	data, err := s.Read(rel)
	if err != nil {
		return nil, err
	}
	p, err := Parse(rel, data)
	if err != nil {
		return nil, err
	}
	return p.Action, nil
}

// WriteNote persists a note document.
func (s *Store) WriteNote(slug string, n models.Note) (string, error) {
	rel := NotePath(slug, n.ID)
	data, err := encodeDocument(n, n.Content)
	if err != nil {
		return "", fmt.Errorf("filestore: encode note: %w", err)
	}
	return rel, s.Write(rel, data)
}

// ReadNote loads a note by subject slug and id.
func (s *Store) ReadNote(slug, id string) (*models.Note, error) {
	rel := NotePath(slug, id)
	data, err := s.Read(rel)
	if err != nil {
		return nil, err
	}
	p, err := Parse(rel, data)
	if err != nil {
		return nil, err
	}
	return p.Note, nil
}
