// Package syncengine reconciles the file store with the derived index. Files
// are the source of truth; the index is rebuilt or patched to match them,
// never the other way around.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/archive"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/filestore"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/recurrence"
)

// State reports what the engine is currently doing. Transitions are
// Idle -> Scanning -> Reconciling -> Idle, or to Failed when the file store
// itself is unreachable. A later Rebuild may recover from Failed.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateReconciling
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateReconciling:
		return "reconciling"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result summarizes one full reconciliation pass.
type Result struct {
	Reconciled int      `json:"reconciled"` // files parsed and upserted
	Removed    int      `json:"removed"`    // index entries whose file disappeared
	Spawned    int      `json:"spawned"`    // successors created for discussed recurring items
	Archived   int      `json:"archived"`   // completed actions moved past the retention window
	Warnings   []string `json:"warnings"`   // per-file problems that did not stop the pass
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine drives full and incremental synchronization. All mutating entry
// points are serialized; concurrent callers queue rather than interleave.
type Engine struct {
	store  *filestore.Store
	db     index.Store
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state atomic.Int32
}

func New(store *filestore.Store, db index.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Rebuild walks the whole store and brings the index up to date:
//   - new or changed files are parsed and upserted
//   - files removed from disk are deleted from the index
//   - discussed recurring agenda items without a successor spawn one
//   - completed actions past retention get their archived_at persisted
//
// Files that fail to parse are flagged for attention and skipped; the pass
// continues and reports them as warnings. Only an unreachable store fails
// the rebuild outright.
func (e *Engine) Rebuild(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setState(StateScanning)
	files, err := e.store.List()
	if err != nil {
		e.setState(StateFailed)
		return nil, fmt.Errorf("syncengine: scan: %w", err)
	}

	records, err := e.db.SyncRecords()
	if err != nil {
		e.setState(StateFailed)
		return nil, fmt.Errorf("syncengine: load sync records: %w", err)
	}

	e.setState(StateReconciling)
	res := &Result{}
	syncedAt := e.now().UTC()

	seen := make(map[string]struct{}, len(files))
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			e.setState(StateIdle)
			return nil, err
		}
		seen[fi.Path] = struct{}{}

		if rec, ok := records[fi.Path]; ok && !rec.NeedsAttention && rec.Fingerprint().Equal(fi.Fingerprint) {
			continue
		}
		if err := e.indexPath(fi.Path, fi.Kind, fi.Fingerprint, syncedAt); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", fi.Path, err))
			continue
		}
		res.Reconciled++
	}

	// Tombstone index entries whose file is gone.
	stale := make([]string, 0)
	for p := range records {
		if _, ok := seen[p]; !ok {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)
	for _, p := range stale {
		if err := e.db.DeleteByPath(p); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: remove: %v", p, err))
			continue
		}
		e.logger.Debug("sync: removed stale", slog.String("path", p))
		res.Removed++
	}

	if err := e.spawnSuccessors(ctx, res, syncedAt); err != nil {
		e.setState(StateIdle)
		return nil, err
	}
	if err := e.archiveExpired(ctx, res, syncedAt); err != nil {
		e.setState(StateIdle)
		return nil, err
	}

	e.setState(StateIdle)
	e.logger.Info("sync: rebuild complete",
		slog.Int("reconciled", res.Reconciled),
		slog.Int("removed", res.Removed),
		slog.Int("spawned", res.Spawned),
		slog.Int("archived", res.Archived),
		slog.Int("warnings", len(res.Warnings)))
	return res, nil
}

// SyncPath reconciles a single relative path against the index. A missing
// file tombstones its index entries; a malformed one is flagged for
// attention rather than failing the call.
func (e *Engine) SyncPath(ctx context.Context, rel string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	kind, _, ok := filestore.KindOfPath(rel)
	if !ok {
		return nil // not a store file, nothing to index
	}

	fp, err := e.store.Stat(rel)
	if errors.Is(err, apperr.ErrNotFound) {
		return e.db.DeleteByPath(rel)
	}
	if err != nil {
		return fmt.Errorf("syncengine: stat %s: %w", rel, err)
	}

	if err := e.indexPath(rel, kind, fp, e.now().UTC()); err != nil {
		e.logger.Warn("sync: path skipped", slog.String("path", rel), slog.String("error", err.Error()))
	}
	return nil
}

// indexPath reads, parses and upserts one file. Parse failures mark the
// sync record needs_attention so the next rebuild retries it, and are
// returned for the caller to count.
func (e *Engine) indexPath(rel string, kind filestore.Kind, fp checksum.Fingerprint, syncedAt time.Time) error {
	data, err := e.store.Read(rel)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	parsed, err := filestore.Parse(rel, data)
	if err != nil {
		if markErr := e.db.MarkAttention(rel, string(kind), syncedAt); markErr != nil {
			e.logger.Warn("sync: mark attention failed",
				slog.String("path", rel), slog.String("error", markErr.Error()))
		}
		return err
	}

	switch parsed.Kind {
	case filestore.KindSubject:
		err = e.db.UpsertSubject(*parsed.Subject, rel, fp, syncedAt)
	case filestore.KindAgenda:
		err = e.db.ReplaceAgenda(rel, parsed.Agenda, fp, syncedAt)
	case filestore.KindMeeting:
		err = e.db.UpsertMeeting(*parsed.Meeting, rel, fp, syncedAt)
	case filestore.KindAction:
		err = e.db.UpsertAction(*parsed.Action, rel, fp, syncedAt)
	case filestore.KindNote:
		err = e.db.UpsertNote(*parsed.Note, rel, fp, syncedAt)
	}
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	e.logger.Debug("sync: indexed", slog.String("path", rel))
	return nil
}

// spawnSuccessors finds discussed recurring items without a successor and
// appends the next occurrence to their agenda file. The successor id is
// derived deterministically from the original, so re-running after a crash
// writes the same item instead of a duplicate.
func (e *Engine) spawnSuccessors(ctx context.Context, res *Result, syncedAt time.Time) error {
	cands, err := e.db.SpawnCandidates()
	if err != nil {
		return fmt.Errorf("syncengine: spawn candidates: %w", err)
	}
	if len(cands) == 0 {
		return nil
	}

	// Candidates from the same agenda file are written together.
	bySlug := make(map[string][]index.AgendaRecord)
	for _, c := range cands {
		_, slug, ok := filestore.KindOfPath(c.Path)
		if !ok {
			continue
		}
		bySlug[slug] = append(bySlug[slug], c)
	}

	now := e.now().UTC()
	for slug, group := range bySlug {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, err := e.store.ReadAgenda(slug)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("spawn %s: %v", slug, err))
			continue
		}
		byID := make(map[string]int, len(items))
		for i, it := range items {
			byID[it.ID] = i
		}

		changed := false
		for _, cand := range group {
			i, ok := byID[cand.ID]
			if !ok || items[i].SuccessorID != "" || items[i].DiscussedAt == nil {
				continue // file moved on since the scan
			}
			orig := items[i]

			reference := *orig.DiscussedAt
			if orig.RecurrenceAnchor != nil {
				reference = *orig.RecurrenceAnchor
			}
			succ := recurrence.NextOccurrence(orig, reference, now)
			if _, exists := byID[succ.ID]; exists {
				// Successor already on file from an interrupted run; just
				// record the link.
				items[i].SuccessorID = succ.ID
				changed = true
				continue
			}

			items[i].SuccessorID = succ.ID
			items = append(items, succ)
			byID[succ.ID] = len(items) - 1
			changed = true
			res.Spawned++
			e.logger.Info("sync: spawned successor",
				slog.String("subject", slug),
				slog.String("item", orig.ID),
				slog.String("successor", succ.ID))
		}
		if !changed {
			continue
		}

		rel, err := e.store.WriteAgenda(slug, items)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("spawn %s: write: %v", slug, err))
			continue
		}
		fp, err := e.store.Stat(rel)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("spawn %s: stat: %v", slug, err))
			continue
		}
		if err := e.db.ReplaceAgenda(rel, items, fp, syncedAt); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("spawn %s: index: %v", slug, err))
		}
	}
	return nil
}

// archiveExpired persists archived_at on completed actions whose retention
// window has lapsed. The timestamp is completion plus the retention period,
// not wall clock, so a delayed sync stamps the same value an on-time one
// would have.
func (e *Engine) archiveExpired(ctx context.Context, res *Result, syncedAt time.Time) error {
	cutoff := e.now().UTC().Add(-archive.RetentionPeriod)
	cands, err := e.db.ArchiveCandidates(cutoff)
	if err != nil {
		return fmt.Errorf("syncengine: archive candidates: %w", err)
	}

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, slug, ok := filestore.KindOfPath(cand.Path)
		if !ok {
			continue
		}
		a, err := e.store.ReadAction(slug, cand.ID)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("archive %s: %v", cand.Path, err))
			continue
		}
		if a.ArchivedAt != nil || a.CompletedAt == nil {
			continue
		}

		at := archive.ArchiveTime(*a)
		a.ArchivedAt = &at
		rel, err := e.store.WriteAction(slug, *a)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("archive %s: write: %v", cand.Path, err))
			continue
		}
		fp, err := e.store.Stat(rel)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("archive %s: stat: %v", cand.Path, err))
			continue
		}
		if err := e.db.UpsertAction(*a, rel, fp, syncedAt); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("archive %s: index: %v", cand.Path, err))
			continue
		}
		res.Archived++
		e.logger.Info("sync: archived action",
			slog.String("subject", slug), slog.String("action", a.ID))
	}
	return nil
}
