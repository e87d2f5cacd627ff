package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/query"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/subjectservice"
	"github.com/starford/raido/internal/syncengine"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc    *subjectservice.Service
	facade *query.Facade
	engine *syncengine.Engine
	broker *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil when SSE is disabled.
func NewHandler(svc *subjectservice.Service, facade *query.Facade, engine *syncengine.Engine, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, facade: facade, engine: engine, broker: broker}
}

func (h *Handler) notify(entity, verb, id string) {
	if h.broker != nil {
		h.broker.PublishChange(entity, verb, id)
	}
}

// respondErr maps domain errors onto HTTP statuses.
func respondErr(w http.ResponseWriter, err error, op string) {
	var verrs validation.Errors
	var verr validation.Error
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.As(err, &verrs), errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// --- subjects ---

// ListSubjects handles GET /api/subjects.
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subs, err := h.facade.Subjects()
	if err != nil {
		respondErr(w, err, "list subjects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": subs})
}

// GetSubject handles GET /api/subjects/{id}: the full detail view.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ov, err := h.facade.SubjectOverview(id, includeArchived(r))
	if err != nil {
		respondErr(w, err, "get subject")
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// CreateSubject handles POST /api/subjects.
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.SubjectInput
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := h.svc.CreateSubject(r.Context(), req)
	if err != nil {
		respondErr(w, err, "create subject")
		return
	}
	h.notify("subject", "created", sub.ID)
	writeJSON(w, http.StatusCreated, sub)
}

// UpdateSubject handles PUT /api/subjects/{id}.
func (h *Handler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.SubjectInput
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := h.svc.UpdateSubject(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "update subject")
		return
	}
	h.notify("subject", "updated", sub.ID)
	writeJSON(w, http.StatusOK, sub)
}

// ReviewSubject handles POST /api/subjects/{id}/review.
func (h *Handler) ReviewSubject(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.MarkReviewed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err, "review subject")
		return
	}
	h.notify("subject", "updated", sub.ID)
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubject handles DELETE /api/subjects/{id}.
func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteSubject(r.Context(), id); err != nil {
		respondErr(w, err, "delete subject")
		return
	}
	h.notify("subject", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- agenda ---

// ListAgenda handles GET /api/subjects/{id}/agenda.
func (h *Handler) ListAgenda(w http.ResponseWriter, r *http.Request) {
	items, err := h.facade.AgendaFor(chi.URLParam(r, "id"), includeArchived(r))
	if err != nil {
		respondErr(w, err, "list agenda")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AddAgendaItem handles POST /api/subjects/{id}/agenda.
func (h *Handler) AddAgendaItem(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.AgendaInput
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.svc.AddAgendaItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "add agenda item")
		return
	}
	h.notify("agenda", "created", item.ID)
	writeJSON(w, http.StatusCreated, item)
}

// UpdateAgendaItem handles PUT /api/agenda/{id}.
func (h *Handler) UpdateAgendaItem(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.AgendaInput
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.svc.UpdateAgendaItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "update agenda item")
		return
	}
	h.notify("agenda", "updated", item.ID)
	writeJSON(w, http.StatusOK, item)
}

// DiscussAgendaItem handles POST /api/agenda/{id}/discuss.
func (h *Handler) DiscussAgendaItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.MarkDiscussed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err, "discuss agenda item")
		return
	}
	h.notify("agenda", "updated", item.ID)
	writeJSON(w, http.StatusOK, item)
}

// DeleteAgendaItem handles DELETE /api/agenda/{id}.
func (h *Handler) DeleteAgendaItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteAgendaItem(r.Context(), id); err != nil {
		respondErr(w, err, "delete agenda item")
		return
	}
	h.notify("agenda", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- actions ---

// ListActions handles GET /api/actions with timeframe filtering.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	tf, err := query.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	actions, err := h.facade.ActionsByTimeframe(tf, includeArchived(r))
	if err != nil {
		respondErr(w, err, "list actions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// CreateAction handles POST /api/subjects/{id}/actions.
func (h *Handler) CreateAction(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.ActionInput
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.CreateAction(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "create action")
		return
	}
	h.notify("action", "created", a.ID)
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAction handles PUT /api/actions/{id}.
func (h *Handler) UpdateAction(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.ActionInput
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.UpdateAction(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "update action")
		return
	}
	h.notify("action", "updated", a.ID)
	writeJSON(w, http.StatusOK, a)
}

// DeleteAction handles DELETE /api/actions/{id}.
func (h *Handler) DeleteAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteAction(r.Context(), id); err != nil {
		respondErr(w, err, "delete action")
		return
	}
	h.notify("action", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- meetings ---

// ListMeetings handles GET /api/subjects/{id}/meetings.
func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := h.facade.MeetingsFor(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err, "list meetings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

// CreateMeeting handles POST /api/subjects/{id}/meetings.
func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.MeetingInput
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.svc.CreateMeeting(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "create meeting")
		return
	}
	h.notify("meeting", "created", m.ID)
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMeeting handles PUT /api/meetings/{id}.
func (h *Handler) UpdateMeeting(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.MeetingInput
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.svc.UpdateMeeting(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "update meeting")
		return
	}
	h.notify("meeting", "updated", m.ID)
	writeJSON(w, http.StatusOK, m)
}

// DeleteMeeting handles DELETE /api/meetings/{id}.
func (h *Handler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteMeeting(r.Context(), id); err != nil {
		respondErr(w, err, "delete meeting")
		return
	}
	h.notify("meeting", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- notes ---

// ListNotes handles GET /api/subjects/{id}/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.facade.NotesFor(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err, "list notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// CreateNote handles POST /api/subjects/{id}/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.NoteInput
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.CreateNote(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "create note")
		return
	}
	h.notify("note", "created", n.ID)
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req subjectservice.NoteInput
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, err, "update note")
		return
	}
	h.notify("note", "updated", n.ID)
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		respondErr(w, err, "delete note")
		return
	}
	h.notify("note", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- search and sync ---

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}
	results, err := h.facade.Search(q, types)
	if err != nil {
		respondErr(w, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Rebuild handles POST /api/rebuild: a full index rebuild from disk.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Rebuild(r.Context())
	if err != nil {
		respondErr(w, err, "rebuild")
		return
	}
	if h.broker != nil {
		h.broker.PublishRebuild(res.Reconciled, res.Removed, len(res.Warnings))
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncStatus handles GET /api/sync: the engine state plus files flagged for
// attention.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state": h.engine.State().String(),
	})
}

func includeArchived(r *http.Request) bool {
	return r.URL.Query().Get("include_archived") == "true"
}
