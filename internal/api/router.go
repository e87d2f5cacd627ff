package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/query"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/subjectservice"
	"github.com/starford/raido/internal/syncengine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, is mounted at GET /events inside the auth group and
// receives entity change events from the write handlers.
func NewRouter(svc *subjectservice.Service, facade *query.Facade, engine *syncengine.Engine,
	broker *sse.Broker, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc, facade, engine, broker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Subjects.
	r.Get("/subjects", h.ListSubjects)
	r.Post("/subjects", h.CreateSubject)
	r.Get("/subjects/{id}", h.GetSubject)
	r.Put("/subjects/{id}", h.UpdateSubject)
	r.Delete("/subjects/{id}", h.DeleteSubject)
	r.Post("/subjects/{id}/review", h.ReviewSubject)

	// Agenda.
	r.Get("/subjects/{id}/agenda", h.ListAgenda)
	r.Post("/subjects/{id}/agenda", h.AddAgendaItem)
	r.Put("/agenda/{id}", h.UpdateAgendaItem)
	r.Post("/agenda/{id}/discuss", h.DiscussAgendaItem)
	r.Delete("/agenda/{id}", h.DeleteAgendaItem)

	// Actions.
	r.Get("/actions", h.ListActions)
	r.Post("/subjects/{id}/actions", h.CreateAction)
	r.Put("/actions/{id}", h.UpdateAction)
	r.Delete("/actions/{id}", h.DeleteAction)

	// Meetings.
	r.Get("/subjects/{id}/meetings", h.ListMeetings)
	r.Post("/subjects/{id}/meetings", h.CreateMeeting)
	r.Put("/meetings/{id}", h.UpdateMeeting)
	r.Delete("/meetings/{id}", h.DeleteMeeting)

	// Notes.
	r.Get("/subjects/{id}/notes", h.ListNotes)
	r.Post("/subjects/{id}/notes", h.CreateNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Search and sync.
	r.Get("/search", h.Search)
	r.Post("/rebuild", h.Rebuild)
	r.Get("/sync", h.SyncStatus)

	// SSE endpoint (protected by the same auth middleware).
	if broker != nil {
		r.Get("/events", broker.ServeHTTP)
	}

	return r
}
