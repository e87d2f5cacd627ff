package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/query"
	"github.com/starford/raido/internal/subjectservice"
	"github.com/starford/raido/internal/syncengine"
	"github.com/starford/raido/internal/testutil"
)

// testEnv sets up a temp store, SQLite index, service, and router.
// authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()

	store := testutil.TestStore(t)
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := syncengine.New(store, db, logger)
	svc := subjectservice.New(store, db, engine)
	facade := query.New(db)

	return NewRouter(svc, facade, engine, nil, authToken != "", authToken)
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createTestSubject(t *testing.T, router http.Handler) models.Subject {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/subjects", map[string]any{
		"name": "Platform Team", "type": "team",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create subject status = %d, body = %s", w.Code, w.Body.String())
	}
	var sub models.Subject
	if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestCreateAndGetSubject(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)

	w := doJSON(t, router, http.MethodGet, "/subjects/"+sub.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var ov query.Overview
	if err := json.Unmarshal(w.Body.Bytes(), &ov); err != nil {
		t.Fatal(err)
	}
	if ov.Subject.Name != "Platform Team" {
		t.Errorf("name = %q", ov.Subject.Name)
	}
}

func TestCreateSubject_InvalidType(t *testing.T) {
	router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/subjects", map[string]any{
		"name": "X", "type": "committee",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAddAgendaItem_RecurringWithoutPattern(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)

	w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/agenda", map[string]any{
		"title": "rotate credentials", "priority": 5, "is_recurring": true,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
}

func TestGetSubject_NotFound(t *testing.T) {
	router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/subjects/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAgendaLifecycle(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)

	w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/agenda", map[string]any{
		"title": "weekly review", "priority": 6,
		"is_recurring": true, "recurrence_pattern": "weekly",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}
	var item models.AgendaItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodPost, "/agenda/"+item.ID+"/discuss", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("discuss status = %d, body = %s", w.Code, w.Body.String())
	}
	var discussed models.AgendaItem
	if err := json.Unmarshal(w.Body.Bytes(), &discussed); err != nil {
		t.Fatal(err)
	}
	if discussed.Status != models.AgendaDiscussed || discussed.SuccessorID == "" {
		t.Errorf("discussed = %+v", discussed)
	}

	// Both original and successor show up on the agenda.
	w = doJSON(t, router, http.MethodGet, "/subjects/"+sub.ID+"/agenda", nil)
	var resp struct {
		Items []models.AgendaItem `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("agenda items = %d, want 2", len(resp.Items))
	}
}

func TestActionTimeframes(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)

	// Midway between now and midnight: inside today's window no matter when
	// the test runs.
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	due := now.Add(midnight.Sub(now) / 2).Format(time.RFC3339)
	w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/actions", map[string]any{
		"title": "due soon", "due_date": due,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create action status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/actions", map[string]any{
		"title": "undated",
	}); w.Code != http.StatusCreated {
		t.Fatalf("create action status = %d", w.Code)
	}

	cases := []struct {
		target string
		want   int
	}{
		{"/actions?timeframe=today", 1},
		{"/actions?timeframe=week", 1},
		{"/actions?timeframe=all", 2},
		{"/actions", 2},
	}
	for _, tc := range cases {
		w := doJSON(t, router, http.MethodGet, tc.target, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tc.target, w.Code)
		}
		var resp struct {
			Actions []models.Action `json:"actions"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Actions) != tc.want {
			t.Errorf("%s returned %d actions, want %d", tc.target, len(resp.Actions), tc.want)
		}
	}

	if w := doJSON(t, router, http.MethodGet, "/actions?timeframe=fortnight", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad timeframe status = %d, want 400", w.Code)
	}
}

func TestMeetingConflictOnSameDate(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)

	body := map[string]any{
		"title": "standup", "date": "2024-06-10T10:00:00Z",
		"attendees": []string{"Sam"}, "content": "notes",
	}
	if w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/meetings", body); w.Code != http.StatusCreated {
		t.Fatalf("first meeting status = %d, body = %s", w.Code, w.Body.String())
	}
	body["title"] = "retro"
	body["date"] = "2024-06-10T16:00:00Z"
	if w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/meetings", body); w.Code != http.StatusConflict {
		t.Errorf("second meeting status = %d, want 409", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)

	if w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/notes", map[string]any{
		"title": "kubernetes runbook", "content": "how to restart the cluster",
	}); w.Code != http.StatusCreated {
		t.Fatalf("create note status = %d", w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/search?q=kubernetes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp struct {
		Results []index.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ContentType != index.TypeNote {
		t.Errorf("results = %+v", resp.Results)
	}

	if w := doJSON(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", w.Code)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	router := testEnv(t, "")
	createTestSubject(t, router)

	w := doJSON(t, router, http.MethodPost, "/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d, body = %s", w.Code, w.Body.String())
	}
	var res syncengine.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	// Subject was already indexed by the write path; a rebuild finds nothing
	// to do.
	if res.Reconciled != 0 {
		t.Errorf("reconciled = %d, want 0", res.Reconciled)
	}

	w = doJSON(t, router, http.MethodGet, "/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/subjects", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/subjects", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/subjects", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", w.Code)
	}
}

func TestDeleteSubjectCascades(t *testing.T) {
	router := testEnv(t, "")
	sub := createTestSubject(t, router)
	if w := doJSON(t, router, http.MethodPost, "/subjects/"+sub.ID+"/notes", map[string]any{
		"title": "links", "content": "x",
	}); w.Code != http.StatusCreated {
		t.Fatal("create note failed")
	}

	if w := doJSON(t, router, http.MethodDelete, "/subjects/"+sub.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/subjects/"+sub.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	w := doJSON(t, router, http.MethodGet, "/search?q=links", nil)
	var resp struct {
		Results []index.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("search after delete = %+v", resp.Results)
	}
}
