package filestore

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleSubject() models.Subject {
	return models.Subject{
		ID:             "subj-1",
		Name:           "Platform Team",
		Code:           "PLT",
		Type:           models.SubjectTeam,
		Description:    "infra and tooling",
		CreatedAt:      ts("2024-01-01T10:00:00Z"),
		LastReviewedAt: ts("2024-06-01T10:00:00Z"),
	}
}

func TestNew_MissingRootIsStoreUnavailable(t *testing.T) {
	_, err := New("/nonexistent/raido-store")
	if !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestSubject_RoundTrip(t *testing.T) {
	s := tempStore(t)
	sub := sampleSubject()

	rel, err := s.WriteSubject(sub)
	if err != nil {
		t.Fatalf("WriteSubject: %v", err)
	}
	if rel != "subjects/platform_team/subject.yaml" {
		t.Errorf("path = %q", rel)
	}

	got, err := s.ReadSubject("platform_team")
	if err != nil {
		t.Fatalf("ReadSubject: %v", err)
	}
	if *got != sub {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, sub)
	}
}

func TestWriteSubject_SlugConflict(t *testing.T) {
	s := tempStore(t)
	if _, err := s.WriteSubject(sampleSubject()); err != nil {
		t.Fatalf("WriteSubject: %v", err)
	}

	other := sampleSubject()
	other.ID = "subj-2" // different subject, same name → same slug
	_, err := s.WriteSubject(other)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Original file untouched.
	got, err := s.ReadSubject("platform_team")
	if err != nil {
		t.Fatalf("ReadSubject: %v", err)
	}
	if got.ID != "subj-1" {
		t.Errorf("original subject overwritten: id = %q", got.ID)
	}
}

func TestWriteSubject_MalformedExistingConflicts(t *testing.T) {
	s := tempStore(t)
	garbage := []byte("{{ not yaml")
	if err := s.Write("subjects/platform_team/subject.yaml", garbage); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := s.WriteSubject(sampleSubject())
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// The unreadable file still holds data; it must survive untouched.
	data, err := s.Read("subjects/platform_team/subject.yaml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != string(garbage) {
		t.Errorf("existing file overwritten: %q", data)
	}
}

func TestWriteSubject_SameIDUpdates(t *testing.T) {
	s := tempStore(t)
	sub := sampleSubject()
	if _, err := s.WriteSubject(sub); err != nil {
		t.Fatalf("WriteSubject: %v", err)
	}
	sub.Description = "updated"
	if _, err := s.WriteSubject(sub); err != nil {
		t.Fatalf("update should not conflict: %v", err)
	}
}

func TestAgenda_RoundTrip(t *testing.T) {
	s := tempStore(t)
	discussed := ts("2024-05-01T09:00:00Z")
	items := []models.AgendaItem{
		{
			ID: "ag-1", SubjectID: "subj-1", Title: "quarterly goals",
			Priority: 9, Status: models.AgendaActive, CreatedAt: ts("2024-04-01T08:00:00Z"),
		},
		{
			ID: "ag-2", SubjectID: "subj-1", Title: "standing 1:1",
			Priority: 5, Status: models.AgendaDiscussed, CreatedAt: ts("2024-04-02T08:00:00Z"),
			DiscussedAt: &discussed, IsRecurring: true, RecurrencePattern: models.RecurWeekly,
		},
	}

	if _, err := s.WriteAgenda("platform_team", items); err != nil {
		t.Fatalf("WriteAgenda: %v", err)
	}
	got, err := s.ReadAgenda("platform_team")
	if err != nil {
		t.Fatalf("ReadAgenda: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "ag-1" || got[1].RecurrencePattern != models.RecurWeekly {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got[1].DiscussedAt == nil || !got[1].DiscussedAt.Equal(discussed) {
		t.Errorf("discussed_at = %v, want %v", got[1].DiscussedAt, discussed)
	}
}

func TestReadAgenda_MissingFileIsEmpty(t *testing.T) {
	s := tempStore(t)
	got, err := s.ReadAgenda("nobody")
	if err != nil {
		t.Fatalf("ReadAgenda: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestMeeting_RoundTrip(t *testing.T) {
	s := tempStore(t)
	m := models.Meeting{
		ID:        "mtg-1",
		SubjectID: "subj-1",
		Title:     "Sprint review",
		Date:      ts("2024-06-10T14:00:00Z"),
		Attendees: []string{"Alice", "Bob"},
		Content:   "# Notes\n\nDiscussed the rollout.\n",
		CreatedAt: ts("2024-06-10T15:00:00Z"),
		UpdatedAt: ts("2024-06-10T15:00:00Z"),
	}

	rel, err := s.WriteMeeting("platform_team", m)
	if err != nil {
		t.Fatalf("WriteMeeting: %v", err)
	}
	if rel != "subjects/platform_team/meetings/2024-06-10.md" {
		t.Errorf("path = %q", rel)
	}

	got, err := s.ReadMeeting("platform_team", m.Date)
	if err != nil {
		t.Fatalf("ReadMeeting: %v", err)
	}
	if got.ID != m.ID || got.Title != m.Title || len(got.Attendees) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Content != m.Content {
		t.Errorf("content = %q, want %q", got.Content, m.Content)
	}
}

func TestWriteMeeting_SameDateConflicts(t *testing.T) {
	s := tempStore(t)
	m := models.Meeting{
		ID: "mtg-1", SubjectID: "subj-1", Date: ts("2024-06-10T14:00:00Z"),
		Content: "first",
	}
	if _, err := s.WriteMeeting("platform_team", m); err != nil {
		t.Fatalf("WriteMeeting: %v", err)
	}

	second := m
	second.ID = "mtg-2"
	second.Date = ts("2024-06-10T18:00:00Z") // same calendar date
	second.Content = "second"
	_, err := s.WriteMeeting("platform_team", second)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	got, err := s.ReadMeeting("platform_team", m.Date)
	if err != nil {
		t.Fatalf("ReadMeeting: %v", err)
	}
	if got.Content != "first" {
		t.Errorf("original meeting overwritten: %q", got.Content)
	}
}

func TestAction_RoundTrip(t *testing.T) {
	s := tempStore(t)
	due := ts("2024-06-20T00:00:00Z")
	a := models.Action{
		ID: "act-1", SubjectID: "subj-1", Title: "ship the migration",
		Status: models.ActionTodo, DueDate: &due,
		CreatedAt: ts("2024-06-01T08:00:00Z"),
		MeetingID: "mtg-1", Tags: []string{"infra", "q2"},
	}

	if _, err := s.WriteAction("platform_team", a); err != nil {
		t.Fatalf("WriteAction: %v", err)
	}
	got, err := s.ReadAction("platform_team", "act-1")
	if err != nil {
		t.Fatalf("ReadAction: %v", err)
	}
	if got.Title != a.Title || got.MeetingID != "mtg-1" || len(got.Tags) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("due_date = %v, want %v", got.DueDate, due)
	}
}

func TestNote_RoundTrip(t *testing.T) {
	s := tempStore(t)
	n := models.Note{
		ID: "note-1", SubjectID: "subj-1", Title: "Runbook",
		Content:   "## Oncall\n\nPage the platform channel.\n",
		Tags:      []string{"ops"},
		CreatedAt: ts("2024-05-01T08:00:00Z"),
		UpdatedAt: ts("2024-05-02T08:00:00Z"),
	}
	if _, err := s.WriteNote("platform_team", n); err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	got, err := s.ReadNote("platform_team", "note-1")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got.Title != n.Title || got.Content != n.Content || len(got.Tags) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestParse_MalformedIsParseError(t *testing.T) {
	s := tempStore(t)
	rel := "subjects/platform_team/actions/bad.yaml"
	if err := s.Write(rel, []byte("{not yaml:::")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := s.Read(rel)
	_, err := Parse(rel, data)
	if !apperr.IsParse(err) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	var pe *apperr.ParseError
	if !errors.As(err, &pe) || pe.Path != rel {
		t.Errorf("ParseError path = %v", err)
	}
}

func TestParse_NoteMissingFrontmatter(t *testing.T) {
	rel := "subjects/x/notes/n.md"
	_, err := Parse(rel, []byte("just a body, no metadata"))
	if !apperr.IsParse(err) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestList_OrdersSubjectsFirst(t *testing.T) {
	s := tempStore(t)
	if _, err := s.WriteSubject(sampleSubject()); err != nil {
		t.Fatal(err)
	}
	a := models.Action{
		ID: "act-1", SubjectID: "subj-1", Title: "t",
		Status: models.ActionTodo, CreatedAt: ts("2024-06-01T08:00:00Z"),
	}
	if _, err := s.WriteAction("platform_team", a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteAgenda("platform_team", nil); err != nil {
		t.Fatal(err)
	}

	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("len = %d, want 3", len(infos))
	}
	if infos[0].Kind != KindSubject || infos[1].Kind != KindAgenda || infos[2].Kind != KindAction {
		t.Errorf("order = %v %v %v", infos[0].Kind, infos[1].Kind, infos[2].Kind)
	}
	for _, fi := range infos {
		if fi.Fingerprint.Hash == "" || fi.Fingerprint.Size == 0 {
			t.Errorf("%s: incomplete fingerprint %+v", fi.Path, fi.Fingerprint)
		}
		if fi.Slug != "platform_team" {
			t.Errorf("%s: slug = %q", fi.Path, fi.Slug)
		}
	}
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	s := tempStore(t)
	if err := s.Write("subjects/platform_team/README.txt", []byte("hi")); err != nil {
		t.Fatal(err)
	}
	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("len = %d, want 0", len(infos))
	}
}

func TestDeleteSubjectTree(t *testing.T) {
	s := tempStore(t)
	if _, err := s.WriteSubject(sampleSubject()); err != nil {
		t.Fatal(err)
	}
	n := models.Note{
		ID: "note-1", SubjectID: "subj-1", Title: "t", Content: "c",
		CreatedAt: ts("2024-05-01T08:00:00Z"), UpdatedAt: ts("2024-05-01T08:00:00Z"),
	}
	if _, err := s.WriteNote("platform_team", n); err != nil {
		t.Fatal(err)
	}

	removed, err := s.DeleteSubjectTree("platform_team")
	if err != nil {
		t.Fatalf("DeleteSubjectTree: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want 2 paths", removed)
	}
	if _, err := s.ReadSubject("platform_team"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("subject should be gone, err = %v", err)
	}
}

func TestKindOfPath(t *testing.T) {
	cases := []struct {
		rel  string
		kind Kind
		slug string
		ok   bool
	}{
		{"subjects/team_x/subject.yaml", KindSubject, "team_x", true},
		{"subjects/team_x/agenda.yaml", KindAgenda, "team_x", true},
		{"subjects/team_x/meetings/2024-06-10.md", KindMeeting, "team_x", true},
		{"subjects/team_x/actions/abc.yaml", KindAction, "team_x", true},
		{"subjects/team_x/notes/abc.md", KindNote, "team_x", true},
		{"subjects/team_x/notes/abc.txt", "", "", false},
		{"subjects/team_x/stray.yaml", "", "", false},
		{"elsewhere/file.md", "", "", false},
	}
	for _, tc := range cases {
		kind, slug, ok := KindOfPath(tc.rel)
		if kind != tc.kind || slug != tc.slug || ok != tc.ok {
			t.Errorf("KindOfPath(%q) = (%v, %q, %v), want (%v, %q, %v)",
				tc.rel, kind, slug, ok, tc.kind, tc.slug, tc.ok)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Platform Team":    "platform_team",
		"Q2 Board -- Prep": "q2_board_prep",
		"  spaced  out  ":  "spaced_out",
		"Ops/Infra!":       "opsinfra",
	}
	for in, want := range cases {
		if got := models.Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
