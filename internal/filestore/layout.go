package filestore

import (
	"path"
	"strings"
	"time"
)

// Kind identifies which entity a store file holds.
type Kind string

const (
	KindSubject Kind = "subject"
	KindAgenda  Kind = "agenda"
	KindMeeting Kind = "meeting"
	KindAction  Kind = "action"
	KindNote    Kind = "note"
)

// On-disk layout, one directory per subject. This layout is a durable
// contract with external tools and must not change:
//
//	subjects/<slug>/subject.yaml
//	subjects/<slug>/agenda.yaml
//	subjects/<slug>/meetings/<YYYY-MM-DD>.md
//	subjects/<slug>/actions/<id>.yaml
//	subjects/<slug>/notes/<id>.md
const (
	subjectsDir = "subjects"
	subjectFile = "subject.yaml"
	agendaFile  = "agenda.yaml"
	meetingsDir = "meetings"
	actionsDir  = "actions"
	notesDir    = "notes"

	meetingDateLayout = "2006-01-02"
)

// SubjectPath returns the metadata file path for a subject slug.
func SubjectPath(slug string) string {
	return path.Join(subjectsDir, slug, subjectFile)
}

// AgendaPath returns the agenda list file path for a subject slug.
func AgendaPath(slug string) string {
	return path.Join(subjectsDir, slug, agendaFile)
}

// MeetingPath returns the meeting document path for a subject and date.
func MeetingPath(slug string, date time.Time) string {
	return path.Join(subjectsDir, slug, meetingsDir, date.Format(meetingDateLayout)+".md")
}

// ActionPath returns the action file path for a subject and action id.
func ActionPath(slug, id string) string {
	return path.Join(subjectsDir, slug, actionsDir, id+".yaml")
}

// NotePath returns the note document path for a subject and note id.
func NotePath(slug, id string) string {
	return path.Join(subjectsDir, slug, notesDir, id+".md")
}

// KindOfPath infers the entity kind and subject slug from a store-relative
// path. Unrecognized paths return ok=false and are ignored by scans.
func KindOfPath(rel string) (kind Kind, slug string, ok bool) {
	parts := strings.Split(path.Clean(rel), "/")
	if len(parts) < 3 || parts[0] != subjectsDir {
		return "", "", false
	}
	slug = parts[1]
	switch {
	case len(parts) == 3 && parts[2] == subjectFile:
		return KindSubject, slug, true
	case len(parts) == 3 && parts[2] == agendaFile:
		return KindAgenda, slug, true
	case len(parts) == 4 && parts[2] == meetingsDir && strings.HasSuffix(parts[3], ".md"):
		return KindMeeting, slug, true
	case len(parts) == 4 && parts[2] == actionsDir && strings.HasSuffix(parts[3], ".yaml"):
		return KindAction, slug, true
	case len(parts) == 4 && parts[2] == notesDir && strings.HasSuffix(parts[3], ".md"):
		return KindNote, slug, true
	}
	return "", "", false
}

// kindRank orders scans so a subject's metadata is processed before its
// child entities (the index denormalizes the subject name into children).
func kindRank(k Kind) int {
	switch k {
	case KindSubject:
		return 0
	case KindAgenda:
		return 1
	default:
		return 2
	}
}
