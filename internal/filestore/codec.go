package filestore

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// Parsed is the result of decoding one store file. Exactly one entity field
// is populated, selected by Kind; an agenda file decodes to the whole list.
type Parsed struct {
	Kind    Kind
	Slug    string
	Subject *models.Subject
	Agenda  []models.AgendaItem
	Meeting *models.Meeting
	Action  *models.Action
	Note    *models.Note
}

// Parse decodes raw file bytes according to the path's kind. Malformed
// content is reported as a ParseError tagged with the path so scans can skip
// the file and continue.
func Parse(rel string, data []byte) (*Parsed, error) {
	kind, slug, ok := KindOfPath(rel)
	if !ok {
		return nil, &apperr.ParseError{Path: rel, Err: fmt.Errorf("path not in store layout")}
	}

	p := &Parsed{Kind: kind, Slug: slug}
	switch kind {
	case KindSubject:
		var s models.Subject
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		if err := s.Validate(); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		p.Subject = &s

	case KindAgenda:
		var items []models.AgendaItem
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		for i := range items {
			if err := items[i].Validate(); err != nil {
				return nil, &apperr.ParseError{Path: rel, Err: fmt.Errorf("item %d: %w", i, err)}
			}
		}
		p.Agenda = items

	case KindMeeting:
		var m models.Meeting
		body, err := decodeDocument(rel, data, &m)
		if err != nil {
			return nil, err
		}
		m.Content = body
		if err := m.Validate(); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		p.Meeting = &m

	case KindAction:
		var a models.Action
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		if err := a.Validate(); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		p.Action = &a

	case KindNote:
		var n models.Note
		body, err := decodeDocument(rel, data, &n)
		if err != nil {
			return nil, err
		}
		n.Content = body
		if err := n.Validate(); err != nil {
			return nil, &apperr.ParseError{Path: rel, Err: err}
		}
		p.Note = &n
	}
	return p, nil
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeDocument renders a free-form document: YAML frontmatter holding the
// entity metadata, followed by the Markdown body.
func encodeDocument(meta any, body string) ([]byte, error) {
	fm, err := encodeYAML(meta)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// decodeDocument splits frontmatter from the body and unmarshals the
// frontmatter into meta. Missing or unterminated frontmatter is malformed:
// documents without metadata cannot be tied back to an entity.
func decodeDocument(rel string, data []byte, meta any) (string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return "", &apperr.ParseError{Path: rel, Err: fmt.Errorf("missing frontmatter")}
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return "", &apperr.ParseError{Path: rel, Err: fmt.Errorf("unterminated frontmatter")}
	}
	if err := yaml.Unmarshal(rest[:idx], meta); err != nil {
		return "", &apperr.ParseError{Path: rel, Err: err}
	}
	body := rest[idx+1+len(delim):]
	return strings.TrimLeft(string(body), "\n\r"), nil
}
