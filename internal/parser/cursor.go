package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// CursorParser reads chat sessions exported from Cursor as JSON. The
// state.vscdb SQLite store is rejected with ErrServerSideRequired.
type CursorParser struct{}

func NewCursorParser() *CursorParser { return &CursorParser{} }

func (p *CursorParser) Name() string              { return "cursor" }
func (p *CursorParser) Source() prompt.SourceKind { return prompt.SourceCursor }

func (p *CursorParser) Validate(raw prompt.RawFile) bool {
	if isCursorDatabase(raw) {
		return true
	}
	if raw.Ext() != ".json" || !looksLikeJSON(raw.Content) {
		return false
	}
	c := raw.Content
	return bytes.Contains(c, []byte(`"sessions"`)) ||
		bytes.Contains(c, []byte(`"composerId"`)) ||
		(bytes.Contains(c, []byte(`"messages"`)) && bytes.Contains(c, []byte(`"role"`)))
}

type cursorSession struct {
	ID         string          `json:"id"`
	ComposerID string          `json:"composerId"`
	Title      string          `json:"title"`
	Name       string          `json:"name"`
	CreatedAt  json.RawMessage `json:"createdAt"`
	Model      string          `json:"model"`
	Messages   []cursorMessage `json:"messages"`
}

type cursorMessage struct {
	Role      string          `json:"role"`
	Type      json.RawMessage `json:"type"`
	Content   string          `json:"content"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// isUser accepts role "user" and the numeric bubble type 1 used by
// composer exports.
func (m cursorMessage) isUser() bool {
	if strings.EqualFold(m.Role, "user") {
		return true
	}
	t := strings.Trim(string(m.Type), `"`)
	return m.Role == "" && (t == "1" || strings.EqualFold(t, "user"))
}

func (s cursorSession) id() string {
	if s.ID != "" {
		return s.ID
	}
	return s.ComposerID
}

func (s cursorSession) title() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

func (p *CursorParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isCursorDatabase(raw) {
		return nil, fmt.Errorf("%s: %w", raw.Path, ErrServerSideRequired)
	}
	if isBlank(raw) {
		return nil, nil
	}

	sessions, err := decodeCursorSessions(bytes.TrimSpace(raw.Content))
	if err != nil {
		return nil, jsonError(p.Source(), raw, err)
	}

	var out []prompt.ExtractedPrompt
	for _, s := range sessions {
		for _, m := range s.Messages {
			if !m.isUser() {
				continue
			}
			text := m.Content
			if text == "" {
				text = m.Text
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			ts := jsonTime(m.Timestamp)
			if ts.IsZero() {
				ts = jsonTime(s.CreatedAt)
			}
			ep := newPrompt(p.Source(), text, s.id(), s.title(), ts)
			ep.Metadata.Model = s.Model
			out = append(out, ep)
		}
	}
	return out, nil
}

// decodeCursorSessions accepts a single session, an array of sessions or
// {"sessions": [...]}.
func decodeCursorSessions(data []byte) ([]cursorSession, error) {
	if data[0] == '[' {
		var list []cursorSession
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var probe struct {
		Sessions []cursorSession `json:"sessions"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Sessions != nil {
		return probe.Sessions, nil
	}
	var one cursorSession
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []cursorSession{one}, nil
}

func isCursorDatabase(raw prompt.RawFile) bool {
	if bytes.HasPrefix(raw.Content, sqliteMagic) {
		return true
	}
	switch raw.Ext() {
	case ".vscdb", ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
