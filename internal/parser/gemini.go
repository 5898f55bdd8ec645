package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// GeminiParser reads Google Takeout "Gemini Apps" activity, structured
// conversation exports, and Docs/plaintext transcripts.
type GeminiParser struct{}

func NewGeminiParser() *GeminiParser { return &GeminiParser{} }

func (p *GeminiParser) Name() string              { return "gemini" }
func (p *GeminiParser) Source() prompt.SourceKind { return prompt.SourceGemini }

const takeoutPromptPrefix = "Prompted "

var (
	geminiUserTurnRe  = regexp.MustCompile(`(?i)^\s*(you|user|me|human)\s*:\s?(.*)$`)
	geminiModelTurnRe = regexp.MustCompile(`(?i)^\s*(gemini|bard|model|assistant|ai)\s*:\s?(.*)$`)
)

func (p *GeminiParser) Validate(raw prompt.RawFile) bool {
	switch raw.Ext() {
	case ".json":
		c := raw.Content
		if bytes.Contains(c, []byte(`"`+takeoutPromptPrefix)) {
			return true
		}
		// Cursor exports also carry role-tagged messages.
		if bytes.Contains(c, []byte(`"sessions"`)) || bytes.Contains(c, []byte(`"composerId"`)) {
			return false
		}
		return bytes.Contains(c, []byte(`"conversations"`)) && bytes.Contains(c, []byte(`"role"`))
	case ".txt", ".md":
		if !isText(raw.Content) {
			return false
		}
		hasUser, hasModel := false, false
		scanner := bufio.NewScanner(bytes.NewReader(raw.Content))
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if geminiUserTurnRe.MatchString(line) {
				hasUser = true
			} else if geminiModelTurnRe.MatchString(line) {
				hasModel = true
			}
			if hasUser && hasModel {
				return true
			}
		}
		return false
	}
	return false
}

type geminiActivity struct {
	Header string `json:"header"`
	Title  string `json:"title"`
	Time   string `json:"time"`
}

type geminiConversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt string          `json:"created_at"`
	Model     string          `json:"model"`
	Messages  []geminiMessage `json:"messages"`
}

type geminiMessage struct {
	Role      string `json:"role"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func (m geminiMessage) isUser() bool {
	role := strings.ToLower(m.Role)
	if role == "" {
		role = strings.ToLower(m.Author)
	}
	return role == "user" || role == "human"
}

func (m geminiMessage) text() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Text
}

// Parse tries the structured JSON shapes first and falls back to matching
// "You:"-style prefixes in plain text when the content is not JSON.
func (p *GeminiParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isBlank(raw) {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(raw.Content, &doc); err != nil {
		return p.parsePlaintext(raw), nil
	}

	switch v := doc.(type) {
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		first, _ := v[0].(map[string]any)
		if _, ok := first["messages"]; ok {
			var convs []geminiConversation
			if err := json.Unmarshal(raw.Content, &convs); err != nil {
				return nil, jsonError(p.Source(), raw, err)
			}
			return p.fromConversations(convs), nil
		}
		var acts []geminiActivity
		if err := json.Unmarshal(raw.Content, &acts); err != nil {
			return nil, jsonError(p.Source(), raw, err)
		}
		return p.fromActivity(acts), nil
	case map[string]any:
		if _, ok := v["conversations"]; ok {
			var wrapper struct {
				Conversations []geminiConversation `json:"conversations"`
			}
			if err := json.Unmarshal(raw.Content, &wrapper); err != nil {
				return nil, jsonError(p.Source(), raw, err)
			}
			return p.fromConversations(wrapper.Conversations), nil
		}
		if _, ok := v["messages"]; ok {
			var conv geminiConversation
			if err := json.Unmarshal(raw.Content, &conv); err != nil {
				return nil, jsonError(p.Source(), raw, err)
			}
			return p.fromConversations([]geminiConversation{conv}), nil
		}
	}
	return nil, nil
}

// fromActivity turns Takeout activity records into prompts. Each
// "Prompted ..." entry is a standalone conversation.
func (p *GeminiParser) fromActivity(acts []geminiActivity) []prompt.ExtractedPrompt {
	var out []prompt.ExtractedPrompt
	for i, a := range acts {
		if !strings.HasPrefix(a.Title, takeoutPromptPrefix) {
			continue
		}
		text := strings.TrimPrefix(a.Title, takeoutPromptPrefix)
		if strings.TrimSpace(text) == "" {
			continue
		}
		convID := a.Time
		if convID == "" {
			convID = "activity-" + strconv.Itoa(i)
		}
		out = append(out, newPrompt(p.Source(), text, convID, a.Header, parseTime(a.Time)))
	}
	return out
}

func (p *GeminiParser) fromConversations(convs []geminiConversation) []prompt.ExtractedPrompt {
	var out []prompt.ExtractedPrompt
	for _, c := range convs {
		for _, m := range c.Messages {
			if !m.isUser() || strings.TrimSpace(m.text()) == "" {
				continue
			}
			ts := parseTime(m.Timestamp)
			if ts.IsZero() {
				ts = parseTime(c.CreatedAt)
			}
			ep := newPrompt(p.Source(), m.text(), c.ID, c.Title, ts)
			ep.Metadata.Model = c.Model
			out = append(out, ep)
		}
	}
	return out
}

// parsePlaintext is a best-effort pass over a transcript copied out of
// Gemini or Google Docs. A user turn starts at a "You:", "User:", "Me:" or
// "Human:" line and runs until the next model turn or user turn.
func (p *GeminiParser) parsePlaintext(raw prompt.RawFile) []prompt.ExtractedPrompt {
	var (
		out    []prompt.ExtractedPrompt
		buf    []string
		inUser bool
	)
	flush := func() {
		if inUser {
			text := strings.TrimSpace(strings.Join(buf, "\n"))
			if text != "" {
				out = append(out, newPrompt(p.Source(), text, raw.Path, "", time.Time{}))
			}
		}
		buf = buf[:0]
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := geminiUserTurnRe.FindStringSubmatch(line); m != nil {
			flush()
			inUser = true
			buf = append(buf, m[2])
			continue
		}
		if geminiModelTurnRe.MatchString(line) {
			flush()
			inUser = false
			continue
		}
		if inUser {
			buf = append(buf, line)
		}
	}
	flush()

	title := ""
	if len(out) > 0 {
		title = out[0].Title
	}
	for i := range out {
		out[i].Metadata.ConversationTitle = title
	}
	return out
}
