package parser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// ClaudeParser reads conversations.json from a claude.ai data export.
type ClaudeParser struct{}

func NewClaudeParser() *ClaudeParser { return &ClaudeParser{} }

func (p *ClaudeParser) Name() string              { return "claude" }
func (p *ClaudeParser) Source() prompt.SourceKind { return prompt.SourceClaude }

func (p *ClaudeParser) Validate(raw prompt.RawFile) bool {
	if raw.Ext() != ".json" {
		return false
	}
	return bytes.Contains(raw.Content, []byte(`"chat_messages"`)) ||
		(bytes.Contains(raw.Content, []byte(`"sender"`)) && bytes.Contains(raw.Content, []byte(`"human"`)))
}

type claudeConversation struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	Model        string          `json:"model"`
	CreatedAt    string          `json:"created_at"`
	ChatMessages []claudeMessage `json:"chat_messages"`
	Messages     []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	UUID      string `json:"uuid"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *ClaudeParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isBlank(raw) {
		return nil, nil
	}

	var convs []claudeConversation
	trimmed := bytes.TrimSpace(raw.Content)
	if trimmed[0] == '{' {
		var one claudeConversation
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, jsonError(p.Source(), raw, err)
		}
		convs = []claudeConversation{one}
	} else if err := json.Unmarshal(trimmed, &convs); err != nil {
		return nil, jsonError(p.Source(), raw, err)
	}

	var out []prompt.ExtractedPrompt
	for _, conv := range convs {
		msgs := conv.ChatMessages
		if len(msgs) == 0 {
			msgs = conv.Messages
		}
		for _, m := range msgs {
			if m.Sender != "human" {
				continue
			}
			text := m.Text
			if strings.TrimSpace(text) == "" {
				var parts []string
				for _, c := range m.Content {
					if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
						parts = append(parts, c.Text)
					}
				}
				text = strings.Join(parts, "\n")
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			ts := parseTime(m.CreatedAt)
			if ts.IsZero() {
				ts = parseTime(conv.CreatedAt)
			}
			ep := newPrompt(p.Source(), text, conv.UUID, conv.Name, ts)
			ep.Metadata.Model = conv.Model
			out = append(out, ep)
		}
	}
	return out, nil
}
