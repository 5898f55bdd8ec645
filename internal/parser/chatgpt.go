package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// ChatGPTParser reads conversations.json from a ChatGPT data export.
type ChatGPTParser struct{}

func NewChatGPTParser() *ChatGPTParser { return &ChatGPTParser{} }

func (p *ChatGPTParser) Name() string              { return "chatgpt" }
func (p *ChatGPTParser) Source() prompt.SourceKind { return prompt.SourceChatGPT }

func (p *ChatGPTParser) Validate(raw prompt.RawFile) bool {
	return raw.Ext() == ".json" && bytes.Contains(raw.Content, []byte(`"mapping"`))
}

type gptConversation struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Title          string             `json:"title"`
	CreateTime     float64            `json:"create_time"`
	DefaultModel   string             `json:"default_model_slug"`
	Mapping        map[string]gptNode `json:"mapping"`
}

type gptNode struct {
	ID       string      `json:"id"`
	Message  *gptMessage `json:"message"`
	Parent   *string     `json:"parent"`
	Children []string    `json:"children"`
}

type gptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
	} `json:"content"`
	Metadata struct {
		ModelSlug string `json:"model_slug"`
	} `json:"metadata"`
}

func (p *ChatGPTParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isBlank(raw) {
		return nil, nil
	}

	var convs []gptConversation
	trimmed := bytes.TrimSpace(raw.Content)
	if trimmed[0] == '{' {
		var one gptConversation
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, jsonError(p.Source(), raw, err)
		}
		convs = []gptConversation{one}
	} else if err := json.Unmarshal(trimmed, &convs); err != nil {
		return nil, jsonError(p.Source(), raw, err)
	}

	var out []prompt.ExtractedPrompt
	for _, conv := range convs {
		convID := conv.ConversationID
		if convID == "" {
			convID = conv.ID
		}
		model := conv.DefaultModel
		start := len(out)
		for _, node := range walkMapping(conv.Mapping) {
			msg := node.Message
			if msg == nil {
				continue
			}
			if model == "" && msg.Metadata.ModelSlug != "" {
				model = msg.Metadata.ModelSlug
			}
			if msg.Author.Role != "user" {
				continue
			}
			text := joinParts(msg.Content.Parts)
			if strings.TrimSpace(text) == "" {
				continue
			}
			ts := unixSeconds(conv.CreateTime)
			if msg.CreateTime != nil {
				ts = unixSeconds(*msg.CreateTime)
			}
			out = append(out, newPrompt(p.Source(), text, convID, conv.Title, ts))
		}
		// The model slug usually lives on assistant nodes, after the user turn.
		for i := start; i < len(out); i++ {
			out[i].Metadata.Model = model
		}
	}
	return out, nil
}

// walkMapping returns the nodes of a conversation tree depth-first from its
// roots, following children in their listed order. Nodes unreachable from
// any root are appended in id order.
func walkMapping(mapping map[string]gptNode) []gptNode {
	if len(mapping) == 0 {
		return nil
	}

	var roots []string
	for id, node := range mapping {
		if node.Parent == nil || *node.Parent == "" {
			roots = append(roots, id)
			continue
		}
		if _, ok := mapping[*node.Parent]; !ok {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	visited := make(map[string]bool, len(mapping))
	ordered := make([]gptNode, 0, len(mapping))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		node, ok := mapping[id]
		if !ok {
			return
		}
		visited[id] = true
		ordered = append(ordered, node)
		for _, child := range node.Children {
			visit(child)
		}
	}
	for _, id := range roots {
		visit(id)
	}

	if len(visited) < len(mapping) {
		var rest []string
		for id := range mapping {
			if !visited[id] {
				rest = append(rest, id)
			}
		}
		sort.Strings(rest)
		for _, id := range rest {
			visit(id)
		}
	}
	return ordered
}

// joinParts concatenates the string parts of a message. Non-string parts
// (image pointers, attachments) are skipped.
func joinParts(parts []json.RawMessage) string {
	var texts []string
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				texts = append(texts, s)
			}
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &obj); err == nil && strings.TrimSpace(obj.Text) != "" {
			texts = append(texts, obj.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// jsonError wraps a decode failure with the line it occurred on.
func jsonError(source prompt.SourceKind, raw prompt.RawFile, err error) error {
	line := 0
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntax):
		line = lineAt(raw.Content, syntax.Offset)
	case errors.As(err, &typeErr):
		line = lineAt(raw.Content, typeErr.Offset)
	}
	return &Error{Source: source, File: raw.Path, Line: line, Err: err}
}

func lineAt(content []byte, offset int64) int {
	if offset <= 0 {
		return 1
	}
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}
