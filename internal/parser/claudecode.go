package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

const (
	claudeCodeName = "claude-code"

	// claudeCodeSplitLines is the number of transcript lines per piece when a
	// large transcript is parsed piecewise.
	claudeCodeSplitLines = 500
)

// ClaudeCodeParser reads Claude Code JSONL session transcripts. Prompts are
// stamped with SourceClaude.
type ClaudeCodeParser struct{}

func NewClaudeCodeParser() *ClaudeCodeParser { return &ClaudeCodeParser{} }

func (p *ClaudeCodeParser) Name() string              { return claudeCodeName }
func (p *ClaudeCodeParser) Source() prompt.SourceKind { return prompt.SourceClaude }

// ccLine represents a single line from a transcript.
type ccLine struct {
	Type       string    `json:"type"`
	UUID       string    `json:"uuid"`
	ParentUUID *string   `json:"parentUuid"`
	SessionID  string    `json:"sessionId"`
	Timestamp  string    `json:"timestamp"`
	Message    ccMessage `json:"message"`
}

type ccMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
}

type ccContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (p *ClaudeCodeParser) Validate(raw prompt.RawFile) bool {
	if raw.Ext() == ".jsonl" {
		return true
	}
	if raw.Ext() != ".json" && raw.Ext() != "" {
		return false
	}
	// A headerless transcript: the first non-empty line is a complete
	// message object.
	scanner := bufio.NewScanner(bytes.NewReader(raw.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var l ccLine
		if err := json.Unmarshal(line, &l); err != nil {
			return false
		}
		return l.Message.Role != "" && (l.Type == "user" || l.Type == "assistant" || l.Type == "summary")
	}
	return false
}

func (p *ClaudeCodeParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isBlank(raw) {
		return nil, nil
	}

	// First pass: collect message lines keyed by UUID and track the
	// parent chain.
	byUUID := make(map[string]*ccLine)
	var order []string
	var roots []string
	children := make(map[string]string)
	model := ""

	parsed, firstBad := 0, 0
	lineNo := 0
	scanner := bufio.NewScanner(bytes.NewReader(raw.Content))
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		lineNo++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var line ccLine
		if err := json.Unmarshal(b, &line); err != nil {
			if firstBad == 0 {
				firstBad = lineNo
			}
			continue
		}
		parsed++

		if line.Type != "user" && line.Type != "assistant" {
			continue
		}
		if line.Type == "assistant" && model == "" {
			model = line.Message.Model
		}
		if line.UUID == "" {
			line.UUID = fmt.Sprintf("line-%d", lineNo)
		}
		if _, dup := byUUID[line.UUID]; dup {
			continue
		}
		byUUID[line.UUID] = &line
		order = append(order, line.UUID)

		if line.ParentUUID == nil || *line.ParentUUID == "" {
			roots = append(roots, line.UUID)
		} else {
			children[*line.ParentUUID] = line.UUID
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Source: p.Source(), File: raw.Path, Line: lineNo + 1, Err: fmt.Errorf("scan: %w", err)}
	}
	if parsed == 0 && firstBad > 0 {
		return nil, &Error{Source: p.Source(), File: raw.Path, Line: firstBad, Err: fmt.Errorf("no valid JSON lines")}
	}
	if len(byUUID) == 0 {
		return nil, nil
	}

	// Walk each chain from its root. Lines whose parent lives outside this
	// piece of the transcript are picked up afterwards in file order.
	ordered := make([]*ccLine, 0, len(byUUID))
	visited := make(map[string]bool, len(byUUID))
	for _, rootID := range roots {
		for current := rootID; current != "" && !visited[current]; current = children[current] {
			if line, ok := byUUID[current]; ok {
				ordered = append(ordered, line)
				visited[current] = true
			}
		}
	}
	for _, id := range order {
		if !visited[id] {
			ordered = append(ordered, byUUID[id])
			visited[id] = true
		}
	}

	var out []prompt.ExtractedPrompt
	convTitle := ""
	for _, line := range ordered {
		if line.Type != "user" || line.Message.Role != "user" {
			continue
		}
		text, isToolResult := extractCCText(line)
		if isToolResult || strings.TrimSpace(text) == "" {
			continue
		}
		if convTitle == "" {
			convTitle = prompt.TitleFrom(text, titleLen)
		}
		ep := newPrompt(p.Source(), text, line.SessionID, convTitle, parseTime(line.Timestamp))
		ep.Metadata.Model = model
		out = append(out, ep)
	}
	return out, nil
}

// Split cuts a transcript into groups of whole lines.
func (p *ClaudeCodeParser) Split(content string) []string {
	lines := strings.SplitAfter(content, "\n")
	var pieces []string
	for i := 0; i < len(lines); i += claudeCodeSplitLines {
		end := i + claudeCodeSplitLines
		if end > len(lines) {
			end = len(lines)
		}
		piece := strings.Join(lines[i:end], "")
		if strings.TrimSpace(piece) != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// extractCCText returns the text of a message and whether it was a
// tool_result turn, which is not a human prompt.
func extractCCText(line *ccLine) (string, bool) {
	if line.Message.Content == nil {
		return "", false
	}

	var plain string
	if err := json.Unmarshal(line.Message.Content, &plain); err == nil {
		return plain, false
	}

	var blocks []ccContentBlock
	if err := json.Unmarshal(line.Message.Content, &blocks); err != nil {
		return "", false
	}
	for _, b := range blocks {
		if b.Type == "tool_result" {
			return "", true
		}
	}

	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n"), false
}
