package parser

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// ClineParser reads Markdown task exports from the Cline VS Code extension.
// Two shapes are recognized: a single task document with optional front
// matter, "## Summary" and "## Conversation" sections, and a concatenation
// of "## Task <id> - <title> (<timestamp>)" documents.
type ClineParser struct{}

func NewClineParser() *ClineParser { return &ClineParser{} }

func (p *ClineParser) Name() string              { return "cline" }
func (p *ClineParser) Source() prompt.SourceKind { return prompt.SourceCline }

var (
	clineTaskRe    = regexp.MustCompile(`^##\s+Task\s+(\S+)\s*-\s*(.*?)\s*(?:\(([^()]*)\))?\s*$`)
	clineHeadingRe = regexp.MustCompile(`^(#{1,3})\s+(.*?)\s*$`)
	clineBoldRole  = regexp.MustCompile(`(?i)^\*\*(human|user|assistant|cline)(?::\*\*|\*\*:)\s*(.*)$`)
)

type clineRole int

const (
	roleNone clineRole = iota
	roleUser
	roleAssistant
)

// clineFrontMatter is the optional metadata block at the top of an export.
type clineFrontMatter struct {
	Model       string `yaml:"model"`
	TotalTokens int    `yaml:"totalTokens"`
	Cost        string `yaml:"cost"`
	Duration    string `yaml:"duration"`
}

func (fm clineFrontMatter) metrics() *prompt.TaskMetrics {
	cost, _ := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(fm.Cost), "$"), 64)
	if fm.TotalTokens == 0 && cost == 0 && fm.Duration == "" {
		return nil
	}
	return &prompt.TaskMetrics{TotalTokens: fm.TotalTokens, Cost: cost, Duration: fm.Duration}
}

func (p *ClineParser) Validate(raw prompt.RawFile) bool {
	switch raw.Ext() {
	case ".md", ".markdown", ".txt":
	default:
		return false
	}
	if !isText(raw.Content) {
		return false
	}
	scanner := bufio.NewScanner(strings.NewReader(string(raw.Content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if clineTaskRe.MatchString(line) || clineBoldRole.MatchString(line) {
			return true
		}
		if m := clineHeadingRe.FindStringSubmatch(line); m != nil && len(m[1]) == 3 && roleFor(m[2]) != roleNone {
			return true
		}
	}
	return false
}

func (p *ClineParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isBlank(raw) {
		return nil, nil
	}
	body, fm := splitFrontMatter(string(raw.Content))
	return p.parseBody(raw.Path, body, fm), nil
}

// Split cuts a multi-task export at its task headers. Front matter, when
// present, is carried into every piece.
func (p *ClineParser) Split(content string) []string {
	fmBlock := ""
	if body, _ := splitFrontMatter(content); len(body) < len(content) {
		fmBlock = content[:len(content)-len(body)]
		content = body
	}

	var pieces []string
	var cur strings.Builder
	inFence := false
	emit := func() {
		if strings.TrimSpace(cur.String()) != "" {
			pieces = append(pieces, fmBlock+cur.String())
		}
		cur.Reset()
	}
	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence && clineTaskRe.MatchString(trimmed) {
			emit()
		}
		cur.WriteString(line)
	}
	emit()
	return pieces
}

type clineTask struct {
	id    string
	title string
	ts    time.Time
}

func (p *ClineParser) parseBody(path, body string, fm clineFrontMatter) []prompt.ExtractedPrompt {
	var (
		out     []prompt.ExtractedPrompt
		task    = clineTask{id: path}
		docName string
		role    = roleNone
		buf     []string
		inFence bool
	)
	metrics := fm.metrics()

	flush := func() {
		if role == roleUser {
			text := strings.TrimSpace(strings.Join(buf, "\n"))
			if text != "" {
				title := task.title
				if title == "" {
					title = docName
				}
				ep := newPrompt(p.Source(), text, task.id, title, task.ts)
				ep.Metadata.Model = fm.Model
				ep.Metadata.Task = metrics
				out = append(out, ep)
			}
		}
		buf = buf[:0]
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			if role != roleNone {
				buf = append(buf, line)
			}
			continue
		}
		if inFence {
			if role != roleNone {
				buf = append(buf, line)
			}
			continue
		}

		if m := clineTaskRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			role = roleNone
			task = clineTask{id: m[1], title: m[2], ts: parseTime(m[3])}
			continue
		}
		if m := clineBoldRole.FindStringSubmatch(trimmed); m != nil {
			flush()
			role = roleFor(m[1])
			if m[2] != "" {
				buf = append(buf, m[2])
			}
			continue
		}
		if m := clineHeadingRe.FindStringSubmatch(trimmed); m != nil {
			level, name := len(m[1]), m[2]
			switch {
			case level == 3 && roleFor(name) != roleNone:
				flush()
				role = roleFor(name)
				continue
			case level == 2 && isClineSection(name):
				flush()
				role = roleNone
				continue
			case level == 1 && role == roleNone:
				if docName == "" {
					docName = name
				}
				continue
			}
		}
		if role != roleNone {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

// isClineSection reports whether a level-two heading is one of the export's
// own sections rather than Markdown inside a message.
func isClineSection(name string) bool {
	switch strings.ToLower(name) {
	case "summary", "conversation", "conversation history", "messages", "metadata", "files", "task":
		return true
	}
	return false
}

func roleFor(name string) clineRole {
	switch strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), ":")) {
	case "human", "user":
		return roleUser
	case "assistant", "cline":
		return roleAssistant
	}
	return roleNone
}

// splitFrontMatter strips a leading "---" block and decodes it. A block
// yaml.v3 rejects is read line by line as "key: value" pairs.
func splitFrontMatter(content string) (string, clineFrontMatter) {
	var fm clineFrontMatter
	trimmed := strings.TrimLeft(content, "\ufeff \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return content, fm
	}
	rest := trimmed[3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(rest[:nl]) != "" {
		return content, fm
	}
	rest = rest[nl+1:]

	end := -1
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if strings.TrimSpace(line) == "---" {
			end = offset
			offset += len(line)
			break
		}
		offset += len(line)
	}
	if end < 0 {
		return content, fm
	}

	block := rest[:end]
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		fm = frontMatterFromLines(block)
	}
	return rest[offset:], fm
}

func frontMatterFromLines(block string) clineFrontMatter {
	var fm clineFrontMatter
	for _, line := range strings.Split(block, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		switch strings.TrimSpace(key) {
		case "model":
			fm.Model = val
		case "totalTokens":
			fm.TotalTokens, _ = strconv.Atoi(strings.ReplaceAll(val, ",", ""))
		case "cost":
			fm.Cost = val
		case "duration":
			fm.Duration = val
		}
	}
	return fm
}
