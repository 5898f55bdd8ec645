package parser

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// Registry holds the available parsers in detection order.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a registry with every built-in parser. Order matters:
// the most specific formats are probed first and the plain file parser last.
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewClaudeCodeParser(),
			NewChatGPTParser(),
			NewClaudeParser(),
			NewClineParser(),
			NewGeminiParser(),
			NewCursorParser(),
			NewFileParser(),
		},
	}
}

// Register adds a parser ahead of the plain file fallback.
func (r *Registry) Register(p Parser) {
	n := len(r.parsers)
	if n > 0 && r.parsers[n-1].Source() == prompt.SourceFile {
		r.parsers = append(r.parsers[:n-1], p, r.parsers[n-1])
		return
	}
	r.parsers = append(r.parsers, p)
}

// Detect returns the first parser that validates raw.
func (r *Registry) Detect(raw prompt.RawFile) (Parser, error) {
	// Cursor databases are recognized up front so they get a precise error
	// instead of falling through to "unknown format".
	if isCursorDatabase(raw) {
		return r.bySource(prompt.SourceCursor)
	}
	for _, p := range r.parsers {
		if p.Validate(raw) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", raw.Path, ErrUnknownFormat)
}

// ByName returns a parser by its name or source kind, case-insensitively.
// "claude-code" and "claudecode" both resolve to the JSONL parser.
func (r *Registry) ByName(name string) (Parser, error) {
	key := parserKey(name)
	for _, p := range r.parsers {
		if parserKey(p.Name()) == key {
			return p, nil
		}
	}
	for _, p := range r.parsers {
		if string(p.Source()) == key {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", name)
}

// Resolve picks a parser for raw: the named platform when given and not
// "auto", otherwise by detection.
func (r *Registry) Resolve(platform string, raw prompt.RawFile) (Parser, error) {
	if platform == "" || strings.EqualFold(platform, "auto") {
		return r.Detect(raw)
	}
	p, err := r.ByName(platform)
	if err != nil {
		return nil, err
	}
	// A Claude app export forced as "claude" may really be Claude Code JSONL.
	if p.Source() == prompt.SourceClaude && !p.Validate(raw) {
		if cc, err := r.ByName(claudeCodeName); err == nil && cc.Validate(raw) {
			return cc, nil
		}
	}
	return p, nil
}

func (r *Registry) bySource(kind prompt.SourceKind) (Parser, error) {
	for _, p := range r.parsers {
		if p.Source() == kind {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", kind)
}

func parserKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
}
