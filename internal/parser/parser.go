package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// Parser converts one platform's export into prompts extracted from
// human/user turns only.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// Source is the SourceKind stamped on every prompt this parser emits.
	Source() prompt.SourceKind
	// Validate reports whether raw looks like this parser's format.
	Validate(raw prompt.RawFile) bool
	// Parse returns zero prompts and no error for empty or non-matching
	// content, and an *Error only for genuinely malformed input.
	Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error)
}

// Splitter is implemented by parsers whose exports can be cut into
// independently parseable pieces, so large files never have to be decoded
// as one structure.
type Splitter interface {
	Split(content string) []string
}

// Error is a structured parse failure.
type Error struct {
	Source prompt.SourceKind
	File   string
	Line   int // 1-based, 0 when unknown
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "parse error in %s export", e.Source)
	if e.File != "" {
		fmt.Fprintf(&sb, " %s", e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrServerSideRequired is returned for Cursor SQLite databases.
	ErrServerSideRequired = errors.New("cursor SQLite databases require server-side processing; export the chat history as JSON and import that instead")
	// ErrUnknownFormat is returned when no parser recognizes a file.
	ErrUnknownFormat = errors.New("unsupported file format: not a recognized ChatGPT, Claude, Gemini, Cline or Cursor export")
)

const titleLen = 80

var sqliteMagic = []byte("SQLite format 3\x00")

// newPrompt assembles an ExtractedPrompt from a user turn.
func newPrompt(source prompt.SourceKind, content, convID, convTitle string, ts time.Time) prompt.ExtractedPrompt {
	content = strings.TrimSpace(content)
	p := prompt.ExtractedPrompt{
		Title:   prompt.TitleFrom(content, titleLen),
		Content: content,
		Metadata: prompt.Metadata{
			Source:            source,
			ConversationID:    convID,
			ConversationTitle: convTitle,
		},
	}
	if !ts.IsZero() {
		p.Metadata.TimestampMillis = ts.UnixMilli()
	}
	blocks := ExtractCodeBlocks(content)
	for _, b := range blocks {
		p.Metadata.CodeBlocks = append(p.Metadata.CodeBlocks, b.Code)
		if b.Filename != "" {
			p.Metadata.FileReferences = append(p.Metadata.FileReferences, b.Filename)
		}
	}
	p.Metadata.Complexity = prompt.EstimateComplexity(content, len(blocks))
	return p
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006, 3:04:05 PM",
	"Jan 2, 2006, 3:04:05 PM",
	"2006-01-02",
}

// parseTime accepts RFC3339 strings; anything else yields the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// jsonTime decodes a timestamp that may be a string or a number of epoch
// seconds or milliseconds.
func jsonTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTime(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f <= 0 {
		return time.Time{}
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return unixSeconds(f)
}

// unixSeconds converts fractional epoch seconds to a time.
func unixSeconds(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func isBlank(raw prompt.RawFile) bool {
	return len(bytes.TrimSpace(raw.Content)) == 0
}

func looksLikeJSON(content []byte) bool {
	trimmed := bytes.TrimSpace(content)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func isText(content []byte) bool {
	return utf8.Valid(content) && !bytes.Contains(content, []byte{0})
}
