package prompt

import (
	"path/filepath"
	"strings"
)

// SourceKind identifies the platform an export came from.
type SourceKind string

const (
	SourceChatGPT SourceKind = "chatgpt"
	SourceClaude  SourceKind = "claude"
	SourceGemini  SourceKind = "gemini"
	SourceCline   SourceKind = "cline"
	SourceCursor  SourceKind = "cursor"
	SourceFile    SourceKind = "file"
)

// Complexity is a coarse size estimate of a prompt.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// RawFile is an uploaded export file. Owned by the caller and never mutated.
type RawFile struct {
	Path      string
	Content   []byte
	SizeBytes int64
}

// NewRawFile builds a RawFile with SizeBytes derived from content.
func NewRawFile(path string, content []byte) RawFile {
	return RawFile{Path: path, Content: content, SizeBytes: int64(len(content))}
}

// Ext returns the lower-cased file extension, including the dot.
func (f RawFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Path))
}

// TaskMetrics carries the optional front-matter numbers of a Cline task export.
type TaskMetrics struct {
	TotalTokens int     `json:"totalTokens,omitempty" msgpack:"total_tokens"`
	Cost        float64 `json:"cost,omitempty" msgpack:"cost"`
	Duration    string  `json:"duration,omitempty" msgpack:"duration"`
}

// Metadata describes where an extracted prompt came from.
type Metadata struct {
	Source            SourceKind   `json:"source"`
	ConversationID    string       `json:"conversationId"`
	ConversationTitle string       `json:"conversationTitle"`
	TimestampMillis   int64        `json:"timestamp"`
	Model             string       `json:"model,omitempty"`
	CodeBlocks        []string     `json:"codeBlocks,omitempty"`
	FileReferences    []string     `json:"fileReferences,omitempty"`
	Complexity        Complexity   `json:"complexity,omitempty"`
	Task              *TaskMetrics `json:"task,omitempty"`
}

// ExtractedPrompt is a single user turn normalized out of an export.
// It has no identity until persisted; equality is by content.
type ExtractedPrompt struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// CategorizedPrompt is an ExtractedPrompt enriched by the categorizer.
type CategorizedPrompt struct {
	ExtractedPrompt
	Category        string     `json:"category"`
	Tags            []string   `json:"tags"`
	SuggestedFolder string     `json:"suggestedFolder"`
	SuggestedName   string     `json:"suggestedName"`
	Complexity      Complexity `json:"complexity"`
	Heuristic       bool       `json:"heuristic,omitempty"`
}

// TitleFrom derives a short title from prompt content: the first non-empty
// line, trimmed to maxLen runes.
func TitleFrom(content string, maxLen int) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return Truncate(line, maxLen)
	}
	return "Untitled prompt"
}

// Truncate cuts s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
