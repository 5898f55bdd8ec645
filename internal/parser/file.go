package parser

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// FileParser treats a standalone text or Markdown file as a single prompt.
// It is the last resort in detection order.
type FileParser struct{}

func NewFileParser() *FileParser { return &FileParser{} }

func (p *FileParser) Name() string              { return "file" }
func (p *FileParser) Source() prompt.SourceKind { return prompt.SourceFile }

func (p *FileParser) Validate(raw prompt.RawFile) bool {
	switch raw.Ext() {
	case ".txt", ".md", ".markdown", ".prompt":
		return isText(raw.Content)
	}
	return false
}

func (p *FileParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	if isBlank(raw) {
		return nil, nil
	}
	name := strings.TrimSuffix(filepath.Base(raw.Path), filepath.Ext(raw.Path))
	ep := newPrompt(p.Source(), string(raw.Content), raw.Path, name, time.Time{})
	return []prompt.ExtractedPrompt{ep}, nil
}
