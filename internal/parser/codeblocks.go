package parser

import (
	"regexp"
	"strings"
)

// CodeBlock is a fenced block lifted out of a message.
type CodeBlock struct {
	Language string
	Code     string
	Filename string // from a leading filename comment, if any
}

var (
	fenceRe = regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\n(.*?)```")

	// Matches "// src/app.ts", "# File: main.py", "<!-- index.html -->",
	// "/* styles.css */" and "-- schema.sql" on the first line of a block.
	filenameCommentRe = regexp.MustCompile(`(?i)^\s*(?://|#|--|/\*|<!--)\s*(?:file(?:name)?\s*:\s*)?([\w./\\-]+\.[a-z0-9]{1,8})\s*(?:\*/|-->)?\s*$`)
)

// ExtractCodeBlocks returns every fenced code block in text, in order.
func ExtractCodeBlocks(text string) []CodeBlock {
	matches := fenceRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		code := strings.TrimRight(m[2], "\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		blocks = append(blocks, CodeBlock{
			Language: m[1],
			Code:     code,
			Filename: detectFilename(code),
		})
	}
	return blocks
}

func detectFilename(code string) string {
	first, _, _ := strings.Cut(code, "\n")
	m := filenameCommentRe.FindStringSubmatch(first)
	if m == nil {
		return ""
	}
	return m[1]
}
