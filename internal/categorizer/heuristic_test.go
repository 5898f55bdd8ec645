package categorizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category string
		tag      string
		folder   string
	}{
		{"debugging", "I get a null pointer exception when I run this, how do I fix it?", "Debugging", "debugging", "debugging"},
		{"testing", "Write a unit test for this Python function using pytest", "Testing", "python", "testing"},
		{"writing", "Write a polite email to my landlord asking for a rent extension", "Writing", "writing", "writing"},
		{"devops", "Deploy this service with docker and kubernetes", "DevOps", "docker", "devops"},
		{"general", "hello there", GeneralCategory, "general", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Heuristic(prompt.ExtractedPrompt{Content: tt.content})
			assert.Equal(t, tt.category, c.Category)
			assert.Contains(t, c.Tags, tt.tag)
			assert.Equal(t, tt.folder, c.SuggestedFolder)
			assert.NotEmpty(t, c.SuggestedName)
			assert.Equal(t, prompt.ComplexitySimple, c.Complexity)
		})
	}
}

func TestHeuristic_ShortTokensNeedWholeWords(t *testing.T) {
	c := Heuristic(prompt.ExtractedPrompt{Content: "Let's go outside, the status looks good"})
	assert.NotContains(t, c.Tags, "go")
	assert.NotContains(t, c.Tags, "typescript")
}

func TestHeuristic_UsesExistingComplexity(t *testing.T) {
	c := Heuristic(prompt.ExtractedPrompt{Content: "short", Metadata: prompt.Metadata{Complexity: prompt.ComplexityComplex}})
	assert.Equal(t, prompt.ComplexityComplex, c.Complexity)
}

func TestSuggestName(t *testing.T) {
	p := prompt.ExtractedPrompt{Content: "Explain how the Go scheduler multiplexes goroutines onto threads."}
	assert.Equal(t, "Explain how the Go scheduler multiplexes", suggestName(p))
	assert.Equal(t, "Untitled prompt", suggestName(prompt.ExtractedPrompt{Content: "   "}))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "code-generation", slug("Code Generation"))
	assert.Equal(t, "data-analysis", slug("Data  Analysis!"))
}
