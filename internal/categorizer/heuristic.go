package categorizer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// Categories is the fixed list the heuristic chooses from, in priority order.
var Categories = []struct {
	Name     string
	Keywords []string
}{
	{"Debugging", []string{"debug", "error", "bug", "fix", "exception", "stack trace", "crash", "not working", "broken", "fails"}},
	{"Testing", []string{"test", "unit test", "integration test", "mock", "coverage", "assert", "tdd"}},
	{"Code Review", []string{"review", "feedback on", "improve this code", "code smell", "best practice"}},
	{"Refactoring", []string{"refactor", "clean up", "simplify", "restructure", "rename", "extract method"}},
	{"Documentation", []string{"document", "docs", "readme", "docstring", "comment", "explain"}},
	{"DevOps", []string{"deploy", "docker", "kubernetes", "ci/cd", "pipeline", "terraform", "helm", "nginx"}},
	{"Data Analysis", []string{"analyze", "analysis", "dataset", "csv", "chart", "statistics", "pandas", "sql query"}},
	{"Code Generation", []string{"write a function", "implement", "create a", "generate", "build a", "code", "script", "function", "class"}},
	{"Writing", []string{"write", "email", "essay", "blog", "article", "rewrite", "summarize", "tone"}},
	{"Research", []string{"research", "compare", "what is", "difference between", "pros and cons", "overview"}},
	{"Design", []string{"design", "architecture", "diagram", "ui", "ux", "layout", "wireframe"}},
}

// GeneralCategory is used when no keyword matches.
const GeneralCategory = "General"

var techTags = []struct {
	Tag      string
	Keywords []string
}{
	{"python", []string{"python", "django", "flask", "pandas", "pip"}},
	{"javascript", []string{"javascript", "node", "nodejs", "npm", "js"}},
	{"typescript", []string{"typescript", "tsx", "ts"}},
	{"go", []string{"golang", "goroutine", "goroutines", "go.mod"}},
	{"rust", []string{"rust", "cargo", "rustc"}},
	{"java", []string{"java", "spring", "maven", "gradle"}},
	{"react", []string{"react", "jsx", "nextjs", "next.js"}},
	{"vue", []string{"vue", "vuejs", "nuxt"}},
	{"sql", []string{"sql", "postgres", "postgresql", "mysql", "sqlite"}},
	{"docker", []string{"docker", "dockerfile", "container"}},
	{"kubernetes", []string{"kubernetes", "k8s", "kubectl", "helm"}},
	{"aws", []string{"aws", "lambda", "s3", "ec2"}},
	{"html", []string{"html"}},
	{"css", []string{"css", "tailwind", "scss"}},
	{"api", []string{"api", "rest", "graphql", "endpoint"}},
	{"git", []string{"git", "github", "commit", "rebase"}},
}

var wordRe = regexp.MustCompile(`[a-z0-9][a-z0-9.+#/-]*`)

// Heuristic categorizes a prompt without any external call: keyword
// matching against Categories, technology tags, complexity from line and
// word counts, and a folder and name derived from those.
func Heuristic(p prompt.ExtractedPrompt) Categorization {
	text := strings.ToLower(p.Content)
	words := make(map[string]bool)
	for _, w := range wordRe.FindAllString(text, -1) {
		words[strings.TrimRight(w, ".")] = true
	}

	category := GeneralCategory
	best := 0
	for _, c := range Categories {
		score := 0
		for _, kw := range c.Keywords {
			if matches(text, words, kw) {
				score++
			}
		}
		if score > best {
			category, best = c.Name, score
		}
	}

	var tags []string
	for _, t := range techTags {
		for _, kw := range t.Keywords {
			if matches(text, words, kw) {
				tags = append(tags, t.Tag)
				break
			}
		}
	}
	if len(tags) == 0 {
		tags = []string{slug(category)}
	}

	complexity := p.Metadata.Complexity
	if complexity == "" {
		complexity = prompt.EstimateComplexity(p.Content, len(p.Metadata.CodeBlocks))
	}

	return Categorization{
		Category:        category,
		Tags:            tags,
		SuggestedFolder: slug(category),
		SuggestedName:   suggestName(p),
		Complexity:      complexity,
	}
}

// Multi-word keywords match as substrings, single words as whole tokens.
func matches(text string, words map[string]bool, kw string) bool {
	if strings.ContainsAny(kw, " /") {
		return strings.Contains(text, kw)
	}
	return words[kw]
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

const nameWords = 6

func suggestName(p prompt.ExtractedPrompt) string {
	src := p.Title
	if src == "" {
		src = p.Content
	}
	fields := strings.Fields(prompt.TitleFrom(src, 200))
	if len(fields) > nameWords {
		fields = fields[:nameWords]
	}
	name := strings.TrimRight(strings.Join(fields, " "), ".,:;!?")
	if name == "" {
		return "Untitled prompt"
	}
	return prompt.Truncate(name, 60)
}
