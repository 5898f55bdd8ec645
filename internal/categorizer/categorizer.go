// Package categorizer enriches extracted prompts with a category, tags and a
// suggested folder and name, through an AI backend with a two-tier cache and
// a deterministic heuristic fallback.
package categorizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/promptvault/internal/dedup"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

const (
	DefaultBatchSize = 10
	DefaultTimeout   = 30 * time.Second

	// DefaultMemoryEntries bounds the in-process cache. The oldest entry
	// is evicted first.
	DefaultMemoryEntries = 10000
)

// Categorization is what the backend decides for one prompt.
type Categorization struct {
	Category        string            `json:"category" msgpack:"category"`
	Tags            []string          `json:"tags" msgpack:"tags"`
	SuggestedFolder string            `json:"suggestedFolder" msgpack:"suggested_folder"`
	SuggestedName   string            `json:"suggestedName" msgpack:"suggested_name"`
	Complexity      prompt.Complexity `json:"complexity" msgpack:"complexity"`
}

// Backend categorizes prompt contents. The result must be index-aligned
// with contents.
type Backend interface {
	Categorize(ctx context.Context, contents []string) ([]Categorization, error)
}

// Cache is a shared categorization cache keyed by content hash.
type Cache interface {
	Get(ctx context.Context, key string) (Categorization, bool)
	Put(ctx context.Context, key string, c Categorization)
}

// Gateway batches prompts to a Backend. Results are cached in memory and,
// when configured, in a shared cache. Any backend failure or timeout falls
// back to Heuristic for the affected batch.
type Gateway struct {
	backend   Backend
	shared    Cache
	batchSize int
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.RWMutex
	mem      map[string]Categorization
	order    []string // mem keys, oldest first
	memLimit int
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithSharedCache(c Cache) Option { return func(g *Gateway) { g.shared = c } }
func WithBatchSize(n int) Option     { return func(g *Gateway) { g.batchSize = n } }
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}
func WithMetrics(m *metrics.Metrics) Option { return func(g *Gateway) { g.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(g *Gateway) { g.logger = l } }
func WithMemoryLimit(n int) Option          { return func(g *Gateway) { g.memLimit = n } }

// NewGateway creates a gateway. A nil backend categorizes heuristically.
func NewGateway(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend:   backend,
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		mem:       make(map[string]Categorization),
		memLimit:  DefaultMemoryEntries,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.batchSize <= 0 {
		g.batchSize = DefaultBatchSize
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.memLimit <= 0 {
		g.memLimit = DefaultMemoryEntries
	}
	return g
}

// CacheKey is the hex SHA-256 of the normalized content.
func CacheKey(content string) string {
	sum := sha256.Sum256([]byte(dedup.Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// Categorize enriches every prompt. It never fails: prompts the backend
// cannot handle are categorized heuristically.
func (g *Gateway) Categorize(ctx context.Context, prompts []prompt.ExtractedPrompt) []prompt.CategorizedPrompt {
	out := make([]prompt.CategorizedPrompt, len(prompts))
	keys := make([]string, len(prompts))

	// Unique cache misses, in first-seen order.
	var missKeys []string
	missIdx := make(map[string][]int)
	cached := 0
	for i, p := range prompts {
		keys[i] = CacheKey(p.Content)
		if c, ok := g.lookup(ctx, keys[i]); ok {
			out[i] = merge(p, c, false)
			cached++
			continue
		}
		if _, seen := missIdx[keys[i]]; !seen {
			missKeys = append(missKeys, keys[i])
		}
		missIdx[keys[i]] = append(missIdx[keys[i]], i)
	}
	g.metrics.Categorized("cache", cached)

	for start := 0; start < len(missKeys); start += g.batchSize {
		batch := missKeys[start:min(start+g.batchSize, len(missKeys))]
		contents := make([]string, len(batch))
		for j, k := range batch {
			contents[j] = prompts[missIdx[k][0]].Content
		}

		results, err := g.callBackend(ctx, contents)
		if err != nil {
			g.logger.Warn("categorization backend failed, using heuristic", "prompts", len(batch), "error", err)
			n := 0
			for _, k := range batch {
				for _, i := range missIdx[k] {
					out[i] = merge(prompts[i], Heuristic(prompts[i]), true)
					n++
				}
			}
			g.metrics.Categorized("heuristic", n)
			continue
		}

		n := 0
		for j, k := range batch {
			g.store(ctx, k, results[j])
			for _, i := range missIdx[k] {
				out[i] = merge(prompts[i], results[j], false)
				n++
			}
		}
		g.metrics.Categorized("ai", n)
	}
	return out
}

func (g *Gateway) callBackend(ctx context.Context, contents []string) ([]Categorization, error) {
	if g.backend == nil {
		return nil, fmt.Errorf("no categorization backend configured")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type reply struct {
		results []Categorization
		err     error
	}
	ch := make(chan reply, 1)
	go func() {
		r, err := g.backend.Categorize(ctx, contents)
		ch <- reply{r, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.results) != len(contents) {
			return nil, fmt.Errorf("backend returned %d categorizations for %d prompts", len(r.results), len(contents))
		}
		return r.results, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("categorize: %w", ctx.Err())
	}
}

func (g *Gateway) lookup(ctx context.Context, key string) (Categorization, bool) {
	g.mu.RLock()
	c, ok := g.mem[key]
	g.mu.RUnlock()
	if ok {
		return c, true
	}
	if g.shared == nil {
		return Categorization{}, false
	}
	c, ok = g.shared.Get(ctx, key)
	if ok {
		g.remember(key, c)
	}
	return c, ok
}

func (g *Gateway) store(ctx context.Context, key string, c Categorization) {
	g.remember(key, c)
	if g.shared != nil {
		g.shared.Put(ctx, key, c)
	}
}

func (g *Gateway) remember(key string, c Categorization) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.mem[key]; !ok {
		for len(g.mem) >= g.memLimit {
			delete(g.mem, g.order[0])
			g.order = g.order[1:]
		}
		g.order = append(g.order, key)
	}
	g.mem[key] = c
}

// merge applies c to p. Fields the backend left empty are filled from the
// heuristic so every field is populated.
func merge(p prompt.ExtractedPrompt, c Categorization, heuristic bool) prompt.CategorizedPrompt {
	if !heuristic && (c.Category == "" || c.SuggestedFolder == "" || c.SuggestedName == "" || len(c.Tags) == 0 || !validComplexity(c.Complexity)) {
		h := Heuristic(p)
		if c.Category == "" {
			c.Category = h.Category
		}
		if len(c.Tags) == 0 {
			c.Tags = h.Tags
		}
		if c.SuggestedFolder == "" {
			c.SuggestedFolder = h.SuggestedFolder
		}
		if c.SuggestedName == "" {
			c.SuggestedName = h.SuggestedName
		}
		if !validComplexity(c.Complexity) {
			c.Complexity = h.Complexity
		}
	}
	return prompt.CategorizedPrompt{
		ExtractedPrompt: p,
		Category:        c.Category,
		Tags:            c.Tags,
		SuggestedFolder: c.SuggestedFolder,
		SuggestedName:   c.SuggestedName,
		Complexity:      c.Complexity,
		Heuristic:       heuristic,
	}
}

func validComplexity(c prompt.Complexity) bool {
	switch c {
	case prompt.ComplexitySimple, prompt.ComplexityModerate, prompt.ComplexityComplex:
		return true
	}
	return false
}
