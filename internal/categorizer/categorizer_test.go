package categorizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

type fakeBackend struct {
	mu     sync.Mutex
	calls  int
	sizes  []int
	err    error
	block  chan struct{}
	result func(content string) Categorization
}

func (f *fakeBackend) Categorize(ctx context.Context, contents []string) ([]Categorization, error) {
	f.mu.Lock()
	f.calls++
	f.sizes = append(f.sizes, len(contents))
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Categorization, len(contents))
	for i, c := range contents {
		if f.result != nil {
			out[i] = f.result(c)
			continue
		}
		out[i] = Categorization{
			Category:        "AI",
			Tags:            []string{"ai"},
			SuggestedFolder: "ai",
			SuggestedName:   "AI " + c,
			Complexity:      prompt.ComplexityModerate,
		}
	}
	return out, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ps(contents ...string) []prompt.ExtractedPrompt {
	out := make([]prompt.ExtractedPrompt, len(contents))
	for i, c := range contents {
		out[i] = prompt.ExtractedPrompt{Title: c, Content: c}
	}
	return out
}

func assertPopulated(t *testing.T, c prompt.CategorizedPrompt) {
	t.Helper()
	assert.NotEmpty(t, c.Category)
	assert.NotEmpty(t, c.Tags)
	assert.NotEmpty(t, c.SuggestedFolder)
	assert.NotEmpty(t, c.SuggestedName)
	assert.True(t, validComplexity(c.Complexity), "complexity %q", c.Complexity)
}

func TestGateway_UsesBackendAndCaches(t *testing.T) {
	be := &fakeBackend{}
	g := NewGateway(be)

	out := g.Categorize(context.Background(), ps("alpha", "beta", "ALPHA"))
	require.Len(t, out, 3)
	assert.Equal(t, 1, be.callCount())
	assert.Equal(t, []int{2}, be.sizes, "normalized duplicates are sent once")
	assert.Equal(t, "AI alpha", out[0].SuggestedName)
	assert.Equal(t, "AI alpha", out[2].SuggestedName)
	assert.Equal(t, "ALPHA", out[2].Content)
	assert.False(t, out[0].Heuristic)

	out = g.Categorize(context.Background(), ps("beta"))
	assert.Equal(t, 1, be.callCount(), "second pass served from memory")
	assert.Equal(t, "AI beta", out[0].SuggestedName)
}

func TestGateway_MemoryCacheIsBounded(t *testing.T) {
	be := &fakeBackend{}
	g := NewGateway(be, WithMemoryLimit(2))

	g.Categorize(context.Background(), ps("alpha", "beta", "gamma"))
	assert.Len(t, g.mem, 2)
	assert.Len(t, g.order, 2)
	assert.NotContains(t, g.mem, CacheKey("alpha"), "oldest entry evicted")

	g.Categorize(context.Background(), ps("gamma"))
	assert.Equal(t, 1, be.callCount(), "recent entry still cached")

	g.Categorize(context.Background(), ps("alpha"))
	assert.Equal(t, 2, be.callCount(), "evicted entry categorized again")
	assert.Len(t, g.mem, 2)
	assert.NotContains(t, g.mem, CacheKey("beta"))
}

func TestGateway_Batches(t *testing.T) {
	be := &fakeBackend{}
	g := NewGateway(be, WithBatchSize(10))
	var contents []string
	for i := range 25 {
		contents = append(contents, fmt.Sprintf("prompt %d", i))
	}
	out := g.Categorize(context.Background(), ps(contents...))
	assert.Len(t, out, 25)
	assert.Equal(t, []int{10, 10, 5}, be.sizes)
}

func TestGateway_FallsBackOnError(t *testing.T) {
	be := &fakeBackend{err: errors.New("overloaded")}
	g := NewGateway(be)
	out := g.Categorize(context.Background(), ps("Fix this crash: panic: index out of range in my golang service"))
	require.Len(t, out, 1)
	assert.True(t, out[0].Heuristic)
	assert.Equal(t, "Debugging", out[0].Category)
	assert.Contains(t, out[0].Tags, "go")
	assertPopulated(t, out[0])

	// Heuristic results are not cached.
	be.err = nil
	out = g.Categorize(context.Background(), ps("Fix this crash: panic: index out of range in my golang service"))
	assert.False(t, out[0].Heuristic)
}

func TestGateway_FallsBackOnTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	be := &fakeBackend{block: release}
	g := NewGateway(be, WithTimeout(20*time.Millisecond))

	start := time.Now()
	out := g.Categorize(context.Background(), ps("slow one"))
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, out, 1)
	assert.True(t, out[0].Heuristic)
	assertPopulated(t, out[0])
}

func TestGateway_NoBackend(t *testing.T) {
	out := NewGateway(nil).Categorize(context.Background(), ps("hello there"))
	require.Len(t, out, 1)
	assert.True(t, out[0].Heuristic)
	assert.Equal(t, GeneralCategory, out[0].Category)
}

func TestGateway_FillsPartialResults(t *testing.T) {
	be := &fakeBackend{result: func(string) Categorization {
		return Categorization{Category: "Writing", Complexity: "huge"}
	}}
	out := NewGateway(be).Categorize(context.Background(), ps("Write a polite email to my landlord"))
	require.Len(t, out, 1)
	assert.Equal(t, "Writing", out[0].Category)
	assertPopulated(t, out[0])
	assert.False(t, out[0].Heuristic)
}

// fakeKV implements the parts of jetstream.KeyValue the shared cache uses.
type fakeKV struct {
	jetstream.KeyValue
	mu   sync.Mutex
	data map[string][]byte
}

type fakeEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e fakeEntry) Value() []byte { return e.value }

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{value: v}, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func TestGateway_SharedCacheAcrossInstances(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}}
	shared := NewSharedCache(kv, discardLogger())

	first := NewGateway(&fakeBackend{}, WithSharedCache(shared))
	first.Categorize(context.Background(), ps("summarize this article"))
	require.Len(t, kv.data, 1)
	_, ok := kv.data[CacheKey("summarize this article")]
	assert.True(t, ok)

	down := &fakeBackend{err: errors.New("down")}
	second := NewGateway(down, WithSharedCache(shared))
	out := second.Categorize(context.Background(), ps("Summarize   this article"))
	assert.Zero(t, down.callCount())
	assert.False(t, out[0].Heuristic)
	assert.Equal(t, "AI summarize this article", out[0].SuggestedName)
}

func TestSharedCache_BadEntryIsMiss(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{"k": []byte("not msgpack \xc1")}}
	_, ok := NewSharedCache(kv, discardLogger()).Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("Hello  World"), CacheKey("hello world"))
	assert.NotEqual(t, CacheKey("hello world"), CacheKey("hello world!"))
	assert.Len(t, CacheKey("x"), 64)
}
