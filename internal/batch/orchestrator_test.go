package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/promptvault/internal/parser"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
	"github.com/MikeSquared-Agency/promptvault/internal/recovery"
)

// claudeExport builds a claude.ai export with one human turn per prompt.
func claudeExport(convID string, prompts ...string) []byte {
	var msgs []string
	for _, p := range prompts {
		msgs = append(msgs,
			fmt.Sprintf(`{"sender":"human","text":%q}`, p),
			`{"sender":"assistant","text":"ok"}`,
		)
	}
	return []byte(fmt.Sprintf(`[{"uuid":%q,"name":"conv","chat_messages":[%s]}]`, convID, strings.Join(msgs, ",")))
}

func newTestOrchestrator(extra ...parser.Parser) *Orchestrator {
	reg := parser.NewRegistry()
	for _, p := range extra {
		reg.Register(p)
	}
	rec := recovery.NewRecoverer(nil)
	rec.MemoryPause = time.Millisecond
	rec.NetworkPause = time.Millisecond
	return New(reg, rec, nil, nil)
}

func contents(ps []prompt.ExtractedPrompt) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Content
	}
	return out
}

// flakyParser fails the first failTimes parses of each file with err.
type flakyParser struct {
	mu        sync.Mutex
	calls     map[string]int
	failTimes int
	err       error
}

func newFlaky(failTimes int, err error) *flakyParser {
	return &flakyParser{calls: make(map[string]int), failTimes: failTimes, err: err}
}

func (f *flakyParser) Name() string                 { return "flaky" }
func (f *flakyParser) Source() prompt.SourceKind    { return prompt.SourceFile }
func (f *flakyParser) Validate(prompt.RawFile) bool { return false }
func (f *flakyParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	f.mu.Lock()
	f.calls[raw.Path]++
	n := f.calls[raw.Path]
	f.mu.Unlock()
	if n <= f.failTimes {
		return nil, f.err
	}
	return []prompt.ExtractedPrompt{{Title: raw.Path, Content: "prompt from " + raw.Path}}, nil
}

func (f *flakyParser) callsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func TestProcessBatch_ThreeFilesTwoTurnsEach(t *testing.T) {
	files := []prompt.RawFile{
		prompt.NewRawFile("a.json", claudeExport("a", "write a parser", "add tests")),
		prompt.NewRawFile("b.json", claudeExport("b", "explain channels", "show select")),
		prompt.NewRawFile("c.json", claudeExport("c", "draft an email", "make it shorter")),
	}
	var mu sync.Mutex
	var updates []Progress
	opts := DefaultOptions()
	opts.MaxConcurrency = 2
	opts.ChunkSize = 2
	opts.Progress = func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	}

	res, err := newTestOrchestrator().ProcessBatch(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Len(t, res.Successful, 6)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 3, res.TotalProcessed)
	assert.Equal(t, 1.0, res.SuccessRate)

	require.Len(t, updates, 4, "one update per file plus the final one")
	last := updates[len(updates)-1]
	assert.Equal(t, StageCompleted, last.Stage)
	assert.Equal(t, 100, last.Percent)
	prev := 0
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.Percent, prev)
		prev = u.Percent
	}
}

func TestProcessBatch_SingleFileCountsAsSucceeded(t *testing.T) {
	files := []prompt.RawFile{prompt.NewRawFile("a.json", claudeExport("a", "summarize this thread"))}

	res, err := newTestOrchestrator().ProcessBatch(context.Background(), files, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SucceededFiles)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"summarize this thread"}, contents(res.Successful))
	assert.Equal(t, 1.0, res.SuccessRate)
}

func TestProcessBatch_FailedFileKeepsItsOwnError(t *testing.T) {
	files := []prompt.RawFile{
		prompt.NewRawFile("a.json", claudeExport("a", "refactor the handler")),
		prompt.NewRawFile("empty.json", nil),
	}

	res, err := newTestOrchestrator().ProcessBatch(context.Background(), files, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SucceededFiles)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "empty.json", res.Failed[0].File)
	assert.NotEqual(t, msgCancelled, res.Failed[0].Error.Message)
}

func TestResult_AddFailures(t *testing.T) {
	res := &Result{TotalProcessed: 3, SucceededFiles: 3, SuccessRate: 1}
	res.AddFailures()
	assert.Equal(t, 3, res.TotalProcessed)

	unreadable := FileFailure{File: "gone.json", Error: recovery.New(recovery.PermissionError, "permission denied", recovery.Context{File: "gone.json"})}
	res.AddFailures(unreadable)
	assert.Equal(t, 4, res.TotalProcessed)
	assert.Equal(t, 0.75, res.SuccessRate)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "gone.json", res.Failed[0].File)
}

func TestProcessBatch_CrossFileDuplicate(t *testing.T) {
	files := []prompt.RawFile{
		prompt.NewRawFile("a.json", claudeExport("a", "set up CI", "add a Makefile")),
		prompt.NewRawFile("b.json", claudeExport("b", "write release notes", "set up CI")),
	}
	res, err := newTestOrchestrator().ProcessBatch(context.Background(), files, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Successful, 3)
	assert.Equal(t, 1, res.DuplicatesRemoved)
	assert.Equal(t, "set up CI", res.Successful[0].Content, "first occurrence survives")
	assert.Equal(t, "a", res.Successful[0].Metadata.ConversationID)
}

func TestProcessBatch_MemoryErrorRetried(t *testing.T) {
	flaky := newFlaky(1, errors.New("JavaScript heap out of memory"))
	opts := DefaultOptions()
	opts.Platform = "flaky"

	res, err := newTestOrchestrator(flaky).ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("big.json", []byte("{}"))}, opts)
	require.NoError(t, err)
	assert.Len(t, res.Successful, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 2, flaky.callsFor("big.json"))
}

func TestProcessBatch_RetriesExhausted(t *testing.T) {
	flaky := newFlaky(10, errors.New("connection reset by peer"))
	opts := DefaultOptions()
	opts.Platform = "flaky"
	opts.MaxRetries = 2

	res, err := newTestOrchestrator(flaky).ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("x.json", []byte("{}"))}, opts)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, recovery.NetworkError, res.Failed[0].Error.Type)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, flaky.callsFor("x.json"), "initial attempt plus two retries")
}

// stepParser returns errs in order, one per parse, then succeeds.
type stepParser struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *stepParser) Name() string                 { return "step" }
func (s *stepParser) Source() prompt.SourceKind    { return prompt.SourceFile }
func (s *stepParser) Validate(prompt.RawFile) bool { return false }
func (s *stepParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return []prompt.ExtractedPrompt{{Title: raw.Path, Content: "prompt from " + raw.Path}}, nil
}

func TestProcessBatch_RetryStopsOnNonRecoverableError(t *testing.T) {
	step := &stepParser{errs: []error{
		errors.New("connection reset by peer"),
		errors.New("open x.json: permission denied"),
	}}
	opts := DefaultOptions()
	opts.Platform = "step"
	opts.MaxRetries = 3

	res, err := newTestOrchestrator(step).ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("x.json", []byte("{}"))}, opts)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, recovery.PermissionError, res.Failed[0].Error.Type)
	assert.Equal(t, "x.json", res.Failed[0].Error.File)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 2, step.calls)
}

func TestProcessBatch_RecoveryDisabled(t *testing.T) {
	flaky := newFlaky(1, errors.New("out of memory"))
	opts := DefaultOptions()
	opts.Platform = "flaky"
	opts.EnableRecovery = false

	res, err := newTestOrchestrator(flaky).ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("x.json", []byte("{}"))}, opts)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, recovery.MemoryError, res.Failed[0].Error.Type)
	assert.Zero(t, res.Retries)
}

func TestProcessBatch_ParseErrorNotRetried(t *testing.T) {
	opts := DefaultOptions()
	opts.Platform = "chatgpt"
	res, err := newTestOrchestrator().ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("conversations.json", []byte(`[{"mapping": {`))}, opts)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, recovery.ParseError, res.Failed[0].Error.Type)
	assert.Zero(t, res.Retries)
	assert.NotEmpty(t, res.Failed[0].Error.Suggestion)
}

func TestProcessBatch_Conservation(t *testing.T) {
	files := []prompt.RawFile{
		prompt.NewRawFile("good.json", claudeExport("g", "one", "two")),
		prompt.NewRawFile("empty.json", nil),
		prompt.NewRawFile("blank.md", []byte("   \n\n")),
		prompt.NewRawFile("photo.png", []byte{0x89, 'P', 'N', 'G'}),
		prompt.NewRawFile("huge.json", []byte(strings.Repeat("x", 2048))),
		prompt.NewRawFile("state.vscdb", []byte("SQLite format 3\x00....")),
		prompt.NewRawFile("idea.md", []byte("Write a sonnet about gophers")),
	}
	opts := DefaultOptions()
	opts.MaxFileSize = 1024

	res, err := newTestOrchestrator().ProcessBatch(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Equal(t, len(files), res.TotalProcessed)
	assert.Equal(t, res.TotalProcessed, res.SucceededFiles+len(res.Failed))
	assert.Equal(t, 2, res.SucceededFiles)

	types := map[string]recovery.ErrorType{}
	for _, f := range res.Failed {
		types[f.File] = f.Error.Type
	}
	assert.Equal(t, recovery.EmptyFile, types["empty.json"])
	assert.Equal(t, recovery.EmptyFile, types["blank.md"])
	assert.Equal(t, recovery.InvalidFormat, types["photo.png"])
	assert.Equal(t, recovery.LargeFile, types["huge.json"])
	assert.Equal(t, recovery.InvalidFormat, types["state.vscdb"])
}

func TestProcessBatch_ConcurrencyDoesNotChangeResult(t *testing.T) {
	var files []prompt.RawFile
	for i := 0; i < 12; i++ {
		files = append(files, prompt.NewRawFile(fmt.Sprintf("f%02d.json", i),
			claudeExport(fmt.Sprintf("c%d", i), fmt.Sprintf("task %d", i%5), "shared prompt", fmt.Sprintf("unique %d", i))))
	}
	files = append(files, prompt.NewRawFile("bad.png", []byte("nope")))

	run := func(concurrency int) ([]string, []string) {
		opts := DefaultOptions()
		opts.MaxConcurrency = concurrency
		opts.ChunkSize = 4
		res, err := newTestOrchestrator().ProcessBatch(context.Background(), files, opts)
		require.NoError(t, err)
		var failed []string
		for _, f := range res.Failed {
			failed = append(failed, f.File)
		}
		got := contents(res.Successful)
		sort.Strings(got)
		return got, failed
	}

	serialOK, serialFailed := run(1)
	parallelOK, parallelFailed := run(8)
	assert.Equal(t, serialOK, parallelOK)
	assert.Equal(t, serialFailed, parallelFailed)
	assert.Len(t, serialOK, 5+1+12)
}

func TestProcessBatch_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	files := []prompt.RawFile{
		prompt.NewRawFile("a.json", claudeExport("a", "one")),
		prompt.NewRawFile("b.json", claudeExport("b", "two")),
	}
	res, err := newTestOrchestrator().ProcessBatch(ctx, files, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, msgCancelled, res.Failed[0].Error.Message)
	assert.Equal(t, res.TotalProcessed, res.SucceededFiles+len(res.Failed))
}

// piecesParser splits on blank-line-separated blocks and fails any block
// containing BAD.
type piecesParser struct{}

func (piecesParser) Name() string                 { return "pieces" }
func (piecesParser) Source() prompt.SourceKind    { return prompt.SourceFile }
func (piecesParser) Validate(prompt.RawFile) bool { return false }
func (piecesParser) Split(content string) []string {
	return strings.Split(content, "\n\n")
}
func (piecesParser) Parse(raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	c := strings.TrimSpace(string(raw.Content))
	if strings.Contains(c, "BAD") {
		return nil, errors.New("malformed block")
	}
	return []prompt.ExtractedPrompt{{Title: c, Content: c}}, nil
}

func TestProcessBatch_LargeFileParsedPiecewise(t *testing.T) {
	opts := DefaultOptions()
	opts.Platform = "pieces"
	opts.LargeFileThreshold = 8

	content := "first block\n\nBAD block\n\nthird block"
	res, err := newTestOrchestrator(piecesParser{}).ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("big.txt", []byte(content))}, opts)
	require.NoError(t, err)
	assert.Empty(t, res.Failed, "one bad piece does not fail the file")
	assert.Equal(t, []string{"first block", "third block"}, contents(res.Successful))
}

func TestProcessBatch_ClineTasksPiecewise(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&sb, "## Task %d - Task number %d (2024-01-0%d 10:00:00)\n### Human\nDo step %d\n### Assistant\nDone\n", i, i, i, i)
	}
	opts := DefaultOptions()
	opts.LargeFileThreshold = 16

	res, err := newTestOrchestrator().ProcessBatch(context.Background(),
		[]prompt.RawFile{prompt.NewRawFile("tasks.md", []byte(sb.String()))}, opts)
	require.NoError(t, err)
	require.Len(t, res.Successful, 5)
	assert.Equal(t, "Do step 5", res.Successful[4].Content)
	assert.Equal(t, prompt.SourceCline, res.Successful[4].Metadata.Source)
}

func TestPartition(t *testing.T) {
	assert.Nil(t, partition(0, 3))
	assert.Equal(t, []span{{0, 3}, {3, 6}, {6, 7}}, partition(7, 3))
	assert.Equal(t, []span{{0, 2}}, partition(2, 10))
}
