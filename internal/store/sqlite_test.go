package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func categorized(content string) prompt.CategorizedPrompt {
	return prompt.CategorizedPrompt{
		ExtractedPrompt: prompt.ExtractedPrompt{
			Title:    content,
			Content:  content,
			Metadata: prompt.Metadata{Source: prompt.SourceChatGPT},
		},
		Category:        "Debugging",
		Tags:            []string{"go", "testing"},
		SuggestedFolder: "debugging",
		SuggestedName:   "Fix it",
		Complexity:      prompt.ComplexitySimple,
	}
}

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLite(filepath.Join(dir, "subdir", "test.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_InsertFindCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		id, err := s.InsertPrompt(ctx, "u1", categorized(fmt.Sprintf("prompt %d", i)), "debugging", map[string]any{"session": "s1"})
		require.NoError(t, err)
		assert.Len(t, id, 26, "ULID")
	}
	_, err := s.InsertPrompt(ctx, "u2", categorized("other tenant"), "", nil)
	require.NoError(t, err)

	n, err := s.CountPrompts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.FindExistingForDuplicateCheck(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "prompt 2", got[0].Content, "newest first")
	assert.Equal(t, []string{"go", "testing"}, got[0].Tags)
	assert.Equal(t, "debugging", got[0].Folder)
	assert.Equal(t, prompt.SourceChatGPT, got[0].Source)
	assert.False(t, got[0].CreatedAt.IsZero())

	none, err := s.FindExistingForDuplicateCheck(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpen_SQLiteURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
	n, err := s.CountPrompts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_Empty(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestContents(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Contents([]Prompt{{Content: "a"}, {Content: "b"}}))
}
