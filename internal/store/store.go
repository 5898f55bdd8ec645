// Package store persists imported prompts.
package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultDuplicateCheckLimit bounds how many stored prompts are loaded for
// the existing-prompt duplicate check.
const DefaultDuplicateCheckLimit = 1000

// Prompt is a stored prompt.
type Prompt struct {
	ID         string
	UserID     string
	Title      string
	Content    string
	Category   string
	Folder     string
	Tags       []string
	Complexity prompt.Complexity
	Source     prompt.SourceKind
	CreatedAt  time.Time
}

// PromptStore is the persistence the importer needs.
type PromptStore interface {
	InsertPrompt(ctx context.Context, userID string, p prompt.CategorizedPrompt, folder string, metadata map[string]any) (string, error)
	// FindExistingForDuplicateCheck returns the tenant's most recent prompts,
	// newest first.
	FindExistingForDuplicateCheck(ctx context.Context, userID string, limit int) ([]Prompt, error)
	CountPrompts(ctx context.Context, userID string) (int, error)
	Close() error
}

// Open connects to the store named by url: postgres:// and postgresql://
// URLs use Postgres; sqlite://path, file:path or a bare path use SQLite.
// Migrations are applied before returning.
func Open(ctx context.Context, url string) (PromptStore, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		s, err := NewPostgres(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case url == "":
		return nil, fmt.Errorf("open store: empty database url")
	default:
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "file:")
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
}

// Contents extracts the content of each stored prompt.
func Contents(ps []Prompt) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Content
	}
	return out
}
