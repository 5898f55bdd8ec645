package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations/postgres")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	for _, entry := range entries {
		data, err := migrationsFS.ReadFile("migrations/postgres/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertPrompt(ctx context.Context, userID string, p prompt.CategorizedPrompt, folder string, metadata map[string]any) (string, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO prompts (id, user_id, title, content, category, folder, tags, complexity, source, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		id, userID, p.Title, p.Content, p.Category, folder, tags, string(p.Complexity), string(p.Metadata.Source), meta,
	)
	if err != nil {
		return "", fmt.Errorf("insert prompt: %w", err)
	}
	return id.String(), nil
}

func (s *PostgresStore) FindExistingForDuplicateCheck(ctx context.Context, userID string, limit int) ([]Prompt, error) {
	if limit <= 0 {
		limit = DefaultDuplicateCheckLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, content, category, folder, tags, complexity, source, created_at
		FROM prompts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var out []Prompt
	for rows.Next() {
		var (
			p          Prompt
			id         uuid.UUID
			complexity string
			source     string
		)
		if err := rows.Scan(&id, &p.UserID, &p.Title, &p.Content, &p.Category, &p.Folder, &p.Tags, &complexity, &source, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		p.ID = id.String()
		p.Complexity = prompt.Complexity(complexity)
		p.Source = prompt.SourceKind(source)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountPrompts(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prompts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count prompts: %w", err)
	}
	return n, nil
}
