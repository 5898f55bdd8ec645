//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_InsertAndFind(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := "integration-" + uuid.New().String()[:8]

	id, err := s.InsertPrompt(ctx, userID, categorized("Integration test prompt"), "debugging", map[string]any{"session": "s1"})
	if err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected uuid id, got %q", id)
	}

	n, err := s.CountPrompts(ctx, userID)
	if err != nil {
		t.Fatalf("CountPrompts failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 prompt, got %d", n)
	}

	got, err := s.FindExistingForDuplicateCheck(ctx, userID, 10)
	if err != nil {
		t.Fatalf("FindExistingForDuplicateCheck failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Integration test prompt" {
		t.Errorf("unexpected prompts: %+v", got)
	}
	if len(got[0].Tags) != 2 {
		t.Errorf("expected tags round-trip, got %v", got[0].Tags)
	}

	_, _ = s.pool.Exec(ctx, "DELETE FROM prompts WHERE user_id = $1", userID)
}
