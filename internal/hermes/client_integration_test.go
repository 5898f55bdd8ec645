//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/promptvault/internal/progress"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_ProgressMirror(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan progress.Session, 1)
	err = client.Subscribe(SubjectProgressPrefix+">", func(subject string, data []byte) {
		var s progress.Session
		if json.Unmarshal(data, &s) == nil {
			received <- s
		}
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	if err := client.PublishProgress(progress.Session{ID: "sess-1", Status: progress.StatusProcessing, ProgressPercent: 40}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case s := <-received:
		if s.ID != "sess-1" || s.ProgressPercent != 40 {
			t.Errorf("unexpected snapshot %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_KeyValue(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	kv, err := client.KeyValue(ctx, "promptvault_test", time.Minute)
	if err != nil {
		t.Fatalf("kv: %v", err)
	}
	if _, err := kv.Put(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, err := kv.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Value()) != "v1" {
		t.Errorf("got %q, want v1", entry.Value())
	}
}
