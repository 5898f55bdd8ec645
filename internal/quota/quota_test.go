package quota

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

type fakeCounter struct {
	n   int
	err error
}

func (f fakeCounter) CountPrompts(context.Context, string) (int, error) { return f.n, f.err }

func prompts(n int) []prompt.ExtractedPrompt {
	out := make([]prompt.ExtractedPrompt, n)
	for i := range n {
		out[i] = prompt.ExtractedPrompt{Content: fmt.Sprintf("prompt %d", i)}
	}
	return out
}

func TestTierService_RemainingSlots(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		stored int
		opts   []Option
		tier   string
		want   int
	}{
		{"free with room", 20, nil, TierFree, 30},
		{"free full", 50, nil, TierFree, 0},
		{"free over limit", 70, nil, TierFree, 0},
		{"pro", 10, nil, TierPro, 990},
		{"team unlimited", 1000000, nil, TierTeam, Unlimited},
		{"unknown tier is free", 0, nil, "platinum", 50},
		{"override", 5, []Option{WithLimits(map[string]int{"free": 10})}, TierFree, 5},
		{"user pinned", 5, []Option{WithUserTier("u1", "pro")}, TierFree, 995},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTierService(fakeCounter{n: tt.stored}, tt.tier, tt.opts...)
			got, err := s.RemainingSlots(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTierService_CounterError(t *testing.T) {
	s := NewTierService(fakeCounter{err: errors.New("db down")}, TierFree)
	_, err := s.RemainingSlots(context.Background(), "u1")
	assert.ErrorContains(t, err, "db down")
}

func TestApply(t *testing.T) {
	kept, dropped := Apply(prompts(10), 3)
	assert.Len(t, kept, 3)
	assert.Equal(t, 7, dropped)
	assert.Equal(t, "prompt 0", kept[0].Content)

	kept, dropped = Apply(prompts(4), Unlimited)
	assert.Len(t, kept, 4)
	assert.Zero(t, dropped)

	kept, dropped = Apply(prompts(4), 10)
	assert.Len(t, kept, 4)
	assert.Zero(t, dropped)

	kept, dropped = Apply(prompts(4), 0)
	assert.Empty(t, kept)
	assert.Equal(t, 4, dropped)
}

func TestMessages(t *testing.T) {
	s := NewTierService(fakeCounter{}, TierFree)
	assert.Contains(t, ExhaustedMessage(context.Background(), s, "u1"), "free tier allows 50 prompts")
	assert.Equal(t, "7 prompts skipped: quota allows only 3 more", TruncatedWarning(7, 3))
}
