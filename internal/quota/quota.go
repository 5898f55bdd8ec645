// Package quota decides how many prompts a tenant may still import.
package quota

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// Unlimited is returned by RemainingSlots when the tenant has no ceiling.
const Unlimited = -1

// Default tier ceilings.
const (
	TierFree = "free"
	TierPro  = "pro"
	TierTeam = "team"
)

// DefaultLimits maps tiers to the number of prompts a tenant may hold.
var DefaultLimits = map[string]int{
	TierFree: 50,
	TierPro:  1000,
	TierTeam: Unlimited,
}

// Service reports the remaining prompt capacity for a tenant.
type Service interface {
	RemainingSlots(ctx context.Context, userID string) (int, error)
}

// TierReporter is implemented by services that can name the tier behind a
// limit, for user-facing messages.
type TierReporter interface {
	Tier(ctx context.Context, userID string) (name string, limit int)
}

// Counter counts the prompts a tenant already holds.
type Counter interface {
	CountPrompts(ctx context.Context, userID string) (int, error)
}

// TierService computes remaining slots as the tier limit minus the stored
// prompt count.
type TierService struct {
	counter     Counter
	limits      map[string]int
	defaultTier string
	userTiers   map[string]string
}

// Option configures a TierService.
type Option func(*TierService)

// WithLimits overrides the ceilings for the named tiers.
func WithLimits(limits map[string]int) Option {
	return func(s *TierService) {
		for k, v := range limits {
			s.limits[strings.ToLower(k)] = v
		}
	}
}

// WithUserTier pins a tenant to a tier.
func WithUserTier(userID, tier string) Option {
	return func(s *TierService) { s.userTiers[userID] = strings.ToLower(tier) }
}

// NewTierService creates a service where tenants default to defaultTier.
func NewTierService(counter Counter, defaultTier string, opts ...Option) *TierService {
	s := &TierService{
		counter:     counter,
		limits:      make(map[string]int, len(DefaultLimits)),
		defaultTier: strings.ToLower(defaultTier),
		userTiers:   make(map[string]string),
	}
	for k, v := range DefaultLimits {
		s.limits[k] = v
	}
	if s.defaultTier == "" {
		s.defaultTier = TierFree
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tier returns the tenant's tier and its ceiling. Unknown tiers are treated
// as free.
func (s *TierService) Tier(_ context.Context, userID string) (string, int) {
	tier := s.defaultTier
	if t, ok := s.userTiers[userID]; ok {
		tier = t
	}
	limit, ok := s.limits[tier]
	if !ok {
		return TierFree, s.limits[TierFree]
	}
	return tier, limit
}

func (s *TierService) RemainingSlots(ctx context.Context, userID string) (int, error) {
	_, limit := s.Tier(ctx, userID)
	if limit < 0 {
		return Unlimited, nil
	}
	n, err := s.counter.CountPrompts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count prompts: %w", err)
	}
	return max(limit-n, 0), nil
}

// Apply truncates prompts to remaining slots. It returns the kept prompts
// and how many were dropped.
func Apply(prompts []prompt.ExtractedPrompt, remaining int) ([]prompt.ExtractedPrompt, int) {
	if remaining < 0 || remaining >= len(prompts) {
		return prompts, 0
	}
	return prompts[:remaining], len(prompts) - remaining
}

// ExhaustedMessage is the user-facing message for a tenant with no slots left.
func ExhaustedMessage(ctx context.Context, svc Service, userID string) string {
	if tr, ok := svc.(TierReporter); ok {
		name, limit := tr.Tier(ctx, userID)
		return fmt.Sprintf("prompt limit reached: the %s tier allows %d prompts; upgrade your plan or delete prompts to import more", name, limit)
	}
	return "prompt limit reached: upgrade your plan or delete prompts to import more"
}

// TruncatedWarning describes prompts dropped for quota.
func TruncatedWarning(dropped, remaining int) string {
	return fmt.Sprintf("%d prompts skipped: quota allows only %d more", dropped, remaining)
}
