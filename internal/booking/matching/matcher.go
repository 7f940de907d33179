package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
)

// Config tunes the matcher.
type Config struct {
	CandidateLimit int
	SearchRadiusKM float64
	MaxAttempts    int
	Backoff        time.Duration
	ClaimTTL       time.Duration
}

// Matcher implements domain.MatchingEngine: shortlist nearby eligible
// providers, soft-claim the first free one. The durable is_available flip
// still happens in the booking transaction; a soft claim that loses there is
// released by TTL.
type Matcher struct {
	geo   GeoIndex
	store AvailabilityStore
	cfg   Config
}

// NewMatcher builds a matcher from a geo index and an availability store.
func NewMatcher(geo GeoIndex, store AvailabilityStore, cfg Config) *Matcher {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	if cfg.SearchRadiusKM <= 0 {
		cfg.SearchRadiusKM = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	return &Matcher{geo: geo, store: store, cfg: cfg}
}

// ReserveProvider finds the closest claimable provider around pickup.
func (m *Matcher) ReserveProvider(ctx context.Context, b domain.Booking, pickup domain.GeoPoint) (*uuid.UUID, error) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		candidates, err := m.geo.Nearby(ctx, pickup, m.cfg.SearchRadiusKM, m.cfg.CandidateLimit)
		if err != nil {
			observeMatch("error", start)
			return nil, fmt.Errorf("geo nearby: %w", err)
		}
		for _, c := range candidates {
			claimAttempts.Inc()
			claimed, err := m.store.TryClaim(ctx, c.ProviderID, b.ID, m.cfg.ClaimTTL)
			if err != nil {
				lastErr = err
				continue
			}
			if claimed {
				observeMatch("matched", start)
				id := c.ProviderID
				return &id, nil
			}
		}
		if attempt < m.cfg.MaxAttempts-1 {
			select {
			case <-time.After(m.cfg.Backoff << attempt):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	observeMatch("exhausted", start)
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no eligible provider nearby", domain.ErrProviderUnavailable)
}

// ReleaseProvider frees the soft claim.
func (m *Matcher) ReleaseProvider(ctx context.Context, providerID uuid.UUID) error {
	return m.store.Release(ctx, providerID)
}
