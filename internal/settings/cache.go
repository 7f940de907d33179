// Package settings exposes operator-tunable values stored in the database.
// Values are cached with a TTL and refreshed lazily; writes go through the
// repository and callers invalidate explicitly, so staleness is bounded by
// the TTL rather than hidden behind implicit magic.
package settings

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/example/spacall/internal/booking/domain"
)

// Setting keys.
const (
	KeyPlatformFeePercent = "platform_fee_percent"
	KeyCancellationFee    = "cancellation_fee_cents"
	KeySearchRadiusKM     = "search_radius_km"
)

// Defaults applied when a key is absent or unparsable. An unconfigured
// platform charges no fee.
const (
	DefaultPlatformFeePercent = 0.0
	DefaultCancellationFee    = domain.Centavos(5000)
	DefaultSearchRadiusKM     = 5.0
)

// Loader fetches the full settings map from durable storage.
type Loader interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// Cache is a TTL-bounded read-through cache over a Loader.
type Cache struct {
	loader Loader
	ttl    time.Duration
	clock  domain.Clock

	mu       sync.RWMutex
	values   map[string]string
	loadedAt time.Time
}

// NewCache constructs a Cache. A non-positive ttl disables caching and every
// read hits the loader.
func NewCache(loader Loader, ttl time.Duration, clock domain.Clock) *Cache {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Cache{loader: loader, ttl: ttl, clock: clock}
}

// Invalidate drops the cached snapshot; the next read reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.values = nil
	c.mu.Unlock()
}

func (c *Cache) snapshot(ctx context.Context) (map[string]string, error) {
	now := c.clock.Now()

	c.mu.RLock()
	if c.values != nil && c.ttl > 0 && now.Sub(c.loadedAt) < c.ttl {
		v := c.values
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values != nil && c.ttl > 0 && now.Sub(c.loadedAt) < c.ttl {
		return c.values, nil
	}
	values, err := c.loader.LoadSettings(ctx)
	if err != nil {
		// Serve the stale snapshot if one exists rather than failing reads.
		if c.values != nil {
			return c.values, nil
		}
		return nil, err
	}
	c.values = values
	c.loadedAt = now
	return values, nil
}

// Get returns the raw value for key, or "" when absent.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	m, err := c.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return m[key], nil
}

func (c *Cache) float(ctx context.Context, key string, def float64) float64 {
	raw, err := c.Get(ctx, key)
	if err != nil || raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// PlatformFeePercent returns the platform fee rate as a percentage.
func (c *Cache) PlatformFeePercent(ctx context.Context) float64 {
	return c.float(ctx, KeyPlatformFeePercent, DefaultPlatformFeePercent)
}

// CancellationFee returns the flat fee charged for late cancellations.
func (c *Cache) CancellationFee(ctx context.Context) domain.Centavos {
	raw, err := c.Get(ctx, KeyCancellationFee)
	if err != nil || raw == "" {
		return DefaultCancellationFee
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return DefaultCancellationFee
	}
	return domain.Centavos(v)
}

// SearchRadiusKM returns the provider matching radius.
func (c *Cache) SearchRadiusKM(ctx context.Context) float64 {
	return c.float(ctx, KeySearchRadiusKM, DefaultSearchRadiusKM)
}
