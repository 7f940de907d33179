package settings_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/settings"
)

type stubLoader struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	calls  int
}

func (l *stubLoader) LoadSettings(_ context.Context) (map[string]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.values, nil
}

func (l *stubLoader) loadCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCacheServesWithinTTLWithoutReloading(t *testing.T) {
	loader := &stubLoader{values: map[string]string{settings.KeyPlatformFeePercent: "12.5"}}
	clock := &stubClock{t: time.Now()}
	cache := settings.NewCache(loader, time.Minute, clock)
	ctx := context.Background()

	require.Equal(t, 12.5, cache.PlatformFeePercent(ctx))
	require.Equal(t, 12.5, cache.PlatformFeePercent(ctx))
	require.Equal(t, 1, loader.loadCalls())

	clock.advance(30 * time.Second)
	cache.PlatformFeePercent(ctx)
	require.Equal(t, 1, loader.loadCalls())
}

func TestCacheReloadsAfterTTL(t *testing.T) {
	loader := &stubLoader{values: map[string]string{settings.KeyPlatformFeePercent: "12.5"}}
	clock := &stubClock{t: time.Now()}
	cache := settings.NewCache(loader, time.Minute, clock)
	ctx := context.Background()

	require.Equal(t, 12.5, cache.PlatformFeePercent(ctx))

	loader.mu.Lock()
	loader.values = map[string]string{settings.KeyPlatformFeePercent: "15"}
	loader.mu.Unlock()
	clock.advance(2 * time.Minute)

	require.Equal(t, 15.0, cache.PlatformFeePercent(ctx))
	require.Equal(t, 2, loader.loadCalls())
}

func TestInvalidateForcesReload(t *testing.T) {
	loader := &stubLoader{values: map[string]string{settings.KeyCancellationFee: "7500"}}
	clock := &stubClock{t: time.Now()}
	cache := settings.NewCache(loader, time.Hour, clock)
	ctx := context.Background()

	require.Equal(t, domain.Centavos(7500), cache.CancellationFee(ctx))

	loader.mu.Lock()
	loader.values = map[string]string{settings.KeyCancellationFee: "2500"}
	loader.mu.Unlock()
	cache.Invalidate()

	require.Equal(t, domain.Centavos(2500), cache.CancellationFee(ctx))
	require.Equal(t, 2, loader.loadCalls())
}

func TestStaleSnapshotServedOnLoaderError(t *testing.T) {
	loader := &stubLoader{values: map[string]string{settings.KeySearchRadiusKM: "8"}}
	clock := &stubClock{t: time.Now()}
	cache := settings.NewCache(loader, time.Minute, clock)
	ctx := context.Background()

	require.Equal(t, 8.0, cache.SearchRadiusKM(ctx))

	loader.mu.Lock()
	loader.err = errors.New("database down")
	loader.mu.Unlock()
	clock.advance(2 * time.Minute)

	require.Equal(t, 8.0, cache.SearchRadiusKM(ctx))
}

func TestDefaultsWhenKeyAbsentOrUnparsable(t *testing.T) {
	loader := &stubLoader{values: map[string]string{
		settings.KeyPlatformFeePercent: "not-a-number",
	}}
	cache := settings.NewCache(loader, time.Minute, nil)
	ctx := context.Background()

	require.Equal(t, settings.DefaultPlatformFeePercent, cache.PlatformFeePercent(ctx))
	require.Equal(t, settings.DefaultCancellationFee, cache.CancellationFee(ctx))
	require.Equal(t, settings.DefaultSearchRadiusKM, cache.SearchRadiusKM(ctx))
}

func TestErrorWithNoSnapshotSurfacesFromGet(t *testing.T) {
	loader := &stubLoader{err: errors.New("database down")}
	cache := settings.NewCache(loader, time.Minute, nil)

	_, err := cache.Get(context.Background(), settings.KeyPlatformFeePercent)
	require.Error(t, err)
}
