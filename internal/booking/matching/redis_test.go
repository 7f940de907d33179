package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/matching"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client
}

func TestRedisAvailabilityStoreClaimAndRelease(t *testing.T) {
	client := newRedisClient(t)
	store := matching.NewRedisAvailabilityStore(client, "")
	ctx := context.Background()
	providerID := uuid.New()

	claimed, err := store.TryClaim(ctx, providerID, uuid.New(), time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.TryClaim(ctx, providerID, uuid.New(), time.Second)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, store.Release(ctx, providerID))

	claimed, err = store.TryClaim(ctx, providerID, uuid.New(), time.Second)
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestRedisGeoIndexUpsertAndRemove(t *testing.T) {
	client := newRedisClient(t)
	index := matching.NewRedisGeoIndex(client, "provider:locs")
	ctx := context.Background()

	providerID := uuid.New()
	require.NoError(t, index.UpsertLocation(ctx, providerID, domain.GeoPoint{Lat: 14.601, Lng: 121.001}))

	count, err := client.ZCard(ctx, "provider:locs").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, index.RemoveLocation(ctx, providerID))
	count, err = client.ZCard(ctx, "provider:locs").Result()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMatcherClaimsNearestFreeProvider(t *testing.T) {
	center := domain.GeoPoint{Lat: 14.6, Lng: 121.0}
	first := therapistAt(14.601, 121.001)
	second := therapistAt(14.61, 121.01)

	index := matching.NewHaversineIndex(stubSource{providers: []domain.Provider{first, second}})
	store := matching.NewMemoryAvailabilityStore()
	matcher := matching.NewMatcher(index, store, matching.Config{SearchRadiusKM: 10, MaxAttempts: 1})
	ctx := context.Background()

	booking := domain.Booking{ID: uuid.New()}
	got, err := matcher.ReserveProvider(ctx, booking, center)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, first.ID, *got)

	// The nearest is soft-claimed, so the next booking gets the runner-up.
	got, err = matcher.ReserveProvider(ctx, domain.Booking{ID: uuid.New()}, center)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, second.ID, *got)

	_, err = matcher.ReserveProvider(ctx, domain.Booking{ID: uuid.New()}, center)
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestMatcherReleaseFreesProvider(t *testing.T) {
	center := domain.GeoPoint{Lat: 14.6, Lng: 121.0}
	only := therapistAt(14.601, 121.001)

	index := matching.NewHaversineIndex(stubSource{providers: []domain.Provider{only}})
	matcher := matching.NewMatcher(index, matching.NewMemoryAvailabilityStore(), matching.Config{SearchRadiusKM: 10, MaxAttempts: 1})
	ctx := context.Background()

	got, err := matcher.ReserveProvider(ctx, domain.Booking{ID: uuid.New()}, center)
	require.NoError(t, err)
	require.NoError(t, matcher.ReleaseProvider(ctx, *got))

	again, err := matcher.ReserveProvider(ctx, domain.Booking{ID: uuid.New()}, center)
	require.NoError(t, err)
	require.Equal(t, only.ID, *again)
}
