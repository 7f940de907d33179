package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/spacall/internal/booking/domain"
)

const (
	defaultGeoKey      = "provider:locs"
	defaultClaimPrefix = "claim:provider:"
)

var errInvalidGeoResult = errors.New("invalid geo search result")

// RedisGeoIndex implements GeoIndex over live provider positions using Redis
// GEO commands. Positions are fed by the location service.
type RedisGeoIndex struct {
	client *redis.Client
	key    string
}

// NewRedisGeoIndex constructs the index; an empty key uses the default.
func NewRedisGeoIndex(client *redis.Client, key string) *RedisGeoIndex {
	if key == "" {
		key = defaultGeoKey
	}
	return &RedisGeoIndex{client: client, key: key}
}

// UpsertLocation records a provider's current position.
func (r *RedisGeoIndex) UpsertLocation(ctx context.Context, providerID uuid.UUID, point domain.GeoPoint) error {
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      providerID.String(),
		Longitude: point.Lng,
		Latitude:  point.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// RemoveLocation drops a provider from the index, e.g. on deactivation.
func (r *RedisGeoIndex) RemoveLocation(ctx context.Context, providerID uuid.UUID) error {
	if err := r.client.ZRem(ctx, r.key, providerID.String()).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Nearby returns providers within radiusKM sorted nearest first.
func (r *RedisGeoIndex) Nearby(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]Candidate, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis geo index not configured")
	}

	query := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  point.Lng,
			Latitude:   point.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}

	results, err := r.client.GeoSearchLocation(ctx, r.key, query).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, res := range results {
		id, err := uuid.Parse(res.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errInvalidGeoResult, res.Name)
		}
		candidates = append(candidates, Candidate{ProviderID: id, DistanceKM: res.Dist})
	}
	return candidates, nil
}

// RedisAvailabilityStore implements the soft claim with SET NX EX. The TTL
// keeps a crashed matcher from pinning a provider forever.
type RedisAvailabilityStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisAvailabilityStore constructs the store; an empty prefix uses the
// default.
func NewRedisAvailabilityStore(client redis.Cmdable, prefix string) *RedisAvailabilityStore {
	if prefix == "" {
		prefix = defaultClaimPrefix
	}
	return &RedisAvailabilityStore{client: client, keyPrefix: prefix}
}

// TryClaim acquires the provider reservation for bookingID.
func (r *RedisAvailabilityStore) TryClaim(ctx context.Context, providerID, bookingID uuid.UUID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	ok, err := r.client.SetNX(ctx, r.keyPrefix+providerID.String(), bookingID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release drops the reservation.
func (r *RedisAvailabilityStore) Release(ctx context.Context, providerID uuid.UUID) error {
	if err := r.client.Del(ctx, r.keyPrefix+providerID.String()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
