package matching_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/matching"
)

type stubSource struct{ providers []domain.Provider }

func (s stubSource) ListEligibleTherapists(context.Context) ([]domain.Provider, error) {
	return s.providers, nil
}

func therapistAt(lat, lng float64) domain.Provider {
	return domain.Provider{
		ID:                 uuid.New(),
		Type:               domain.ProviderTherapist,
		VerificationStatus: domain.VerificationVerified,
		IsActive:           true,
		IsAvailable:        true,
		BasePoint:          &domain.GeoPoint{Lat: lat, Lng: lng},
	}
}

func TestDistanceKM(t *testing.T) {
	// Manila city hall to Quezon City memorial circle, roughly 11 km.
	manila := domain.GeoPoint{Lat: 14.5995, Lng: 120.9842}
	quezon := domain.GeoPoint{Lat: 14.6760, Lng: 121.0437}

	d := matching.DistanceKM(manila, quezon)
	require.InDelta(t, 10.7, d, 1.0)
	require.InDelta(t, 0, matching.DistanceKM(manila, manila), 1e-3)
}

func TestNearbySortsByDistanceAndAppliesRadius(t *testing.T) {
	center := domain.GeoPoint{Lat: 14.6, Lng: 121.0}
	near := therapistAt(14.601, 121.001)
	mid := therapistAt(14.62, 121.02)
	far := therapistAt(15.5, 122.0)

	index := matching.NewHaversineIndex(stubSource{providers: []domain.Provider{far, mid, near}})
	candidates, err := index.Nearby(context.Background(), center, 10, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, near.ID, candidates[0].ProviderID)
	require.Equal(t, mid.ID, candidates[1].ProviderID)
	require.Less(t, candidates[0].DistanceKM, candidates[1].DistanceKM)
}

func TestNearbyLimit(t *testing.T) {
	center := domain.GeoPoint{Lat: 14.6, Lng: 121.0}
	source := stubSource{providers: []domain.Provider{
		therapistAt(14.601, 121.001),
		therapistAt(14.602, 121.002),
		therapistAt(14.603, 121.003),
	}}

	index := matching.NewHaversineIndex(source)
	candidates, err := index.Nearby(context.Background(), center, 10, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
}

func TestNearbySkipsProvidersWithoutBasePoint(t *testing.T) {
	center := domain.GeoPoint{Lat: 14.6, Lng: 121.0}
	noPoint := therapistAt(0, 0)
	noPoint.BasePoint = nil

	index := matching.NewHaversineIndex(stubSource{providers: []domain.Provider{noPoint}})
	candidates, err := index.Nearby(context.Background(), center, 10, 10)
	require.NoError(t, err)
	require.Empty(t, candidates)
}
