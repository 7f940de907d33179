package location_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/location"
)

type recordedPings struct {
	pings []domain.LocationPing
	err   error
}

func (r *recordedPings) RecordProviderLocation(_ context.Context, ping domain.LocationPing) error {
	if r.err != nil {
		return r.err
	}
	r.pings = append(r.pings, ping)
	return nil
}

type geoCalls struct {
	points map[uuid.UUID]domain.GeoPoint
}

func (g *geoCalls) UpsertLocation(_ context.Context, providerID uuid.UUID, point domain.GeoPoint) error {
	if g.points == nil {
		g.points = make(map[uuid.UUID]domain.GeoPoint)
	}
	g.points[providerID] = point
	return nil
}

func TestUpdateFansOutAndKeepsLatest(t *testing.T) {
	recorder := &recordedPings{}
	geo := &geoCalls{}
	obs := location.NewStreamObserver(recorder, geo, nil, nil)
	providerID := uuid.New()

	obs.Update(context.Background(), providerID, domain.GeoPoint{Lat: 14.6, Lng: 121.0})
	obs.Update(context.Background(), providerID, domain.GeoPoint{Lat: 14.61, Lng: 121.01})

	require.Len(t, recorder.pings, 2)
	require.Equal(t, domain.GeoPoint{Lat: 14.61, Lng: 121.01}, geo.points[providerID])

	ping, err := obs.LatestProviderLocation(context.Background(), providerID)
	require.NoError(t, err)
	require.Equal(t, 14.61, ping.Point.Lat)
}

func TestLatestForUnknownProvider(t *testing.T) {
	obs := location.NewStreamObserver(nil, nil, nil, nil)

	_, err := obs.LatestProviderLocation(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecorderFailureDoesNotDropLatest(t *testing.T) {
	recorder := &recordedPings{err: errors.New("database down")}
	obs := location.NewStreamObserver(recorder, nil, nil, nil)
	providerID := uuid.New()

	obs.Update(context.Background(), providerID, domain.GeoPoint{Lat: 14.6, Lng: 121.0})

	ping, err := obs.LatestProviderLocation(context.Background(), providerID)
	require.NoError(t, err)
	require.Equal(t, 14.6, ping.Point.Lat)
}
