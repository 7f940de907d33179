// Package service calculates provider arrival estimates from the latest
// reported locations and an average travel speed.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/matching"
)

// LocationSource exposes the latest reported provider positions.
type LocationSource interface {
	LatestProviderLocation(ctx context.Context, providerID uuid.UUID) (domain.LocationPing, error)
}

// Service estimates travel times with haversine distance and average speeds.
type Service struct {
	locations LocationSource
	// avgSpeedKMH is the assumed door-to-door travel speed.
	avgSpeedKMH float64
}

// New creates an ETA service. A non-positive speed falls back to 30 km/h.
func New(locations LocationSource, avgSpeedKMH float64) *Service {
	if avgSpeedKMH <= 0 {
		avgSpeedKMH = 30
	}
	return &Service{locations: locations, avgSpeedKMH: avgSpeedKMH}
}

// EstimateArrival estimates how long the provider needs to reach dest from
// its last reported position.
func (s *Service) EstimateArrival(ctx context.Context, providerID uuid.UUID, dest domain.GeoPoint) (time.Duration, error) {
	ping, err := s.locations.LatestProviderLocation(ctx, providerID)
	if err != nil {
		return 0, err
	}
	return s.EstimateBetween(ping.Point, dest), nil
}

// EstimateBetween estimates travel time between two points.
func (s *Service) EstimateBetween(from, to domain.GeoPoint) time.Duration {
	distKM := matching.DistanceKM(from, to)
	hours := distKM / s.avgSpeedKMH
	return time.Duration(hours * float64(time.Hour)).Round(time.Second)
}
