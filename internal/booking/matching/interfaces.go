// Package matching selects and claims providers for new bookings.
package matching

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
)

// Candidate is one provider returned by a geo query.
type Candidate struct {
	ProviderID uuid.UUID
	DistanceKM float64
}

// GeoIndex answers "which eligible providers are within radiusKM of point".
// A non-positive radius returns all eligible providers with no ordering
// guarantee; a positive radius returns candidates sorted nearest first, up to
// limit. Results are recomputed per call; there is no persistent cursor.
type GeoIndex interface {
	Nearby(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]Candidate, error)
}

// AvailabilityStore coordinates soft provider reservations during matching.
// The durable claim happens in the booking transaction; this store only keeps
// two concurrent matchers from shortlisting the same provider. TTL bounds how
// long a reservation outlives a crashed caller.
type AvailabilityStore interface {
	TryClaim(ctx context.Context, providerID, bookingID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, providerID uuid.UUID) error
}

// ProviderSource lists providers matching the new-booking eligibility filter
// (therapist, verified, active, available).
type ProviderSource interface {
	ListEligibleTherapists(ctx context.Context) ([]domain.Provider, error)
}
