package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProviderType string

const (
	ProviderTherapist ProviderType = "therapist"
	ProviderStore     ProviderType = "store"
)

type VerificationStatus string

const (
	VerificationPending     VerificationStatus = "pending"
	VerificationUnderReview VerificationStatus = "under_review"
	VerificationVerified    VerificationStatus = "verified"
	VerificationRejected    VerificationStatus = "rejected"
	VerificationSuspended   VerificationStatus = "suspended"
)

// Provider is a service-supplying actor. IsAvailable is the contended
// real-time flag: flipped false when a booking claims the provider, true
// again when that booking reaches a terminal status.
type Provider struct {
	ID     uuid.UUID    `json:"id"`
	UserID uuid.UUID    `json:"user_id"`
	Type   ProviderType `json:"type"`

	VerificationStatus VerificationStatus `json:"verification_status"`
	IsActive           bool               `json:"is_active"`
	IsAvailable        bool               `json:"is_available"`

	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`

	BaseAddress string    `json:"base_address,omitempty"`
	BasePoint   *GeoPoint `json:"base_point,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the provider qualifies for new-booking matching.
func (p Provider) Eligible() bool {
	return p.Type == ProviderTherapist &&
		p.VerificationStatus == VerificationVerified &&
		p.IsActive &&
		p.IsAvailable
}

// Review is one customer review per booking. Upserts keyed by BookingID keep
// resubmissions from duplicating.
type Review struct {
	ID         int64     `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	UserID     uuid.UUID `json:"user_id"`
	Rating     int       `json:"rating"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProviderRating is the recomputed aggregate written back with a review.
type ProviderRating struct {
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}
