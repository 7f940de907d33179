package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionRequest describes one attempted status change. The repository
// applies it under per-booking serialization, so a request that loses a race
// re-validates against the post-race state.
type TransitionRequest struct {
	To    BookingStatus
	Actor ActorRole
	// ActorUserID is the authenticated caller; recorded on the timeline.
	ActorUserID uuid.UUID
	// ActorProviderID is the caller's provider record, when the caller is a
	// provider. Provider transitions require it to match the booking.
	ActorProviderID *uuid.UUID
	Notes           string
	Reason          string
	Fee             Centavos
	Now             time.Time
}

// Repository is the persistence contract for the booking core. Multi-row
// operations (creation, transitions, review upserts, expiry) are atomic: on
// error no partial effect survives, including the provider-availability flip.
type Repository interface {
	// CreateBooking persists the booking, its location, the initial timeline
	// entry and the promo usage in one unit of work. When b.ProviderID is set
	// the provider is claimed with a conditional update; a lost claim returns
	// ErrProviderUnavailable. The booking number is assigned here, once.
	CreateBooking(ctx context.Context, b *Booking, loc BookingLocation) error
	GetBooking(ctx context.Context, id uuid.UUID) (Booking, error)
	GetBookingLocation(ctx context.Context, bookingID uuid.UUID) (BookingLocation, error)
	Timeline(ctx context.Context, bookingID uuid.UUID) ([]TimelineEntry, error)

	// TransitionBooking applies req atomically: status change, lifecycle
	// timestamp, timeline append, and the provider release when the booking
	// reaches a terminal status.
	TransitionBooking(ctx context.Context, id uuid.UUID, req TransitionRequest) (Booking, error)

	// AssignProvider attaches a matched provider to an awaiting_assignment
	// booking, claiming the provider and moving the booking to pending.
	AssignProvider(ctx context.Context, bookingID, providerID uuid.UUID, now time.Time) (Booking, error)

	// ExpireStale moves pending/awaiting_assignment bookings created before
	// cutoff to expired, releasing claimed providers, and returns them.
	ExpireStale(ctx context.Context, cutoff, now time.Time) ([]Booking, error)

	GetService(ctx context.Context, id uuid.UUID) (Service, error)
	GetProvider(ctx context.Context, id uuid.UUID) (Provider, error)
	ProviderByUser(ctx context.Context, userID uuid.UUID) (Provider, error)
	// ListEligibleTherapists returns providers matching the new-booking
	// eligibility filter, in no particular order.
	ListEligibleTherapists(ctx context.Context) ([]Provider, error)
	ListVerifiedTherapists(ctx context.Context) ([]Provider, error)

	// GetPromoCode returns the code and its current usage count.
	GetPromoCode(ctx context.Context, code string) (PromoCode, int, error)

	// UpsertReview writes the review (insert or update keyed by booking) and
	// recomputes the provider aggregate in the same unit of work.
	UpsertReview(ctx context.Context, review Review) (Review, ProviderRating, error)

	RecordProviderLocation(ctx context.Context, ping LocationPing) error
	LatestProviderLocation(ctx context.Context, providerID uuid.UUID) (LocationPing, error)

	// LoadSettings returns the persisted application settings as key/value
	// pairs for the settings cache.
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// BookingEventType names lifecycle events published to the bus.
type BookingEventType string

const (
	EventBookingCreated  BookingEventType = "BookingCreated"
	EventProviderMatched BookingEventType = "ProviderMatched"
	EventStatusChanged   BookingEventType = "BookingStatusChanged"
	EventBookingExpired  BookingEventType = "BookingExpired"
	EventReviewSubmitted BookingEventType = "ReviewSubmitted"
)

// BookingEvent is a fire-and-forget notification; publishing must never fail
// the transaction that produced it.
type BookingEvent struct {
	BookingID uuid.UUID        `json:"booking_id"`
	Type      BookingEventType `json:"type"`
	Payload   map[string]any   `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// EventPublisher delivers booking events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}

// MatchingEngine reserves the nearest eligible provider for a booking that
// arrived without one.
type MatchingEngine interface {
	ReserveProvider(ctx context.Context, b Booking, pickup GeoPoint) (*uuid.UUID, error)
	ReleaseProvider(ctx context.Context, providerID uuid.UUID) error
}
