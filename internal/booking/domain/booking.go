package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Centavos is a fixed-point PHP amount. All persisted money is integral
// centavos; floats appear only at formatting boundaries.
type Centavos int64

// Pesos renders the amount as a decimal peso value.
func (c Centavos) Pesos() float64 { return float64(c) / 100 }

func (c Centavos) String() string { return fmt.Sprintf("%.2f", c.Pesos()) }

type BookingStatus string

const (
	StatusAwaitingAssignment BookingStatus = "awaiting_assignment"
	StatusPending            BookingStatus = "pending"
	StatusAccepted           BookingStatus = "accepted"
	StatusEnRoute            BookingStatus = "en_route"
	StatusArrived            BookingStatus = "arrived"
	StatusInProgress         BookingStatus = "in_progress"
	StatusCompleted          BookingStatus = "completed"
	StatusCancelled          BookingStatus = "cancelled"
	StatusNoShow             BookingStatus = "no_show"
	StatusExpired            BookingStatus = "expired"
)

// Terminal reports whether no further transition may leave the status.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// Known reports whether the status is one of the defined values.
func (s BookingStatus) Known() bool {
	switch s {
	case StatusAwaitingAssignment, StatusPending, StatusAccepted, StatusEnRoute,
		StatusArrived, StatusInProgress, StatusCompleted, StatusCancelled,
		StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// ActorRole identifies who is driving a booking mutation.
type ActorRole string

const (
	ActorCustomer ActorRole = "customer"
	ActorProvider ActorRole = "provider"
	ActorSystem   ActorRole = "system"
)

type BookingType string

const (
	BookingHomeService BookingType = "home_service"
	BookingInStore     BookingType = "in_store"
)

type ScheduleType string

const (
	ScheduleNow       ScheduleType = "now"
	ScheduleScheduled ScheduleType = "scheduled"
)

type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Booking is one service engagement between a customer and a provider.
// Number is assigned once at creation and never reassigned.
type Booking struct {
	ID         uuid.UUID     `json:"id"`
	Number     string        `json:"booking_number"`
	CustomerID uuid.UUID     `json:"customer_id"`
	ProviderID *uuid.UUID    `json:"provider_id,omitempty"`
	ServiceID  uuid.UUID     `json:"service_id"`
	Type       BookingType   `json:"booking_type"`
	Schedule   ScheduleType  `json:"schedule_type"`
	Status     BookingStatus `json:"status"`

	ServicePrice      Centavos `json:"service_price_cents"`
	DistanceKM        float64  `json:"distance_km"`
	DistanceSurcharge Centavos `json:"distance_surcharge_cents"`
	Subtotal          Centavos `json:"subtotal_cents"`
	PlatformFee       Centavos `json:"platform_fee_cents"`
	PromoDiscount     Centavos `json:"promo_discount_cents"`
	Total             Centavos `json:"total_amount_cents"`
	PromoCode         string   `json:"promo_code,omitempty"`

	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	CustomerNotes string `json:"customer_notes,omitempty"`
	ProviderNotes string `json:"provider_notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancelledBy        *ActorRole `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancellationFee    Centavos   `json:"cancellation_fee_cents"`

	// DeletedAt implements soft deletion; repositories exclude flagged rows.
	DeletedAt *time.Time `json:"-"`
	Version   int64      `json:"-"`
}

// BookingLocation is the one-to-one service address of a booking, created in
// the same unit of work as the booking itself.
type BookingLocation struct {
	BookingID uuid.UUID `json:"booking_id"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Province  string    `json:"province"`
	Point     GeoPoint  `json:"point"`
}

// TimelineEntry is one row of the append-only status history. Entries are
// never mutated or deleted; ordering is append order.
type TimelineEntry struct {
	ID        int64         `json:"id"`
	BookingID uuid.UUID     `json:"booking_id"`
	Status    BookingStatus `json:"status"`
	Notes     string        `json:"notes,omitempty"`
	ChangedBy *uuid.UUID    `json:"changed_by,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Service is a bookable service offering.
type Service struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BasePrice Centavos  `json:"base_price_cents"`
	IsActive  bool      `json:"is_active"`
}

// LocationPing is the latest reported position of a provider.
type LocationPing struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Point      GeoPoint  `json:"point"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
