// Package lifecycle implements the booking state machine. All status
// mutations in the system flow through Apply so the transition table,
// first-reach timestamps and timeline entries live in one place instead of
// database triggers.
package lifecycle

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
)

// providerFlow is the forward execution path a provider drives.
var providerFlow = map[domain.BookingStatus]domain.BookingStatus{
	domain.StatusPending:    domain.StatusAccepted,
	domain.StatusAccepted:   domain.StatusEnRoute,
	domain.StatusEnRoute:    domain.StatusArrived,
	domain.StatusArrived:    domain.StatusInProgress,
	domain.StatusInProgress: domain.StatusCompleted,
}

// Effect reports the side effects an accepted transition requires from the
// enclosing unit of work.
type Effect struct {
	// ReleaseProvider is set when the booking reached a terminal status while
	// holding a provider claim.
	ReleaseProvider bool
	Entry           domain.TimelineEntry
}

// CanTransition reports whether (from, to) is in the transition table,
// ignoring actor permissions.
func CanTransition(from, to domain.BookingStatus) bool {
	switch to {
	case domain.StatusCancelled:
		return !from.Terminal()
	case domain.StatusExpired:
		return from == domain.StatusPending || from == domain.StatusAwaitingAssignment
	default:
		return providerFlow[from] == to
	}
}

// Apply validates req against b and mutates b in place on success. Identity
// mismatches fail with ErrNotAllowed before any state check; transitions
// outside the table fail with ErrInvalidTransition and leave b untouched.
func Apply(b *domain.Booking, req domain.TransitionRequest) (Effect, error) {
	switch req.Actor {
	case domain.ActorProvider:
		if b.ProviderID == nil || req.ActorProviderID == nil || *b.ProviderID != *req.ActorProviderID {
			return Effect{}, fmt.Errorf("%w: booking %s not assigned to caller", domain.ErrNotAllowed, b.ID)
		}
	case domain.ActorCustomer:
		if req.ActorUserID != b.CustomerID {
			return Effect{}, fmt.Errorf("%w: booking %s belongs to another customer", domain.ErrNotAllowed, b.ID)
		}
	case domain.ActorSystem:
	default:
		return Effect{}, fmt.Errorf("%w: unknown actor %q", domain.ErrNotAllowed, req.Actor)
	}

	if !CanTransition(b.Status, req.To) {
		return Effect{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, req.To)
	}
	if !actorMay(req.Actor, req.To) {
		return Effect{}, fmt.Errorf("%w: %s may not set %s", domain.ErrNotAllowed, req.Actor, req.To)
	}

	b.Status = req.To
	switch req.To {
	case domain.StatusAccepted:
		if b.AcceptedAt == nil {
			t := req.Now
			b.AcceptedAt = &t
		}
	case domain.StatusInProgress:
		if b.StartedAt == nil {
			t := req.Now
			b.StartedAt = &t
		}
	case domain.StatusCompleted:
		if b.CompletedAt == nil {
			t := req.Now
			b.CompletedAt = &t
		}
	case domain.StatusCancelled:
		if b.CancelledAt == nil {
			t := req.Now
			b.CancelledAt = &t
			actor := req.Actor
			b.CancelledBy = &actor
			b.CancellationReason = req.Reason
			// Cancellations before acceptance are free of charge.
			if b.AcceptedAt != nil {
				b.CancellationFee = req.Fee
			}
		}
	}

	entry := domain.TimelineEntry{
		BookingID: b.ID,
		Status:    req.To,
		Notes:     req.Notes,
		CreatedAt: req.Now,
	}
	if req.ActorUserID != uuid.Nil {
		id := req.ActorUserID
		entry.ChangedBy = &id
	}

	return Effect{
		ReleaseProvider: req.To.Terminal() && b.ProviderID != nil,
		Entry:           entry,
	}, nil
}

// Assign attaches a matched provider to an awaiting_assignment booking and
// moves it to pending. This is the system's internal matching step, not part
// of the client-facing transition table.
func Assign(b *domain.Booking, providerID uuid.UUID, req domain.TransitionRequest) (domain.TimelineEntry, error) {
	if b.Status != domain.StatusAwaitingAssignment {
		return domain.TimelineEntry{}, fmt.Errorf("%w: assign from %s", domain.ErrInvalidTransition, b.Status)
	}
	if b.ProviderID != nil {
		return domain.TimelineEntry{}, fmt.Errorf("%w: booking %s already has a provider", domain.ErrInvalidTransition, b.ID)
	}
	id := providerID
	b.ProviderID = &id
	b.Status = domain.StatusPending
	return domain.TimelineEntry{
		BookingID: b.ID,
		Status:    domain.StatusPending,
		Notes:     req.Notes,
		CreatedAt: req.Now,
	}, nil
}

// InitialEntry is the timeline row written together with a new booking.
func InitialEntry(b domain.Booking) domain.TimelineEntry {
	return domain.TimelineEntry{
		BookingID: b.ID,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}
}

func actorMay(actor domain.ActorRole, to domain.BookingStatus) bool {
	switch to {
	case domain.StatusCancelled:
		return true
	case domain.StatusExpired:
		return actor == domain.ActorSystem
	default:
		return actor == domain.ActorProvider
	}
}
