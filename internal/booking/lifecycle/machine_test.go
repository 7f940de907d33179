package lifecycle_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/lifecycle"
)

func newBooking(status domain.BookingStatus, providerID *uuid.UUID) domain.Booking {
	return domain.Booking{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		ProviderID: providerID,
		Status:     status,
		CreatedAt:  time.Unix(0, 0).UTC(),
	}
}

func providerRequest(b domain.Booking, to domain.BookingStatus, now time.Time) domain.TransitionRequest {
	return domain.TransitionRequest{
		To:              to,
		Actor:           domain.ActorProvider,
		ActorUserID:     uuid.New(),
		ActorProviderID: b.ProviderID,
		Now:             now,
	}
}

func TestProviderFlowHappyPath(t *testing.T) {
	providerID := uuid.New()
	b := newBooking(domain.StatusPending, &providerID)
	now := time.Unix(1000, 0).UTC()

	for _, to := range []domain.BookingStatus{
		domain.StatusAccepted,
		domain.StatusEnRoute,
		domain.StatusArrived,
		domain.StatusInProgress,
		domain.StatusCompleted,
	} {
		effect, err := lifecycle.Apply(&b, providerRequest(b, to, now))
		require.NoError(t, err, "transition to %s", to)
		require.Equal(t, to, b.Status)
		require.Equal(t, to, effect.Entry.Status)
	}

	require.NotNil(t, b.AcceptedAt)
	require.NotNil(t, b.StartedAt)
	require.NotNil(t, b.CompletedAt)
}

func TestSkippingStatesRejected(t *testing.T) {
	providerID := uuid.New()
	b := newBooking(domain.StatusPending, &providerID)

	_, err := lifecycle.Apply(&b, providerRequest(b, domain.StatusInProgress, time.Now()))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Equal(t, domain.StatusPending, b.Status)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	providerID := uuid.New()
	for _, terminal := range []domain.BookingStatus{
		domain.StatusCompleted,
		domain.StatusCancelled,
		domain.StatusExpired,
		domain.StatusNoShow,
	} {
		b := newBooking(terminal, &providerID)
		for _, to := range []domain.BookingStatus{
			domain.StatusAccepted,
			domain.StatusCancelled,
			domain.StatusExpired,
			domain.StatusCompleted,
		} {
			_, err := lifecycle.Apply(&b, providerRequest(b, to, time.Now()))
			require.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", terminal, to)
		}
	}
}

func TestWrongProviderRejectedBeforeStateCheck(t *testing.T) {
	providerID := uuid.New()
	b := newBooking(domain.StatusPending, &providerID)
	other := uuid.New()

	_, err := lifecycle.Apply(&b, domain.TransitionRequest{
		To:              domain.StatusAccepted,
		Actor:           domain.ActorProvider,
		ActorProviderID: &other,
		Now:             time.Now(),
	})
	require.ErrorIs(t, err, domain.ErrNotAllowed)
}

func TestCustomerMayOnlyCancel(t *testing.T) {
	providerID := uuid.New()
	b := newBooking(domain.StatusPending, &providerID)

	_, err := lifecycle.Apply(&b, domain.TransitionRequest{
		To:          domain.StatusAccepted,
		Actor:       domain.ActorCustomer,
		ActorUserID: b.CustomerID,
		Now:         time.Now(),
	})
	require.ErrorIs(t, err, domain.ErrNotAllowed)

	_, err = lifecycle.Apply(&b, domain.TransitionRequest{
		To:          domain.StatusCancelled,
		Actor:       domain.ActorCustomer,
		ActorUserID: b.CustomerID,
		Reason:      "changed my mind",
		Now:         time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, b.Status)
	require.NotNil(t, b.CancelledBy)
	require.Equal(t, domain.ActorCustomer, *b.CancelledBy)
	require.Equal(t, "changed my mind", b.CancellationReason)
}

func TestCancellationFeeAppliesOnlyAfterAcceptance(t *testing.T) {
	providerID := uuid.New()
	fee := domain.Centavos(5000)

	early := newBooking(domain.StatusPending, &providerID)
	_, err := lifecycle.Apply(&early, domain.TransitionRequest{
		To:          domain.StatusCancelled,
		Actor:       domain.ActorCustomer,
		ActorUserID: early.CustomerID,
		Fee:         fee,
		Now:         time.Now(),
	})
	require.NoError(t, err)
	require.Zero(t, early.CancellationFee)

	late := newBooking(domain.StatusAccepted, &providerID)
	acceptedAt := time.Unix(500, 0).UTC()
	late.AcceptedAt = &acceptedAt
	_, err = lifecycle.Apply(&late, domain.TransitionRequest{
		To:          domain.StatusCancelled,
		Actor:       domain.ActorCustomer,
		ActorUserID: late.CustomerID,
		Fee:         fee,
		Now:         time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, fee, late.CancellationFee)
}

func TestExpireOnlyFromPendingStatesBySystem(t *testing.T) {
	providerID := uuid.New()

	b := newBooking(domain.StatusPending, &providerID)
	_, err := lifecycle.Apply(&b, providerRequest(b, domain.StatusExpired, time.Now()))
	require.ErrorIs(t, err, domain.ErrNotAllowed)

	effect, err := lifecycle.Apply(&b, domain.TransitionRequest{
		To:    domain.StatusExpired,
		Actor: domain.ActorSystem,
		Now:   time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, b.Status)
	require.True(t, effect.ReleaseProvider)

	accepted := newBooking(domain.StatusAccepted, &providerID)
	_, err = lifecycle.Apply(&accepted, domain.TransitionRequest{
		To:    domain.StatusExpired,
		Actor: domain.ActorSystem,
		Now:   time.Now(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTimestampsOnlySetOnFirstReach(t *testing.T) {
	providerID := uuid.New()
	b := newBooking(domain.StatusPending, &providerID)
	first := time.Unix(1000, 0).UTC()

	_, err := lifecycle.Apply(&b, providerRequest(b, domain.StatusAccepted, first))
	require.NoError(t, err)
	require.Equal(t, first, *b.AcceptedAt)

	// A pre-stamped timestamp survives later transitions untouched.
	later := time.Unix(2000, 0).UTC()
	_, err = lifecycle.Apply(&b, providerRequest(b, domain.StatusEnRoute, later))
	require.NoError(t, err)
	require.Equal(t, first, *b.AcceptedAt)
}

func TestAssignMovesAwaitingToPending(t *testing.T) {
	b := newBooking(domain.StatusAwaitingAssignment, nil)
	providerID := uuid.New()

	entry, err := lifecycle.Assign(&b, providerID, domain.TransitionRequest{Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, b.Status)
	require.Equal(t, providerID, *b.ProviderID)
	require.Equal(t, domain.StatusPending, entry.Status)

	_, err = lifecycle.Assign(&b, uuid.New(), domain.TransitionRequest{Now: time.Now()})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReleaseProviderOnTerminalWithClaim(t *testing.T) {
	providerID := uuid.New()
	b := newBooking(domain.StatusPending, &providerID)

	effect, err := lifecycle.Apply(&b, domain.TransitionRequest{
		To:          domain.StatusCancelled,
		Actor:       domain.ActorCustomer,
		ActorUserID: b.CustomerID,
		Now:         time.Now(),
	})
	require.NoError(t, err)
	require.True(t, effect.ReleaseProvider)

	unassigned := newBooking(domain.StatusAwaitingAssignment, nil)
	effect, err = lifecycle.Apply(&unassigned, domain.TransitionRequest{
		To:          domain.StatusCancelled,
		Actor:       domain.ActorCustomer,
		ActorUserID: unassigned.CustomerID,
		Now:         time.Now(),
	})
	require.NoError(t, err)
	require.False(t, effect.ReleaseProvider)
}
