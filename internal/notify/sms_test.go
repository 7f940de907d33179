package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/notify"
)

type captureSender struct {
	mobile   string
	messages []string
	err      error
}

func (s *captureSender) Send(_ context.Context, mobile, message string) error {
	if s.err != nil {
		return s.err
	}
	s.mobile = mobile
	s.messages = append(s.messages, message)
	return nil
}

type mapDirectory map[uuid.UUID]string

func (d mapDirectory) UserMobile(_ context.Context, userID uuid.UUID) (string, error) {
	mobile, ok := d[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return mobile, nil
}

func TestBookingCreatedSendsToCustomerMobile(t *testing.T) {
	customerID := uuid.New()
	sender := &captureSender{}
	n := notify.NewSMSNotifier(sender, mapDirectory{customerID: "+639170000001"}, false, nil)

	err := n.BookingCreated(context.Background(), domain.Booking{
		Number:     "SPC-2026-000001",
		CustomerID: customerID,
		Total:      domain.Centavos(55000),
	})
	require.NoError(t, err)
	require.Equal(t, "+639170000001", sender.mobile)
	require.Len(t, sender.messages, 1)
	require.Contains(t, sender.messages[0], "SPC-2026-000001")
	require.Contains(t, sender.messages[0], "550.00")
}

func TestStatusChangedMessagesPerMilestone(t *testing.T) {
	customerID := uuid.New()
	sender := &captureSender{}
	n := notify.NewSMSNotifier(sender, mapDirectory{customerID: "+639170000001"}, false, nil)

	for _, status := range []domain.BookingStatus{
		domain.StatusAccepted,
		domain.StatusEnRoute,
		domain.StatusArrived,
		domain.StatusCompleted,
		domain.StatusCancelled,
		domain.StatusExpired,
	} {
		err := n.StatusChanged(context.Background(), domain.Booking{
			Number:     "SPC-2026-000002",
			CustomerID: customerID,
			Status:     status,
		})
		require.NoError(t, err)
	}
	require.Len(t, sender.messages, 6)
}

func TestStatusChangedSkipsIntermediateStatuses(t *testing.T) {
	customerID := uuid.New()
	sender := &captureSender{}
	n := notify.NewSMSNotifier(sender, mapDirectory{customerID: "+639170000001"}, false, nil)

	err := n.StatusChanged(context.Background(), domain.Booking{
		CustomerID: customerID,
		Status:     domain.StatusInProgress,
	})
	require.NoError(t, err)
	require.Empty(t, sender.messages)
}

func TestSendFailureSwallowedUnlessStrict(t *testing.T) {
	customerID := uuid.New()
	sender := &captureSender{err: errors.New("gateway down")}
	directory := mapDirectory{customerID: "+639170000001"}
	booking := domain.Booking{Number: "SPC-2026-000003", CustomerID: customerID}

	relaxed := notify.NewSMSNotifier(sender, directory, false, nil)
	require.NoError(t, relaxed.BookingCreated(context.Background(), booking))

	strict := notify.NewSMSNotifier(sender, directory, true, nil)
	require.Error(t, strict.BookingCreated(context.Background(), booking))
}

func TestUnknownUserSwallowedUnlessStrict(t *testing.T) {
	sender := &captureSender{}
	booking := domain.Booking{CustomerID: uuid.New(), Status: domain.StatusAccepted}

	relaxed := notify.NewSMSNotifier(sender, mapDirectory{}, false, nil)
	require.NoError(t, relaxed.StatusChanged(context.Background(), booking))
	require.Empty(t, sender.messages)

	strict := notify.NewSMSNotifier(sender, mapDirectory{}, true, nil)
	require.Error(t, strict.StatusChanged(context.Background(), booking))
}
