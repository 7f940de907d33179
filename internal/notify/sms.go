package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/spacall/internal/booking/domain"
)

// SMSSender delivers one text message to a mobile number.
type SMSSender interface {
	Send(ctx context.Context, mobile, message string) error
}

// LogSender is the default SMSSender: it logs the message instead of sending
// it. Deployments plug in a gateway-backed sender.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, mobile, message string) error {
	s.Log.Info("sms", zap.String("mobile", mobile), zap.String("message", message))
	return nil
}

// MobileDirectory resolves a user's mobile number.
type MobileDirectory interface {
	UserMobile(ctx context.Context, userID uuid.UUID) (string, error)
}

// SMSNotifier sends booking milestone messages. Strict mode propagates send
// failures to the caller; otherwise failures are logged and swallowed.
type SMSNotifier struct {
	sender    SMSSender
	directory MobileDirectory
	strict    bool
	log       *zap.Logger
}

// NewSMSNotifier builds an SMSNotifier.
func NewSMSNotifier(sender SMSSender, directory MobileDirectory, strict bool, log *zap.Logger) *SMSNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMSNotifier{sender: sender, directory: directory, strict: strict, log: log}
}

// BookingCreated messages the customer that the booking was received.
func (n *SMSNotifier) BookingCreated(ctx context.Context, b domain.Booking) error {
	msg := fmt.Sprintf("Your booking %s has been received. Total: PHP %s.", b.Number, b.Total)
	return n.send(ctx, b.CustomerID, msg)
}

// StatusChanged messages the customer about a status milestone.
func (n *SMSNotifier) StatusChanged(ctx context.Context, b domain.Booking) error {
	var msg string
	switch b.Status {
	case domain.StatusAccepted:
		msg = fmt.Sprintf("Your booking %s has been accepted.", b.Number)
	case domain.StatusEnRoute:
		msg = fmt.Sprintf("Your therapist for booking %s is on the way.", b.Number)
	case domain.StatusArrived:
		msg = fmt.Sprintf("Your therapist for booking %s has arrived.", b.Number)
	case domain.StatusCompleted:
		msg = fmt.Sprintf("Your booking %s is complete. Thank you!", b.Number)
	case domain.StatusCancelled:
		msg = fmt.Sprintf("Your booking %s was cancelled.", b.Number)
	case domain.StatusExpired:
		msg = fmt.Sprintf("Your booking %s expired without a therapist. Please try again.", b.Number)
	default:
		return nil
	}
	return n.send(ctx, b.CustomerID, msg)
}

func (n *SMSNotifier) send(ctx context.Context, userID uuid.UUID, message string) error {
	mobile, err := n.directory.UserMobile(ctx, userID)
	if err == nil {
		err = n.sender.Send(ctx, mobile, message)
	}
	if err != nil {
		if n.strict {
			return fmt.Errorf("notify user %s: %w", userID, err)
		}
		n.log.Warn("sms delivery failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return nil
}
