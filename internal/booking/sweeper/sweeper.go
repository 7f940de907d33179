// Package sweeper runs the periodic expiry of stale bookings.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/spacall/internal/booking/domain"
)

var (
	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacall_sweep_expired_total",
		Help: "Total number of bookings expired by the sweep.",
	})
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacall_sweep_runs_total",
		Help: "Sweep passes by result.",
	}, []string{"result"})
)

// Expirer is the slice of the booking service the sweep needs.
type Expirer interface {
	ExpireStale(ctx context.Context) ([]domain.Booking, error)
}

// Sweeper polls for stale bookings. A failed pass is logged and retried on
// the next tick; the loop stops only when the context is cancelled.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New constructs a Sweeper.
func New(expirer Expirer, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
		tracer:   otel.Tracer("booking.sweeper"),
	}
}

// Run starts the polling loop until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := s.sweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "sweeper.sweep")
	defer span.End()

	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	sweepRunsTotal.WithLabelValues("ok").Inc()
	if len(expired) > 0 {
		sweepExpiredTotal.Add(float64(len(expired)))
		s.logger.Info("expired stale bookings", zap.Int("count", len(expired)))
	}
	return nil
}
