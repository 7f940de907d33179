package location

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/spacall/internal/booking/domain"
)

// Recorder persists a location ping.
type Recorder interface {
	RecordProviderLocation(ctx context.Context, ping domain.LocationPing) error
}

// GeoUpserter mirrors positions into the matching geo index.
type GeoUpserter interface {
	UpsertLocation(ctx context.Context, providerID uuid.UUID, point domain.GeoPoint) error
}

// StreamObserver keeps the latest position per provider in memory and fans
// updates out to the recorder and geo index. Fan-out failures are logged, not
// propagated; the stream keeps flowing.
type StreamObserver struct {
	recorder Recorder
	geo      GeoUpserter
	clock    domain.Clock
	log      *zap.Logger

	mu     sync.RWMutex
	latest map[uuid.UUID]domain.LocationPing
}

// NewStreamObserver constructs the observer. Recorder and geo may be nil.
func NewStreamObserver(recorder Recorder, geo GeoUpserter, clock domain.Clock, log *zap.Logger) *StreamObserver {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamObserver{
		recorder: recorder,
		geo:      geo,
		clock:    clock,
		log:      log,
		latest:   make(map[uuid.UUID]domain.LocationPing),
	}
}

// Update stores and fans out one position report.
func (o *StreamObserver) Update(ctx context.Context, providerID uuid.UUID, point domain.GeoPoint) {
	ping := domain.LocationPing{
		ProviderID: providerID,
		Point:      point,
		RecordedAt: o.clock.Now(),
	}

	o.mu.Lock()
	o.latest[providerID] = ping
	o.mu.Unlock()

	if o.recorder != nil {
		if err := o.recorder.RecordProviderLocation(ctx, ping); err != nil {
			o.log.Warn("location record failed", zap.String("provider_id", providerID.String()), zap.Error(err))
		}
	}
	if o.geo != nil {
		if err := o.geo.UpsertLocation(ctx, providerID, point); err != nil {
			o.log.Warn("geo index update failed", zap.String("provider_id", providerID.String()), zap.Error(err))
		}
	}
}

// LatestProviderLocation returns the last ping seen on a stream.
func (o *StreamObserver) LatestProviderLocation(_ context.Context, providerID uuid.UUID) (domain.LocationPing, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ping, ok := o.latest[providerID]
	if !ok {
		return domain.LocationPing{}, domain.ErrNotFound
	}
	return ping, nil
}
