package matching

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAvailabilityStore is a mutex-guarded claim map for tests and
// single-node runs without redis.
type MemoryAvailabilityStore struct {
	mu     sync.Mutex
	claims map[uuid.UUID]claim
}

type claim struct {
	bookingID uuid.UUID
	expires   time.Time
}

// NewMemoryAvailabilityStore constructs an empty store.
func NewMemoryAvailabilityStore() *MemoryAvailabilityStore {
	return &MemoryAvailabilityStore{claims: make(map[uuid.UUID]claim)}
}

// TryClaim reserves the provider unless an unexpired claim exists.
func (m *MemoryAvailabilityStore) TryClaim(_ context.Context, providerID, bookingID uuid.UUID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if c, ok := m.claims[providerID]; ok && now.Before(c.expires) {
		return false, nil
	}
	m.claims[providerID] = claim{bookingID: bookingID, expires: now.Add(ttl)}
	return true, nil
}

// Release removes the provider's claim.
func (m *MemoryAvailabilityStore) Release(_ context.Context, providerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, providerID)
	return nil
}
