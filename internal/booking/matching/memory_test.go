package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/booking/matching"
)

func TestMemoryAvailabilityStoreTTLExpiry(t *testing.T) {
	store := matching.NewMemoryAvailabilityStore()
	ctx := context.Background()
	providerID := uuid.New()

	claimed, err := store.TryClaim(ctx, providerID, uuid.New(), 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.TryClaim(ctx, providerID, uuid.New(), 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, claimed)

	time.Sleep(60 * time.Millisecond)

	claimed, err = store.TryClaim(ctx, providerID, uuid.New(), time.Second)
	require.NoError(t, err)
	require.True(t, claimed)
}
