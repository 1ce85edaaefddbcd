package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemon/internal/models"
	"daemon/internal/storage"
)

func TestServiceFeeDefault(t *testing.T) {
	s := NewSettings(storage.NewMemoryStore())

	fee, err := s.ServiceFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), fee, "default 0.0015 SOL in lamports")
}

func TestServiceFeeRoundTrip(t *testing.T) {
	s := NewSettings(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, models.SettingServiceFee, "0.002", "admin-1"))
	fee, err := s.ServiceFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), fee)

	// overwrite is visible immediately despite the cache
	require.NoError(t, s.Put(ctx, models.SettingServiceFee, "0.001", "admin-1"))
	fee, err = s.ServiceFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), fee)
}

func TestServiceFeeBounds(t *testing.T) {
	s := NewSettings(storage.NewMemoryStore())
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, models.SettingServiceFee, "-0.1", "admin-1"))
	assert.Error(t, s.Put(ctx, models.SettingServiceFee, "1.5", "admin-1"))
	assert.Error(t, s.Put(ctx, models.SettingServiceFee, "abc", "admin-1"))
	assert.NoError(t, s.Put(ctx, models.SettingServiceFee, "0", "admin-1"))
	assert.NoError(t, s.Put(ctx, models.SettingServiceFee, "1", "admin-1"))
}

func TestFeeAddress(t *testing.T) {
	s := NewSettings(storage.NewMemoryStore())
	ctx := context.Background()

	addr, err := s.FeeAddress(ctx)
	require.NoError(t, err)
	assert.Empty(t, addr, "unset fee address disables collection")

	assert.Error(t, s.Put(ctx, models.SettingFeeAddress, "short", "admin-1"))

	valid := "FeeAddr1111111111111111111111111111111111"
	require.NoError(t, s.Put(ctx, models.SettingFeeAddress, valid, "admin-1"))
	addr, err = s.FeeAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid, addr)
}
