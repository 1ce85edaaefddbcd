package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

// DefaultServiceFeeSOL applies when no serviceFee setting has ever been
// written.
const DefaultServiceFeeSOL = 0.0015

const settingsCacheTTL = 30 * time.Second

// Settings serves engine-facing reads of the admin settings table with a
// short cache, and validates writes. Writes are serialized per instance.
type Settings struct {
	store storage.DataStore

	mu    sync.Mutex
	cache map[string]settingEntry
}

type settingEntry struct {
	value     string
	updatedAt time.Time
}

func NewSettings(store storage.DataStore) *Settings {
	return &Settings{
		store: store,
		cache: make(map[string]settingEntry),
	}
}

// ServiceFee returns the per-swap service fee in lamports.
func (s *Settings) ServiceFee(ctx context.Context) (uint64, error) {
	raw, err := s.get(ctx, models.SettingServiceFee)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uint64(DefaultServiceFeeSOL * trading.LamportsPerSOL), nil
		}
		return 0, err
	}
	sol, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed serviceFee setting %q: %w", raw, err)
	}
	return uint64(sol * trading.LamportsPerSOL), nil
}

// FeeAddress returns the platform fee destination, empty when unset.
func (s *Settings) FeeAddress(ctx context.Context) (string, error) {
	raw, err := s.get(ctx, models.SettingFeeAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return raw, nil
}

// Get returns the raw value for key.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	return s.get(ctx, key)
}

// Put validates and persists a setting, then drops the cached entry so
// the next read sees the new value.
func (s *Settings) Put(ctx context.Context, key, value, updatedBy string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.PutSetting(ctx, &models.AdminSetting{
		Key:       key,
		Value:     value,
		UpdatedBy: updatedBy,
	}); err != nil {
		return err
	}
	delete(s.cache, key)
	return nil
}

func (s *Settings) get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	entry, ok := s.cache[key]
	s.mu.Unlock()
	if ok && time.Since(entry.updatedAt) < settingsCacheTTL {
		return entry.value, nil
	}

	setting, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[key] = settingEntry{value: setting.Value, updatedAt: time.Now()}
	s.mu.Unlock()
	return setting.Value, nil
}

func validate(key, value string) error {
	switch key {
	case models.SettingServiceFee:
		fee, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: serviceFee must be a number", trading.ErrInvalidSetting)
		}
		if fee < 0 || fee > 1 {
			return fmt.Errorf("%w: serviceFee %v out of range [0, 1] SOL", trading.ErrInvalidSetting, fee)
		}
	case models.SettingFeeAddress:
		if len(value) < 32 || len(value) > 44 {
			return fmt.Errorf("feeAddress: %w", trading.ErrInvalidAddress)
		}
	}
	return nil
}
