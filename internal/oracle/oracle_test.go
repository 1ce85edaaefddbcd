package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemon/internal/trading"
)

type fakeLedger struct {
	mu          sync.Mutex
	native      map[string]uint64
	token       map[string]uint64
	failures    int // fail this many calls before succeeding
	nativeCalls int
	tokenCalls  int
}

func (f *fakeLedger) NativeBalance(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nativeCalls++
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("rpc unavailable")
	}
	return f.native[address], nil
}

func (f *fakeLedger) TokenBalance(_ context.Context, address, mint string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("rpc unavailable")
	}
	return f.token[address+":"+mint], nil
}

func testConfig() Config {
	return Config{
		TTL:            50 * time.Millisecond,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestNativeBalanceCaching(t *testing.T) {
	ledger := &fakeLedger{native: map[string]uint64{"addr": 5_000_000_000}}
	o := New(ledger, testConfig())

	for i := 0; i < 3; i++ {
		bal, err := o.NativeBalance(context.Background(), "addr")
		require.NoError(t, err)
		assert.Equal(t, uint64(5_000_000_000), bal)
	}
	assert.Equal(t, 1, ledger.nativeCalls, "cached reads should not hit the ledger")

	time.Sleep(60 * time.Millisecond)
	_, err := o.NativeBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.nativeCalls, "expired entry should refresh")
}

func TestRetryThenSuccess(t *testing.T) {
	ledger := &fakeLedger{native: map[string]uint64{"addr": 42}, failures: 2}
	o := New(ledger, testConfig())

	bal, err := o.NativeBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)
	assert.Equal(t, 3, ledger.nativeCalls)
}

func TestStaleFallbackAfterExhaustion(t *testing.T) {
	ledger := &fakeLedger{native: map[string]uint64{"addr": 42}}
	o := New(ledger, testConfig())

	_, err := o.NativeBalance(context.Background(), "addr")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	ledger.mu.Lock()
	ledger.failures = 10
	ledger.mu.Unlock()

	bal, err := o.NativeBalance(context.Background(), "addr")
	require.NoError(t, err, "stale cached value should be served on exhaustion")
	assert.Equal(t, uint64(42), bal)
}

func TestUnavailableWithoutCache(t *testing.T) {
	ledger := &fakeLedger{failures: 10}
	o := New(ledger, testConfig())

	_, err := o.NativeBalance(context.Background(), "addr")
	assert.ErrorIs(t, err, trading.ErrBalanceUnavailable)
	assert.Equal(t, 3, ledger.nativeCalls, "should stop after the retry budget")
}

func TestTokenBalanceAndInvalidate(t *testing.T) {
	ledger := &fakeLedger{
		native: map[string]uint64{"addr": 1},
		token:  map[string]uint64{"addr:mint": 777},
	}
	o := New(ledger, testConfig())

	bal, err := o.TokenBalance(context.Background(), "addr", "mint")
	require.NoError(t, err)
	assert.Equal(t, uint64(777), bal)

	_, err = o.NativeBalance(context.Background(), "addr")
	require.NoError(t, err)

	o.Invalidate("addr")

	_, err = o.TokenBalance(context.Background(), "addr", "mint")
	require.NoError(t, err)
	_, err = o.NativeBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.tokenCalls)
	assert.Equal(t, 2, ledger.nativeCalls)
}
