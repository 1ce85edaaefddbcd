package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemon/internal/exchange"
	"daemon/internal/trading"
)

const testToken = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

type fakeAdapter struct {
	blob       []byte
	quoteCalls int
	quoteErr   error
}

func (a *fakeAdapter) Quote(_ context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*trading.Quote, error) {
	a.quoteCalls++
	if a.quoteErr != nil {
		return nil, a.quoteErr
	}
	return &trading.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      amount * 2,
		MinOutAmount:   amount * 2 * 99 / 100,
		Price:          0.5,
		PriceImpactPct: 0.1,
		SlippageBps:    slippageBps,
	}, nil
}

func (a *fakeAdapter) BuildTransaction(context.Context, *trading.Quote, string) ([]byte, error) {
	return a.blob, nil
}

type fakeLedger struct {
	mu          sync.Mutex
	submitErrs  []error // consumed per call, nil slice means always succeed
	submitCalls int
	confirmErr  error
	feeErr      error
	feeCalls    int
}

func (l *fakeLedger) SubmitTransaction(context.Context, []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitCalls++
	if len(l.submitErrs) > 0 {
		err := l.submitErrs[0]
		l.submitErrs = l.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("sig-%d", l.submitCalls), nil
}

func (l *fakeLedger) ConfirmTransaction(context.Context, string) error {
	return l.confirmErr
}

func (l *fakeLedger) TransferSOL(context.Context, string, trading.SignFunc, string, uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeCalls++
	if l.feeErr != nil {
		return "", l.feeErr
	}
	return "fee-sig", nil
}

type fakeBalances struct {
	balance     uint64
	err         error
	invalidated []string
}

func (b *fakeBalances) NativeBalance(context.Context, string) (uint64, error) {
	return b.balance, b.err
}

func (b *fakeBalances) Invalidate(address string) {
	b.invalidated = append(b.invalidated, address)
}

type fakeSettings struct {
	fee     uint64
	address string
}

func (s *fakeSettings) ServiceFee(context.Context) (uint64, error) { return s.fee, nil }
func (s *fakeSettings) FeeAddress(context.Context) (string, error) { return s.address, nil }

type fakeSigner struct{ key solana.PrivateKey }

func (s *fakeSigner) SignFunc(string) trading.SignFunc {
	return func(_ context.Context, message []byte) ([]byte, error) {
		sig, err := s.key.Sign(message)
		if err != nil {
			return nil, err
		}
		return sig[:], nil
	}
}

type fixture struct {
	exec     *Executor
	adapter  *fakeAdapter
	ledger   *fakeLedger
	balances *fakeBalances
	owner    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	payer := key.PublicKey()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer, payer).Build()},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	blob, err := tx.MarshalBinary()
	require.NoError(t, err)

	adapter := &fakeAdapter{blob: blob}
	ledger := &fakeLedger{}
	balances := &fakeBalances{balance: 10 * trading.LamportsPerSOL}
	exec := New(
		map[trading.ExchangeKind]exchange.Adapter{trading.ExchangePool: adapter},
		ledger, balances,
		&fakeSettings{fee: 1_500_000, address: "FeeAddr111111111111111111111111111111111111"},
		&fakeSigner{key: key},
		Backoff{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	)
	exec.feeRetryDelay = time.Millisecond
	return &fixture{exec: exec, adapter: adapter, ledger: ledger, balances: balances, owner: payer.String()}
}

func buyRequest(f *fixture) trading.Request {
	return trading.Request{
		UserID:       "user-1",
		Owner:        f.owner,
		TokenAddress: testToken,
		Side:         trading.SideBuy,
		Amount:       1_000_000_000,
		SlippageBps:  50,
		Exchange:     trading.ExchangePool,
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t)

	res, err := f.exec.Execute(context.Background(), buyRequest(f))
	require.NoError(t, err)
	assert.Equal(t, "sig-1", res.Signature)
	assert.Equal(t, uint64(2_000_000_000), res.OutAmount)
	assert.Equal(t, 1, f.ledger.feeCalls, "fee collected exactly once")
	assert.Equal(t, []string{f.owner}, f.balances.invalidated, "balance cache dropped after success")
}

func TestExecuteRetriesTimeoutThenSucceeds(t *testing.T) {
	f := newFixture(t)
	f.ledger.submitErrs = []error{
		errors.New("blockhash not found"),
		errors.New("failed to send transaction"),
		nil,
	}

	res, err := f.exec.Execute(context.Background(), buyRequest(f))
	require.NoError(t, err)
	assert.Equal(t, 3, f.ledger.submitCalls)
	assert.Equal(t, 3, f.adapter.quoteCalls, "each attempt requotes")
	assert.Equal(t, 3, f.ledger.feeCalls, "fee collected before every attempt")
	assert.Equal(t, "sig-3", res.Signature)
}

func TestExecuteStopsAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	f.ledger.submitErrs = []error{
		errors.New("timeout"), errors.New("timeout"),
		errors.New("timeout"), errors.New("timeout"),
	}

	_, err := f.exec.Execute(context.Background(), buyRequest(f))
	assert.ErrorIs(t, err, trading.ErrTransactionTimeout)
	assert.Equal(t, 3, f.ledger.submitCalls, "no fourth attempt")
}

func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	f := newFixture(t)
	f.ledger.submitErrs = []error{errors.New("slippage tolerance exceeded")}

	_, err := f.exec.Execute(context.Background(), buyRequest(f))
	assert.ErrorIs(t, err, trading.ErrTransactionRejected)
	assert.Equal(t, 1, f.ledger.submitCalls)
}

func TestExecuteFeeFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.ledger.feeErr = errors.New("rpc unavailable")

	_, err := f.exec.Execute(context.Background(), buyRequest(f))
	assert.ErrorIs(t, err, trading.ErrFeeCollectionFailed)
	assert.Equal(t, feeAttempts, f.ledger.feeCalls, "fee transfer retried internally")
	assert.Equal(t, 0, f.ledger.submitCalls, "swap never submitted")
}

func TestExecuteBalancePrecheckBoundary(t *testing.T) {
	f := newFixture(t)
	req := buyRequest(f)
	required := req.Amount + 1_500_000 + trading.NetworkFeeAllowance + trading.MinSOLReserve

	f.balances.balance = required - 1
	_, err := f.exec.Execute(context.Background(), req)
	assert.ErrorIs(t, err, trading.ErrInsufficientBalance)
	assert.Equal(t, 0, f.adapter.quoteCalls, "precheck fails before quoting")

	f.balances.balance = required
	_, err = f.exec.Execute(context.Background(), req)
	assert.NoError(t, err, "exact required balance passes")
}

func TestExecuteUrgentSellSkipsPrecheck(t *testing.T) {
	f := newFixture(t)
	f.balances.balance = 0

	req := buyRequest(f)
	req.Side = trading.SideSell
	req.Amount = 5_000_000
	req.UrgentSell = true

	_, err := f.exec.Execute(context.Background(), req)
	assert.NoError(t, err, "liquidation sells must run on a drained wallet")
}

func TestExecuteUnknownExchange(t *testing.T) {
	f := newFixture(t)
	req := buyRequest(f)
	req.Exchange = trading.ExchangeCurve

	_, err := f.exec.Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateQuoting, StateFeeCollecting, true},
		{StateFeeCollecting, StateBuilding, true},
		{StateBuilding, StateSigning, true},
		{StateSigning, StateSubmitting, true},
		{StateSubmitting, StateConfirming, true},
		{StateConfirming, StateSucceeded, true},
		{StateConfirming, StateQuoting, true},
		{StateQuoting, StateSubmitting, false},
		{StateSucceeded, StateQuoting, false},
		{StateFailed, StateQuoting, false},
		{StateQuoting, StateFailed, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.0001}

	d1 := b.Delay(1)
	d2 := b.Delay(2)
	d3 := b.Delay(3)
	assert.GreaterOrEqual(t, d2, 2*d1-time.Millisecond)
	assert.GreaterOrEqual(t, d3, 2*d2-time.Millisecond)

	d10 := b.Delay(10)
	assert.LessOrEqual(t, d10, time.Second+10*time.Millisecond, "delay is capped")
}
