package executor

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"daemon/internal/exchange"
	"daemon/internal/trading"
)

// State of one swap run. Terminal states are Succeeded and Failed.
type State string

const (
	StateQuoting       State = "quoting"
	StateFeeCollecting State = "fee_collecting"
	StateBuilding      State = "building"
	StateSigning       State = "signing"
	StateSubmitting    State = "submitting"
	StateConfirming    State = "confirming"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// ValidTransitions lists the permitted state changes. Every pre-terminal
// state may fall back to Quoting when the cycle is retried.
var ValidTransitions = map[State][]State{
	StateQuoting:       {StateFeeCollecting, StateFailed},
	StateFeeCollecting: {StateBuilding, StateQuoting, StateFailed},
	StateBuilding:      {StateSigning, StateQuoting, StateFailed},
	StateSigning:       {StateSubmitting, StateQuoting, StateFailed},
	StateSubmitting:    {StateConfirming, StateQuoting, StateFailed},
	StateConfirming:    {StateSucceeded, StateQuoting, StateFailed},
}

// CanTransition checks whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Ledger is the chain write surface the executor submits through.
type Ledger interface {
	SubmitTransaction(ctx context.Context, raw []byte) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
	TransferSOL(ctx context.Context, from string, sign trading.SignFunc, to string, lamports uint64) (string, error)
}

// Balances is the read surface used for the precheck. The oracle
// satisfies it.
type Balances interface {
	NativeBalance(ctx context.Context, address string) (uint64, error)
	Invalidate(address string)
}

// Settings supplies the per-swap service fee and its destination.
type Settings interface {
	ServiceFee(ctx context.Context) (uint64, error)
	FeeAddress(ctx context.Context) (string, error)
}

// Signer hands out per-user signing functions. The custody store
// satisfies it.
type Signer interface {
	SignFunc(userID string) trading.SignFunc
}

// Fee collection has its own short retry loop independent of the swap
// cycle retries.
const (
	feeAttempts   = 3
	feeRetryDelay = 2 * time.Second
)

// Executor drives one swap from quote to confirmation as an explicit
// state machine. The service fee is transferred before every swap
// attempt; a fee failure aborts the run without retrying the cycle.
type Executor struct {
	adapters map[trading.ExchangeKind]exchange.Adapter
	ledger   Ledger
	balances Balances
	settings Settings
	signer   Signer
	backoff  Backoff

	feeRetryDelay time.Duration
}

func New(adapters map[trading.ExchangeKind]exchange.Adapter, ledger Ledger, balances Balances, settings Settings, signer Signer, backoff Backoff) *Executor {
	backoff.applyDefaults()
	return &Executor{
		adapters:      adapters,
		ledger:        ledger,
		balances:      balances,
		settings:      settings,
		signer:        signer,
		backoff:       backoff,
		feeRetryDelay: feeRetryDelay,
	}
}

// Execute performs the swap described by req and blocks until it is
// confirmed or definitively failed.
func (e *Executor) Execute(ctx context.Context, req trading.Request) (*trading.Result, error) {
	adapter, ok := e.adapters[req.Exchange]
	if !ok {
		return nil, fmt.Errorf("no adapter for exchange %q", req.Exchange)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("zero amount: %w", trading.ErrInsufficientBalance)
	}

	fee, err := e.settings.ServiceFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service fee: %w", err)
	}
	feeAddress, err := e.settings.FeeAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fee address: %w", err)
	}

	if err := e.precheck(ctx, req, fee); err != nil {
		return nil, err
	}

	sign := e.signer.SignFunc(req.UserID)

	var lastErr error
	for attempt := 1; attempt <= e.backoff.MaxAttempts; attempt++ {
		res, err := e.attempt(ctx, adapter, req, fee, feeAddress, sign)
		if err == nil {
			e.balances.Invalidate(req.Owner)
			return res, nil
		}
		lastErr = err
		if !trading.Retryable(err) {
			break
		}
		if attempt < e.backoff.MaxAttempts {
			delay := e.backoff.Delay(attempt)
			log.WithFields(log.Fields{
				"user":    req.UserID,
				"token":   req.TokenAddress,
				"attempt": attempt,
			}).Warnf("swap attempt failed, retrying in %s: %v", delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// precheck enforces the native reserve before any lamports move. Urgent
// liquidation sells skip it so a drained wallet can still be closed out.
func (e *Executor) precheck(ctx context.Context, req trading.Request, fee uint64) error {
	if req.UrgentSell {
		return nil
	}
	balance, err := e.balances.NativeBalance(ctx, req.Owner)
	if err != nil {
		return err
	}
	required := fee + trading.NetworkFeeAllowance + trading.MinSOLReserve
	if req.Side == trading.SideBuy {
		required += req.Amount
	}
	if balance < required {
		return fmt.Errorf("%w: have %d lamports, need %d", trading.ErrInsufficientBalance, balance, required)
	}
	return nil
}

// run tracks the state of one attempt through the machine.
type run struct {
	state State
}

func (r *run) to(next State) error {
	if !CanTransition(r.state, next) {
		return fmt.Errorf("invalid transition %s -> %s", r.state, next)
	}
	r.state = next
	return nil
}

func (e *Executor) attempt(ctx context.Context, adapter exchange.Adapter, req trading.Request, fee uint64, feeAddress string, sign trading.SignFunc) (*trading.Result, error) {
	r := &run{state: StateQuoting}
	fail := func(err error) (*trading.Result, error) {
		r.state = StateFailed
		return nil, err
	}

	inputMint, outputMint := trading.SolMint, req.TokenAddress
	if req.Side == trading.SideSell {
		inputMint, outputMint = req.TokenAddress, trading.SolMint
	}

	quote, err := adapter.Quote(ctx, inputMint, outputMint, req.Amount, req.SlippageBps)
	if err != nil {
		return fail(err)
	}

	if err := r.to(StateFeeCollecting); err != nil {
		return fail(err)
	}
	if err := e.collectFee(ctx, req.Owner, sign, feeAddress, fee); err != nil {
		return fail(fmt.Errorf("%w: %v", trading.ErrFeeCollectionFailed, err))
	}

	if err := r.to(StateBuilding); err != nil {
		return fail(err)
	}
	unsigned, err := adapter.BuildTransaction(ctx, quote, req.Owner)
	if err != nil {
		return fail(err)
	}

	if err := r.to(StateSigning); err != nil {
		return fail(err)
	}
	signed, err := exchange.SignBlob(ctx, unsigned, sign)
	if err != nil {
		return fail(err)
	}

	if err := r.to(StateSubmitting); err != nil {
		return fail(err)
	}
	signature, err := e.ledger.SubmitTransaction(ctx, signed)
	if err != nil {
		return fail(fmt.Errorf("submit: %w", trading.ClassifyLedger(err)))
	}

	if err := r.to(StateConfirming); err != nil {
		return fail(err)
	}
	if err := e.ledger.ConfirmTransaction(ctx, signature); err != nil {
		return fail(fmt.Errorf("confirm %s: %w", signature, trading.ClassifyLedger(err)))
	}

	if err := r.to(StateSucceeded); err != nil {
		return fail(err)
	}
	return &trading.Result{
		Signature:   signature,
		InAmount:    quote.InAmount,
		OutAmount:   quote.OutAmount,
		Price:       quote.Price,
		PriceImpact: quote.PriceImpactPct,
	}, nil
}

// collectFee moves the service fee to the platform address before the
// swap. A zero fee or empty address disables collection.
func (e *Executor) collectFee(ctx context.Context, owner string, sign trading.SignFunc, feeAddress string, fee uint64) error {
	if fee == 0 || feeAddress == "" {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= feeAttempts; attempt++ {
		sig, err := e.ledger.TransferSOL(ctx, owner, sign, feeAddress, fee)
		if err == nil {
			log.WithFields(log.Fields{"owner": owner, "signature": sig}).Debug("service fee collected")
			return nil
		}
		lastErr = err
		if attempt < feeAttempts {
			select {
			case <-time.After(e.feeRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
