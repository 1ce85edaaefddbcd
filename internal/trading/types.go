package trading

import "context"

// Side of a swap relative to the token being traded.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExchangeKind selects the adapter a session trades on. It is explicit
// per-session configuration, never inferred from the token.
type ExchangeKind string

const (
	ExchangePool  ExchangeKind = "pool"
	ExchangeCurve ExchangeKind = "curve"
)

const (
	// SolMint is the wrapped native mint address.
	SolMint = "So11111111111111111111111111111111111111112"

	LamportsPerSOL = 1_000_000_000

	// MinSOLReserve is the native balance every bot must keep so that
	// future fees and liquidation sells stay payable.
	MinSOLReserve uint64 = 15_000_000 // 0.015 SOL

	// NetworkFeeAllowance covers the base transaction fee of one swap.
	NetworkFeeAllowance uint64 = 5_000
)

// Quote is the adapter-agnostic result of pricing a swap.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	MinOutAmount   uint64
	Price          float64
	PriceImpactPct float64
	SlippageBps    int

	// Opaque carries adapter-private quote state between Quote and
	// BuildTransaction. Callers pass it through untouched.
	Opaque any
}

// SignFunc signs a serialized transaction message on behalf of a user.
// The custody store provides it; the plaintext key never leaves that scope.
type SignFunc func(ctx context.Context, message []byte) ([]byte, error)

// Request describes one swap the executor should carry out.
type Request struct {
	UserID       string
	Owner        string // bot public address
	TokenAddress string
	Side         Side
	// Amount is lamports in for buys, raw token units in for sells.
	Amount      uint64
	SlippageBps int
	Exchange    ExchangeKind
	// UrgentSell marks a liquidation sell that may bypass the reserve check.
	UrgentSell bool
}

// Result of a confirmed swap.
type Result struct {
	Signature   string
	InAmount    uint64
	OutAmount   uint64
	Price       float64
	PriceImpact float64
}
