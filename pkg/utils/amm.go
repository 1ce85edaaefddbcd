package utils

// Swap simulation against pooled or virtual reserves. Both exchange
// adapters use these to estimate output amounts and price impact locally
// before committing to an on-chain submission.

// SwapSimulation is the outcome of applying one swap to a reserve pair.
type SwapSimulation struct {
	AmountOut         float64
	ReserveSolAfter   float64
	ReserveTokenAfter float64
	PriceBefore       float64
	PriceAfter        float64
	PriceImpactPct    float64
}

// SimulateBuy spends amountIn SOL against (reserveSol, reserveToken) on a
// constant-product invariant and returns the tokens received. feeRate is
// the exchange fee fraction taken from the input side.
func SimulateBuy(amountIn, reserveSol, reserveToken, feeRate float64) *SwapSimulation {
	priceBefore := reserveSol / reserveToken
	inAfterFee := amountIn * (1 - feeRate)

	k := reserveSol * reserveToken
	newSol := reserveSol + inAfterFee
	newToken := k / newSol
	out := reserveToken - newToken

	priceAfter := newSol / newToken
	return &SwapSimulation{
		AmountOut:         out,
		ReserveSolAfter:   newSol,
		ReserveTokenAfter: newToken,
		PriceBefore:       priceBefore,
		PriceAfter:        priceAfter,
		PriceImpactPct:    (priceAfter - priceBefore) / priceBefore * 100,
	}
}

// SimulateSell sells amountIn tokens for SOL. The fee is taken from the
// SOL output side.
func SimulateSell(amountIn, reserveSol, reserveToken, feeRate float64) *SwapSimulation {
	priceBefore := reserveSol / reserveToken

	k := reserveSol * reserveToken
	newToken := reserveToken + amountIn
	newSol := k / newToken
	out := (reserveSol - newSol) * (1 - feeRate)

	priceAfter := newSol / newToken
	return &SwapSimulation{
		AmountOut:         out,
		ReserveSolAfter:   newSol,
		ReserveTokenAfter: newToken,
		PriceBefore:       priceBefore,
		PriceAfter:        priceAfter,
		PriceImpactPct:    (priceAfter - priceBefore) / priceBefore * 100,
	}
}

// Launch-curve constants: a fresh curve starts with 1.073B virtual tokens
// against 30 virtual SOL (values in whole tokens / SOL).
const (
	curveInitialVirtualToken = 1_073_000_000.0
	curveTotalSupply         = 1_000_000_000.0
	curveInvariant           = 32_190_000_000.0
)

// CurveVirtualReserves derives the virtual reserve pair of a bonding
// curve from the token amount still held by the curve.
func CurveVirtualReserves(curveTokenAmount float64) (vSol, vToken float64) {
	vToken = curveInitialVirtualToken - (curveTotalSupply - curveTokenAmount)
	vSol = curveInvariant / vToken
	return vSol, vToken
}

// MinAmountOut applies a slippage tolerance in basis points to an
// expected output amount.
func MinAmountOut(expected float64, slippageBps int) float64 {
	return expected * (1 - float64(slippageBps)/10_000)
}
