package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateBuyPreservesInvariant(t *testing.T) {
	sim := SimulateBuy(10, 1000, 1_000_000, 0)
	require.NotNil(t, sim)

	kBefore := 1000.0 * 1_000_000
	kAfter := sim.ReserveSolAfter * sim.ReserveTokenAfter
	assert.InDelta(t, kBefore, kAfter, kBefore*1e-9)

	assert.Greater(t, sim.AmountOut, 0.0)
	assert.Greater(t, sim.PriceAfter, sim.PriceBefore, "a buy moves price up")
	assert.Greater(t, sim.PriceImpactPct, 0.0)
}

func TestSimulateBuyFeeReducesOutput(t *testing.T) {
	noFee := SimulateBuy(10, 1000, 1_000_000, 0)
	withFee := SimulateBuy(10, 1000, 1_000_000, 0.01)
	assert.Less(t, withFee.AmountOut, noFee.AmountOut)
}

func TestSimulateSellMovesPriceDown(t *testing.T) {
	sim := SimulateSell(10_000, 1000, 1_000_000, 0.003)
	assert.Greater(t, sim.AmountOut, 0.0)
	assert.Less(t, sim.PriceAfter, sim.PriceBefore, "a sell moves price down")
	assert.Less(t, sim.PriceImpactPct, 0.0)
}

func TestBuyThenSellRoundTripLosesToFees(t *testing.T) {
	buy := SimulateBuy(5, 1000, 1_000_000, 0.01)
	sell := SimulateSell(buy.AmountOut, buy.ReserveSolAfter, buy.ReserveTokenAfter, 0.01)
	assert.Less(t, sell.AmountOut, 5.0, "round trip should cost the fee")
}

func TestCurveVirtualReserves(t *testing.T) {
	vSol, vToken := CurveVirtualReserves(curveTotalSupply)
	assert.InDelta(t, curveInitialVirtualToken, vToken, 1)
	assert.InDelta(t, 30.0, vSol, 0.01)

	// A partially sold curve has fewer virtual tokens and a higher price.
	vSol2, vToken2 := CurveVirtualReserves(600_000_000)
	assert.Less(t, vToken2, vToken)
	assert.Greater(t, vSol2/vToken2, vSol/vToken)
}

func TestMinAmountOut(t *testing.T) {
	assert.InDelta(t, 99.5, MinAmountOut(100, 50), 1e-9)
	assert.InDelta(t, 90.0, MinAmountOut(100, 1000), 1e-9)
	assert.InDelta(t, 100.0, MinAmountOut(100, 0), 1e-9)
}
