package copytrade

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (p *fakePrices) Price(_ context.Context, mint string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.prices[mint]
	if !ok {
		return 0, fmt.Errorf("no price for %s", mint)
	}
	return v, nil
}

func (p *fakePrices) set(mint string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[mint] = price
}

// monitorFixture wires a follower bot holding a position bought at 1.0
// with stopLoss=10 configured on its edge to the lead.
func monitorFixture(t *testing.T) (*Monitor, *storage.MemoryStore, *fakeSwapper, *fakePrices) {
	t.Helper()
	store := newStore(t)
	ctx := context.Background()

	sl := 10.0
	require.NoError(t, store.UpsertEdge(ctx, &models.FollowerEdge{
		LeadAddress:     leadAddr,
		FollowerAddress: followerAddr,
		CopyTrades:      true,
		StopLossPct:     &sl,
	}))
	require.NoError(t, store.CreateTrade(ctx, &models.Trade{
		BotAddress:   followerAddr,
		TokenAddress: tokenAddr,
		Side:         string(trading.SideBuy),
		InAmount:     1_000_000_000,
		OutAmount:    1_000_000_000,
		Price:        1.0,
		SlippageBps:  50,
		ExchangeKind: string(trading.ExchangePool),
		Status:       models.TradeActive,
	}))

	swapper := &fakeSwapper{}
	balances := &fakeBalances{token: map[string]uint64{
		followerAddr + ":" + tokenAddr: 1_000_000_000,
	}}
	prices := &fakePrices{prices: map[string]float64{}}
	propagator := NewPropagator(store, swapper, balances)
	monitor := NewMonitor(store, prices, swapper, balances, propagator)
	return monitor, store, swapper, prices
}

func TestScanStopLossTriggersBelowBound(t *testing.T) {
	monitor, store, swapper, prices := monitorFixture(t)
	ctx := context.Background()

	prices.set(tokenAddr, 0.89) // pnl -11%, beyond stopLoss 10
	require.NoError(t, monitor.Scan(ctx))

	calls := swapper.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, trading.SideSell, calls[0].Side)
	assert.True(t, calls[0].UrgentSell)

	byBot, err := store.ListTradesByBot(ctx, followerAddr, 1)
	require.NoError(t, err)
	require.Len(t, byBot, 1)
	assert.Equal(t, models.TradeClosed, byBot[0].Status)
	assert.Equal(t, models.CloseStopLoss, byBot[0].CloseReason)
	assert.Equal(t, 0.89, byBot[0].ClosePrice)
}

func TestScanStopLossHoldsWithinBound(t *testing.T) {
	monitor, store, swapper, prices := monitorFixture(t)
	ctx := context.Background()

	prices.set(tokenAddr, 0.91) // pnl -9%, inside stopLoss 10
	require.NoError(t, monitor.Scan(ctx))

	assert.Empty(t, swapper.calls(), "no sell inside the bound")
	_, err := store.GetActiveTrade(ctx, followerAddr, tokenAddr)
	assert.NoError(t, err, "position stays open")
}

func TestScanTakeProfit(t *testing.T) {
	monitor, store, _, prices := monitorFixture(t)
	ctx := context.Background()

	tp := 20.0
	require.NoError(t, store.UpsertEdge(ctx, &models.FollowerEdge{
		LeadAddress:     leadAddr,
		FollowerAddress: followerAddr,
		CopyTrades:      true,
		TakeProfitPct:   &tp,
	}))

	prices.set(tokenAddr, 1.25) // pnl +25%
	require.NoError(t, monitor.Scan(ctx))

	byBot, err := store.ListTradesByBot(ctx, followerAddr, 1)
	require.NoError(t, err)
	require.Len(t, byBot, 1)
	assert.Equal(t, models.CloseTakeProfit, byBot[0].CloseReason)
}

func TestScanCascadesToFollowers(t *testing.T) {
	monitor, store, swapper, prices := monitorFixture(t)
	ctx := context.Background()

	// follower2 copies followerAddr, holding its own position
	require.NoError(t, store.UpsertEdge(ctx, &models.FollowerEdge{
		LeadAddress:     followerAddr,
		FollowerAddress: follower2Addr,
		CopyTrades:      true,
	}))
	require.NoError(t, store.CreateTrade(ctx, &models.Trade{
		BotAddress:   follower2Addr,
		TokenAddress: tokenAddr,
		Side:         string(trading.SideBuy),
		InAmount:     500_000_000,
		OutAmount:    500_000_000,
		Price:        1.0,
		ExchangeKind: string(trading.ExchangePool),
		Status:       models.TradeActive,
	}))
	monitor.balances.(*fakeBalances).token[follower2Addr+":"+tokenAddr] = 500_000_000

	prices.set(tokenAddr, 0.80)
	require.NoError(t, monitor.Scan(ctx))

	sells := 0
	for _, req := range swapper.calls() {
		if req.Side == trading.SideSell {
			sells++
		}
	}
	assert.GreaterOrEqual(t, sells, 2, "cascade sells the follower's follower too")

	byBot, err := store.ListTradesByBot(ctx, follower2Addr, 1)
	require.NoError(t, err)
	require.Len(t, byBot, 1)
	assert.Equal(t, models.TradeClosed, byBot[0].Status)
	assert.Equal(t, models.CloseCopyPrefix+models.CloseStopLoss, byBot[0].CloseReason)
}

func TestScanSkipsUnpricedTokens(t *testing.T) {
	monitor, store, swapper, _ := monitorFixture(t)
	ctx := context.Background()

	require.NoError(t, monitor.Scan(ctx), "missing price is not fatal")
	assert.Empty(t, swapper.calls())
	_, err := store.GetActiveTrade(ctx, followerAddr, tokenAddr)
	assert.NoError(t, err)
}
