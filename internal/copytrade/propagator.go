package copytrade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

// Swapper executes swaps. The executor satisfies it.
type Swapper interface {
	Execute(ctx context.Context, req trading.Request) (*trading.Result, error)
}

// Balances reads follower token holdings for copy sells.
type Balances interface {
	TokenBalance(ctx context.Context, address, mint string) (uint64, error)
}

// FollowSettings are the per-edge options a follower configures.
type FollowSettings struct {
	CopyTrades    bool
	StopLossPct   *float64
	TakeProfitPct *float64
}

// FollowerResult is the outcome of one follower's copy of a lead trade.
type FollowerResult struct {
	FollowerAddress string
	Signature       string
	Err             error
}

// Propagator maintains the follower graph and replays lead trades to
// followers. Follower failures stay isolated per follower.
type Propagator struct {
	store    storage.DataStore
	swapper  Swapper
	balances Balances
}

func NewPropagator(store storage.DataStore, swapper Swapper, balances Balances) *Propagator {
	return &Propagator{store: store, swapper: swapper, balances: balances}
}

// Follow creates or updates the (lead, follower) edge. The follower must
// be a custodied wallet; the lead may be any address.
func (p *Propagator) Follow(ctx context.Context, followerAddress, leadAddress string, settings FollowSettings) error {
	if followerAddress == leadAddress {
		return trading.ErrSelfFollow
	}
	if _, err := p.store.GetWalletByAddress(ctx, followerAddress); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("follower %s: %w", followerAddress, trading.ErrNotFound)
		}
		return err
	}
	return p.store.UpsertEdge(ctx, &models.FollowerEdge{
		LeadAddress:     leadAddress,
		FollowerAddress: followerAddress,
		CopyTrades:      settings.CopyTrades,
		StopLossPct:     settings.StopLossPct,
		TakeProfitPct:   settings.TakeProfitPct,
	})
}

// Unfollow removes one edge. Removing a missing edge is a no-op.
func (p *Propagator) Unfollow(ctx context.Context, followerAddress, leadAddress string) error {
	return p.store.DeleteEdge(ctx, followerAddress, leadAddress)
}

// UnfollowAll removes every edge where the address follows someone.
// Called when a bot is stopped or its wallet removed.
func (p *Propagator) UnfollowAll(ctx context.Context, followerAddress string) error {
	return p.store.DeleteEdgesByFollower(ctx, followerAddress)
}

// OnLeadTrade replays a lead trade to every copy-enabled follower
// concurrently. One follower's failure never blocks another's; the full
// result set is always returned.
func (p *Propagator) OnLeadTrade(ctx context.Context, ev trading.LeadTradeEvent) []FollowerResult {
	edges, err := p.store.ListFollowers(ctx, ev.LeadAddress)
	if err != nil {
		log.WithField("lead", ev.LeadAddress).Errorf("list followers: %v", err)
		return nil
	}

	var copying []models.FollowerEdge
	for _, e := range edges {
		if e.CopyTrades {
			copying = append(copying, e)
		}
	}
	if len(copying) == 0 {
		return nil
	}

	results := make([]FollowerResult, len(copying))
	var wg sync.WaitGroup
	for i, edge := range copying {
		wg.Add(1)
		go func(i int, edge models.FollowerEdge) {
			defer wg.Done()
			results[i] = p.copyToFollower(ctx, edge.FollowerAddress, ev)
		}(i, edge)
	}
	wg.Wait()
	return results
}

func (p *Propagator) copyToFollower(ctx context.Context, followerAddress string, ev trading.LeadTradeEvent) FollowerResult {
	res := FollowerResult{FollowerAddress: followerAddress}

	wallet, err := p.store.GetWalletByAddress(ctx, followerAddress)
	if err != nil {
		res.Err = fmt.Errorf("follower wallet: %w", err)
		return res
	}

	req := trading.Request{
		UserID:       wallet.UserID,
		Owner:        followerAddress,
		TokenAddress: ev.TokenAddress,
		Side:         ev.Side,
		Amount:       ev.InAmount,
		SlippageBps:  ev.SlippageBps,
		Exchange:     ev.Exchange,
	}
	if ev.Side == trading.SideSell {
		held, err := p.balances.TokenBalance(ctx, followerAddress, ev.TokenAddress)
		if err != nil {
			res.Err = err
			return res
		}
		if held == 0 {
			// nothing to close for this follower
			return res
		}
		req.Amount = held
		// risk-driven sells must not be blocked by the reserve check
		req.UrgentSell = ev.CloseReason != ""
	}

	result, err := p.swapper.Execute(ctx, req)
	if err != nil {
		res.Err = err
		return res
	}
	res.Signature = result.Signature

	if err := p.record(ctx, followerAddress, ev, result); err != nil {
		log.WithField("follower", followerAddress).Errorf("record copy trade: %v", err)
	}
	return res
}

// record persists the follower side of the copy: buys open a position,
// sells close the follower's active position with the cascaded reason.
func (p *Propagator) record(ctx context.Context, followerAddress string, ev trading.LeadTradeEvent, result *trading.Result) error {
	if ev.Side == trading.SideBuy {
		return p.store.CreateTrade(ctx, &models.Trade{
			BotAddress:   followerAddress,
			TokenAddress: ev.TokenAddress,
			Side:         string(trading.SideBuy),
			InAmount:     result.InAmount,
			OutAmount:    result.OutAmount,
			Price:        result.Price,
			PriceImpact:  result.PriceImpact,
			SlippageBps:  ev.SlippageBps,
			ExchangeKind: string(ev.Exchange),
			Signature:    result.Signature,
			Status:       models.TradeActive,
		})
	}

	open, err := p.store.GetActiveTrade(ctx, followerAddress, ev.TokenAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	reason := ev.CloseReason
	if reason == "" {
		reason = models.CloseManual
	}
	return p.store.CloseTrade(ctx, open.ID, models.CloseCopyPrefix+reason, result.Price)
}
