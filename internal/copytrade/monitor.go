package copytrade

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

// monitorSpec runs the scan every 15 seconds.
const monitorSpec = "*/15 * * * * *"

// Prices is the price surface the monitor compares positions against.
type Prices interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// Monitor periodically checks every active position against its bot's
// configured stop-loss / take-profit bounds, liquidates on breach and
// cascades the closure to the bot's own followers.
type Monitor struct {
	store      storage.DataStore
	prices     Prices
	swapper    Swapper
	balances   Balances
	propagator *Propagator
	cron       *cron.Cron
}

func NewMonitor(store storage.DataStore, prices Prices, swapper Swapper, balances Balances, propagator *Propagator) *Monitor {
	return &Monitor{
		store:      store,
		prices:     prices,
		swapper:    swapper,
		balances:   balances,
		propagator: propagator,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start schedules the periodic scan.
func (m *Monitor) Start(ctx context.Context) error {
	_, err := m.cron.AddFunc(monitorSpec, func() {
		if err := m.Scan(ctx); err != nil {
			log.Errorf("risk scan: %v", err)
		}
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts the cron schedule and waits for a running scan to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// Scan walks all active buy positions once. A bot's risk bounds are the
// ones configured on its follower edges; the tightest bound wins when a
// bot follows several leads.
func (m *Monitor) Scan(ctx context.Context) error {
	trades, err := m.store.ListActiveTrades(ctx)
	if err != nil {
		return err
	}
	for _, tr := range trades {
		if tr.Side != string(trading.SideBuy) || tr.Price <= 0 {
			continue
		}
		stopLoss, takeProfit, err := m.riskBounds(ctx, tr.BotAddress)
		if err != nil {
			log.WithField("bot", tr.BotAddress).Errorf("risk bounds: %v", err)
			continue
		}
		if stopLoss == nil && takeProfit == nil {
			continue
		}

		price, err := m.prices.Price(ctx, tr.TokenAddress)
		if err != nil {
			log.WithField("token", tr.TokenAddress).Warnf("price unavailable: %v", err)
			continue
		}
		pnl := (price - tr.Price) / tr.Price * 100

		var reason string
		switch {
		case stopLoss != nil && pnl <= -*stopLoss:
			reason = models.CloseStopLoss
		case takeProfit != nil && pnl >= *takeProfit:
			reason = models.CloseTakeProfit
		default:
			continue
		}

		if err := m.liquidate(ctx, tr, price, reason); err != nil {
			log.WithFields(log.Fields{
				"bot":   tr.BotAddress,
				"token": tr.TokenAddress,
			}).Errorf("%s liquidation failed: %v", reason, err)
		}
	}
	return nil
}

func (m *Monitor) riskBounds(ctx context.Context, botAddress string) (stopLoss, takeProfit *float64, err error) {
	edges, err := m.store.ListEdgesByFollower(ctx, botAddress)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range edges {
		if e.StopLossPct != nil && (stopLoss == nil || *e.StopLossPct < *stopLoss) {
			v := *e.StopLossPct
			stopLoss = &v
		}
		if e.TakeProfitPct != nil && (takeProfit == nil || *e.TakeProfitPct < *takeProfit) {
			v := *e.TakeProfitPct
			takeProfit = &v
		}
	}
	return stopLoss, takeProfit, nil
}

// liquidate sells the bot's full holding of the token, closes the
// position and cascades a sell event to the bot's followers.
func (m *Monitor) liquidate(ctx context.Context, tr models.Trade, price float64, reason string) error {
	wallet, err := m.store.GetWalletByAddress(ctx, tr.BotAddress)
	if err != nil {
		return err
	}
	held, err := m.balances.TokenBalance(ctx, tr.BotAddress, tr.TokenAddress)
	if err != nil {
		return err
	}
	if held == 0 {
		// position already gone on chain, just close the record
		return m.store.CloseTrade(ctx, tr.ID, reason, price)
	}

	exch := trading.ExchangeKind(tr.ExchangeKind)
	if exch == "" {
		exch = trading.ExchangePool
	}
	result, err := m.swapper.Execute(ctx, trading.Request{
		UserID:       wallet.UserID,
		Owner:        tr.BotAddress,
		TokenAddress: tr.TokenAddress,
		Side:         trading.SideSell,
		Amount:       held,
		SlippageBps:  tr.SlippageBps,
		Exchange:     exch,
		UrgentSell:   true,
	})
	if err != nil {
		return err
	}
	if err := m.store.CloseTrade(ctx, tr.ID, reason, price); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"bot":       tr.BotAddress,
		"token":     tr.TokenAddress,
		"reason":    reason,
		"signature": result.Signature,
	}).Info("position liquidated")

	for _, fr := range m.propagator.OnLeadTrade(ctx, trading.LeadTradeEvent{
		LeadAddress:  tr.BotAddress,
		TokenAddress: tr.TokenAddress,
		Side:         trading.SideSell,
		InAmount:     held,
		Exchange:     exch,
		SlippageBps:  tr.SlippageBps,
		Signature:    result.Signature,
		CloseReason:  reason,
	}) {
		if fr.Err != nil {
			log.WithField("follower", fr.FollowerAddress).Errorf("cascade close failed: %v", fr.Err)
		}
	}
	return nil
}
