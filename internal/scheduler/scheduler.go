package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

// tickTimeout bounds one scheduled trade end to end.
const tickTimeout = 60 * time.Second

// Swapper executes swaps. The executor satisfies it.
type Swapper interface {
	Execute(ctx context.Context, req trading.Request) (*trading.Result, error)
}

// Balances is the oracle surface the scheduler checks before trading.
type Balances interface {
	NativeBalance(ctx context.Context, address string) (uint64, error)
	TokenBalance(ctx context.Context, address, mint string) (uint64, error)
	Invalidate(address string)
}

// Fees supplies the current service fee for the pre-start balance check.
type Fees interface {
	ServiceFee(ctx context.Context) (uint64, error)
}

// Notifier publishes queue messages. The amqp publisher satisfies it; a
// nil Notifier disables publishing.
type Notifier interface {
	Publish(queue string, message interface{}) error
}

// StartParams describes a new auto-trade session.
type StartParams struct {
	UserID          string
	TokenAddress    string
	AmountPerTrade  uint64 // lamports spent per buy
	IntervalMinutes int
	Exchange        trading.ExchangeKind
	SlippageBps     int
}

type session struct {
	model  models.TradeSession
	owner  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs one trading loop per active session. Sessions survive
// restarts through the session table; Recover respawns their loops.
type Scheduler struct {
	store    storage.DataStore
	balances Balances
	swapper  Swapper
	fees     Fees
	notifier Notifier

	baseCtx context.Context

	mu       sync.Mutex
	sessions map[string]*session // by user ID

	// interval override for tests; zero means the session's own interval
	intervalOverride time.Duration
}

func New(ctx context.Context, store storage.DataStore, balances Balances, swapper Swapper, fees Fees, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:    store,
		balances: balances,
		swapper:  swapper,
		fees:     fees,
		notifier: notifier,
		baseCtx:  ctx,
		sessions: make(map[string]*session),
	}
}

// Start validates params, checks the wallet can fund at least one trade
// and spawns the session loop. A user has at most one active session.
func (s *Scheduler) Start(ctx context.Context, p StartParams) error {
	if p.AmountPerTrade == 0 || p.IntervalMinutes <= 0 {
		return fmt.Errorf("amount and interval must be positive")
	}
	if p.Exchange == "" {
		p.Exchange = trading.ExchangePool
	}
	if p.SlippageBps == 0 {
		p.SlippageBps = 50
	}

	wallet, err := s.store.GetWallet(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return trading.ErrNotFound
		}
		return err
	}

	if _, err := s.store.GetActiveSession(ctx, p.UserID); err == nil {
		return trading.ErrSessionAlreadyActive
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	// Reserve the registry slot before the balance check and insert, so
	// two concurrent starts for the same user cannot both pass.
	loopCtx, cancel := context.WithCancel(s.baseCtx)
	sess := &session{
		owner:  wallet.PublicAddress,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	if _, running := s.sessions[p.UserID]; running {
		s.mu.Unlock()
		cancel()
		return trading.ErrSessionAlreadyActive
	}
	s.sessions[p.UserID] = sess
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.sessions, p.UserID)
		s.mu.Unlock()
		cancel()
		close(sess.done)
	}

	required, err := s.requiredBalance(ctx, p.AmountPerTrade)
	if err != nil {
		release()
		return err
	}
	balance, err := s.balances.NativeBalance(ctx, wallet.PublicAddress)
	if err != nil {
		release()
		return err
	}
	if balance < required {
		release()
		return fmt.Errorf("%w: have %d lamports, need %d per trade", trading.ErrInsufficientBalance, balance, required)
	}

	model := models.TradeSession{
		UserID:          p.UserID,
		TokenAddress:    p.TokenAddress,
		AmountPerTrade:  p.AmountPerTrade,
		IntervalMinutes: p.IntervalMinutes,
		ExchangeKind:    string(p.Exchange),
		SlippageBps:     p.SlippageBps,
		Status:          models.SessionActive,
		StartedAt:       time.Now(),
	}
	if err := s.store.CreateSession(ctx, &model); err != nil {
		release()
		return err
	}
	sess.model = model
	go s.loop(loopCtx, sess)

	log.WithFields(log.Fields{
		"user":     p.UserID,
		"token":    p.TokenAddress,
		"interval": p.IntervalMinutes,
	}).Info("auto-trade session started")
	return nil
}

// Stop halts the user's session. Idempotent; when it returns, no further
// tick will run for that session.
func (s *Scheduler) Stop(ctx context.Context, userID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	if ok {
		sess.cancel()
		<-sess.done
	}

	active, err := s.store.GetActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.markStopped(ctx, active); err != nil {
		return err
	}

	// A stopped lead no longer emits trades; drop its follower edges so
	// followers are not left subscribed to a dead address.
	if wallet, err := s.store.GetWallet(ctx, userID); err == nil {
		if err := s.store.DeleteEdgesByLead(ctx, wallet.PublicAddress); err != nil {
			log.WithField("user", userID).Errorf("drop lead edges: %v", err)
		}
	}
	return nil
}

// Recover respawns loops for sessions left active in the store, without
// trading immediately; the first trade happens on the next tick.
func (s *Scheduler) Recover(ctx context.Context) error {
	active, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return err
	}
	for _, model := range active {
		wallet, err := s.store.GetWallet(ctx, model.UserID)
		if err != nil {
			log.WithField("user", model.UserID).Errorf("recover: wallet lookup failed: %v", err)
			continue
		}
		s.spawn(model, wallet.PublicAddress)
	}
	if len(active) > 0 {
		log.Infof("recovered %d auto-trade sessions", len(active))
	}
	return nil
}

// Shutdown stops every loop without marking sessions stopped, so Recover
// picks them up after a restart.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	running := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		running = append(running, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range running {
		sess.cancel()
		<-sess.done
	}
}

func (s *Scheduler) spawn(model models.TradeSession, owner string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	sess := &session{
		model:  model,
		owner:  owner,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[model.UserID] = sess
	s.mu.Unlock()
	go s.loop(ctx, sess)
}

func (s *Scheduler) loop(ctx context.Context, sess *session) {
	defer close(sess.done)

	interval := time.Duration(sess.model.IntervalMinutes) * time.Minute
	if s.intervalOverride > 0 {
		interval = s.intervalOverride
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stop := s.tick(ctx, sess)
			if stop {
				s.mu.Lock()
				delete(s.sessions, sess.model.UserID)
				s.mu.Unlock()
				return
			}
		}
	}
}

// tick runs one scheduled trade. It returns true when the session must
// stop (low balance liquidation). Errors are logged and notified, never
// fatal to the loop.
func (s *Scheduler) tick(ctx context.Context, sess *session) (stop bool) {
	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"user":  sess.model.UserID,
		"token": sess.model.TokenAddress,
	})

	required, err := s.requiredBalance(tickCtx, sess.model.AmountPerTrade)
	if err != nil {
		logger.Errorf("tick: fee lookup failed: %v", err)
		return false
	}
	balance, err := s.balances.NativeBalance(tickCtx, sess.owner)
	if err != nil {
		logger.Errorf("tick: balance check failed: %v", err)
		s.notify(sess.model.UserID, "balance_check_failed", err.Error())
		return false
	}

	if balance < required {
		logger.Warnf("balance %d below required %d, liquidating", balance, required)
		s.liquidate(tickCtx, sess)
		if err := s.autoStop(tickCtx, sess.model.UserID); err != nil {
			logger.Errorf("auto-stop failed: %v", err)
		}
		s.notify(sess.model.UserID, "session_stopped",
			fmt.Sprintf("auto-trade stopped: balance %d lamports below required %d", balance, required))
		return true
	}

	result, err := s.swapper.Execute(tickCtx, trading.Request{
		UserID:       sess.model.UserID,
		Owner:        sess.owner,
		TokenAddress: sess.model.TokenAddress,
		Side:         trading.SideBuy,
		Amount:       sess.model.AmountPerTrade,
		SlippageBps:  sess.model.SlippageBps,
		Exchange:     trading.ExchangeKind(sess.model.ExchangeKind),
	})
	if err != nil {
		logger.Errorf("scheduled buy failed: %v", err)
		s.notify(sess.model.UserID, "trade_failed", err.Error())
		return false
	}

	trade := models.Trade{
		BotAddress:   sess.owner,
		TokenAddress: sess.model.TokenAddress,
		Side:         string(trading.SideBuy),
		InAmount:     result.InAmount,
		OutAmount:    result.OutAmount,
		Price:        result.Price,
		PriceImpact:  result.PriceImpact,
		SlippageBps:  sess.model.SlippageBps,
		ExchangeKind: sess.model.ExchangeKind,
		Signature:    result.Signature,
		Status:       models.TradeActive,
	}
	if err := s.store.CreateTrade(tickCtx, &trade); err != nil {
		logger.Errorf("record trade: %v", err)
	}

	sess.model.LastSignature = result.Signature
	if err := s.store.UpdateSession(tickCtx, &sess.model); err != nil {
		logger.Errorf("update session: %v", err)
	}

	s.publish(trading.QueueLeadTrades, trading.LeadTradeEvent{
		LeadAddress:  sess.owner,
		TokenAddress: sess.model.TokenAddress,
		Side:         trading.SideBuy,
		InAmount:     result.InAmount,
		Exchange:     trading.ExchangeKind(sess.model.ExchangeKind),
		SlippageBps:  sess.model.SlippageBps,
		Signature:    result.Signature,
	})

	logger.WithField("signature", result.Signature).Info("scheduled buy confirmed")
	return false
}

// liquidate sells every active position of the session's wallet. Sells
// run urgent so the reserve check cannot block them.
func (s *Scheduler) liquidate(ctx context.Context, sess *session) {
	trades, err := s.store.ListActiveTrades(ctx)
	if err != nil {
		log.Errorf("liquidate: list trades: %v", err)
		return
	}
	for _, tr := range trades {
		if tr.BotAddress != sess.owner {
			continue
		}
		held, err := s.balances.TokenBalance(ctx, sess.owner, tr.TokenAddress)
		if err != nil || held == 0 {
			continue
		}
		result, err := s.swapper.Execute(ctx, trading.Request{
			UserID:       sess.model.UserID,
			Owner:        sess.owner,
			TokenAddress: tr.TokenAddress,
			Side:         trading.SideSell,
			Amount:       held,
			SlippageBps:  sess.model.SlippageBps,
			Exchange:     trading.ExchangeKind(sess.model.ExchangeKind),
			UrgentSell:   true,
		})
		if err != nil {
			log.WithField("token", tr.TokenAddress).Errorf("liquidation sell failed: %v", err)
			continue
		}
		if err := s.store.CloseTrade(ctx, tr.ID, models.CloseLiquidation, result.Price); err != nil {
			log.Errorf("close trade %d: %v", tr.ID, err)
		}
		s.publish(trading.QueueLeadTrades, trading.LeadTradeEvent{
			LeadAddress:  sess.owner,
			TokenAddress: tr.TokenAddress,
			Side:         trading.SideSell,
			InAmount:     held,
			Exchange:     trading.ExchangeKind(sess.model.ExchangeKind),
			SlippageBps:  sess.model.SlippageBps,
			Signature:    result.Signature,
			CloseReason:  models.CloseLiquidation,
		})
	}
}

func (s *Scheduler) autoStop(ctx context.Context, userID string) error {
	active, err := s.store.GetActiveSession(ctx, userID)
	if err != nil {
		return err
	}
	return s.markStopped(ctx, active)
}

func (s *Scheduler) markStopped(ctx context.Context, sess *models.TradeSession) error {
	now := time.Now()
	sess.Status = models.SessionStopped
	sess.StoppedAt = &now
	return s.store.UpdateSession(ctx, sess)
}

func (s *Scheduler) requiredBalance(ctx context.Context, amount uint64) (uint64, error) {
	fee, err := s.fees.ServiceFee(ctx)
	if err != nil {
		return 0, err
	}
	return amount + fee + trading.NetworkFeeAllowance + trading.MinSOLReserve, nil
}

func (s *Scheduler) notify(userID, kind, message string) {
	s.publish(trading.QueueNotifications, trading.Notification{
		UserID:  userID,
		Kind:    kind,
		Message: message,
	})
}

func (s *Scheduler) publish(queue string, message interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(queue, message); err != nil {
		log.Errorf("publish to %s: %v", queue, err)
	}
}
