package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemon/internal/models"
	"daemon/internal/storage"
	"daemon/internal/trading"
)

const (
	testUser  = "user-1"
	testOwner = "Bot11111111111111111111111111111111111111111"
	testToken = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

type fakeBalances struct {
	mu     sync.Mutex
	native map[string]uint64
	token  map[string]uint64
}

func (b *fakeBalances) NativeBalance(_ context.Context, address string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.native[address], nil
}

func (b *fakeBalances) TokenBalance(_ context.Context, address, mint string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token[address+":"+mint], nil
}

func (b *fakeBalances) Invalidate(string) {}

func (b *fakeBalances) setNative(address string, v uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[address] = v
}

type fakeSwapper struct {
	mu       sync.Mutex
	requests []trading.Request
}

func (s *fakeSwapper) Execute(_ context.Context, req trading.Request) (*trading.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return &trading.Result{
		Signature: "sig",
		InAmount:  req.Amount,
		OutAmount: req.Amount * 2,
		Price:     0.5,
	}, nil
}

func (s *fakeSwapper) calls() []trading.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]trading.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

type fakeFees struct{ fee uint64 }

func (f *fakeFees) ServiceFee(context.Context) (uint64, error) { return f.fee, nil }

type fakeNotifier struct {
	mu     sync.Mutex
	queues []string
	events []interface{}
}

func (n *fakeNotifier) Publish(queue string, message interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queues = append(n.queues, queue)
	n.events = append(n.events, message)
	return nil
}

func (n *fakeNotifier) published(queue string) []interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []interface{}
	for i, q := range n.queues {
		if q == queue {
			out = append(out, n.events[i])
		}
	}
	return out
}

type fixture struct {
	sched    *Scheduler
	store    *storage.MemoryStore
	balances *fakeBalances
	swapper  *fakeSwapper
	notifier *fakeNotifier
	cancel   context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateWallet(context.Background(), &models.Wallet{
		UserID:        testUser,
		PublicAddress: testOwner,
	}))

	balances := &fakeBalances{
		native: map[string]uint64{testOwner: 10 * trading.LamportsPerSOL},
		token:  map[string]uint64{},
	}
	swapper := &fakeSwapper{}
	notifier := &fakeNotifier{}

	sched := New(ctx, store, balances, swapper, &fakeFees{fee: 1_500_000}, notifier)
	sched.intervalOverride = 10 * time.Millisecond
	t.Cleanup(sched.Shutdown)

	return &fixture{sched: sched, store: store, balances: balances, swapper: swapper, notifier: notifier, cancel: cancel}
}

func startParams() StartParams {
	return StartParams{
		UserID:          testUser,
		TokenAddress:    testToken,
		AmountPerTrade:  1_000_000_000,
		IntervalMinutes: 1,
		Exchange:        trading.ExchangePool,
		SlippageBps:     50,
	}
}

func TestStartTicksAndRecordsTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Start(ctx, startParams()))

	require.Eventually(t, func() bool {
		return len(f.swapper.calls()) >= 2
	}, 2*time.Second, 5*time.Millisecond, "ticker should keep trading")

	req := f.swapper.calls()[0]
	assert.Equal(t, trading.SideBuy, req.Side)
	assert.Equal(t, testOwner, req.Owner)
	assert.Equal(t, uint64(1_000_000_000), req.Amount)

	trades, err := f.store.ListActiveTrades(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, trades)
	assert.Equal(t, testOwner, trades[0].BotAddress)

	leads := f.notifier.published(trading.QueueLeadTrades)
	require.NotEmpty(t, leads)
	lead := leads[0].(trading.LeadTradeEvent)
	assert.Equal(t, testOwner, lead.LeadAddress)
	assert.Equal(t, trading.SideBuy, lead.Side)
}

func TestStartDuplicateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Start(ctx, startParams()))
	err := f.sched.Start(ctx, startParams())
	assert.ErrorIs(t, err, trading.ErrSessionAlreadyActive)
}

func TestStartConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.sched.Start(ctx, startParams())
		}()
	}
	wg.Wait()
	close(errs)

	var started int
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.ErrorIs(t, err, trading.ErrSessionAlreadyActive)
	}
	assert.Equal(t, 1, started, "exactly one concurrent start wins")

	active, err := f.store.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1, "only one session row created")
}

func TestStartUnknownWallet(t *testing.T) {
	f := newFixture(t)
	p := startParams()
	p.UserID = "nobody"
	err := f.sched.Start(context.Background(), p)
	assert.ErrorIs(t, err, trading.ErrNotFound)
}

func TestStartBalanceBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := startParams()

	required := p.AmountPerTrade + 1_500_000 + trading.NetworkFeeAllowance + trading.MinSOLReserve

	f.balances.setNative(testOwner, required-1)
	err := f.sched.Start(ctx, p)
	assert.ErrorIs(t, err, trading.ErrInsufficientBalance)
	_, err = f.store.GetActiveSession(ctx, testUser)
	assert.ErrorIs(t, err, storage.ErrNotFound, "no session row on failed start")

	f.balances.setNative(testOwner, required)
	assert.NoError(t, f.sched.Start(ctx, p), "exact required balance starts")
}

func TestStopIsIdempotentAndFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Start(ctx, startParams()))
	require.Eventually(t, func() bool {
		return len(f.swapper.calls()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.sched.Stop(ctx, testUser))
	n := len(f.swapper.calls())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(f.swapper.calls()), "no tick after Stop returns")

	_, err := f.store.GetActiveSession(ctx, testUser)
	assert.ErrorIs(t, err, storage.ErrNotFound, "session marked stopped")

	assert.NoError(t, f.sched.Stop(ctx, testUser), "second stop is a no-op")
	assert.NoError(t, f.sched.Stop(ctx, "never-started"))
}

func TestStopDropsLeadEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertEdge(ctx, &models.FollowerEdge{
		LeadAddress:     testOwner,
		FollowerAddress: "Follower111111111111111111111111111111111111",
		CopyTrades:      true,
	}))

	require.NoError(t, f.sched.Start(ctx, startParams()))
	require.NoError(t, f.sched.Stop(ctx, testUser))

	edges, err := f.store.ListFollowers(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, edges, "stopping a lead unsubscribes its followers")
}

func TestLowBalanceLiquidatesAndStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Start(ctx, startParams()))

	// an open position the liquidation must close
	require.NoError(t, f.store.CreateTrade(ctx, &models.Trade{
		BotAddress:   testOwner,
		TokenAddress: testToken,
		Side:         string(trading.SideBuy),
		InAmount:     1_000_000_000,
		OutAmount:    2_000_000_000,
		Price:        0.5,
		Status:       models.TradeActive,
	}))
	f.balances.mu.Lock()
	f.balances.token[testOwner+":"+testToken] = 2_000_000_000
	f.balances.mu.Unlock()

	f.balances.setNative(testOwner, trading.MinSOLReserve/2)

	require.Eventually(t, func() bool {
		for _, req := range f.swapper.calls() {
			if req.Side == trading.SideSell && req.UrgentSell {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "liquidation sell should run")

	require.Eventually(t, func() bool {
		_, err := f.store.GetActiveSession(ctx, testUser)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond, "session should auto-stop")

	trades, err := f.store.ListActiveTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades, "position closed by liquidation")

	byBot, err := f.store.ListTradesByBot(ctx, testOwner, 10)
	require.NoError(t, err)
	var closed *models.Trade
	for i := range byBot {
		if byBot[i].Status == models.TradeClosed {
			closed = &byBot[i]
		}
	}
	require.NotNil(t, closed)
	assert.Equal(t, models.CloseLiquidation, closed.CloseReason)
}

func TestRecoverRespawnsActiveSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.CreateSession(ctx, &models.TradeSession{
		UserID:          testUser,
		TokenAddress:    testToken,
		AmountPerTrade:  500_000_000,
		IntervalMinutes: 1,
		ExchangeKind:    string(trading.ExchangePool),
		SlippageBps:     50,
		Status:          models.SessionActive,
	}))

	require.NoError(t, f.sched.Recover(ctx))

	require.Eventually(t, func() bool {
		return len(f.swapper.calls()) >= 1
	}, 2*time.Second, 5*time.Millisecond, "recovered session should resume trading")
	assert.Equal(t, uint64(500_000_000), f.swapper.calls()[0].Amount)

	err := f.sched.Start(ctx, startParams())
	assert.ErrorIs(t, err, trading.ErrSessionAlreadyActive, "recovered session occupies the slot")
}
