package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"daemon/internal/models"
)

// MemoryStore is an in-memory DataStore used by unit tests. It mirrors the
// postgres semantics closely enough for the engine: unique constraints,
// upserts and the active/closed filters behave the same way.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint
	wallets  map[string]models.Wallet
	sessions map[uint]models.TradeSession
	trades   map[uint]models.Trade
	edges    map[string]models.FollowerEdge // lead|follower
	settings map[string]models.AdminSetting
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		wallets:  make(map[string]models.Wallet),
		sessions: make(map[uint]models.TradeSession),
		trades:   make(map[uint]models.Trade),
		edges:    make(map[string]models.FollowerEdge),
		settings: make(map[string]models.AdminSetting),
	}
}

func (s *MemoryStore) id() uint {
	id := s.nextID
	s.nextID++
	return id
}

func edgeKey(lead, follower string) string { return lead + "|" + follower }

func (s *MemoryStore) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (s *MemoryStore) GetWalletByAddress(_ context.Context, address string) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.wallets {
		if w.PublicAddress == address {
			out := w
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateWallet(_ context.Context, w *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = s.id()
	w.CreatedAt = time.Now()
	s.wallets[w.UserID] = *w
	return nil
}

func (s *MemoryStore) DeleteWallet(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, userID)
	return nil
}

func (s *MemoryStore) GetActiveSession(_ context.Context, userID string) (*models.TradeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Status == models.SessionActive {
			out := sess
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActiveSessions(_ context.Context) ([]models.TradeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TradeSession
	for _, sess := range s.sessions {
		if sess.Status == models.SessionActive {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *models.TradeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ID = s.id()
	sess.StartedAt = time.Now()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, sess *models.TradeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) CreateTrade(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.CreatedAt = time.Now()
	if t.Status == "" {
		t.Status = models.TradeActive
	}
	s.trades[t.ID] = *t
	return nil
}

func (s *MemoryStore) ListActiveTrades(_ context.Context) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Trade
	for _, t := range s.trades {
		if t.Status == models.TradeActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetActiveTrade(_ context.Context, botAddress, tokenAddress string) (*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trades {
		if t.BotAddress == botAddress && t.TokenAddress == tokenAddress && t.Status == models.TradeActive {
			out := t
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CloseTrade(_ context.Context, id uint, reason string, closePrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok || t.Status != models.TradeActive {
		return nil
	}
	now := time.Now()
	t.Status = models.TradeClosed
	t.CloseReason = reason
	t.ClosePrice = closePrice
	t.ClosedAt = &now
	s.trades[id] = t
	return nil
}

func (s *MemoryStore) ListTradesByBot(_ context.Context, botAddress string, limit int) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Trade
	for _, t := range s.trades {
		if t.BotAddress == botAddress {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpsertEdge(_ context.Context, e *models.FollowerEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(e.LeadAddress, e.FollowerAddress)
	if existing, ok := s.edges[key]; ok {
		existing.CopyTrades = e.CopyTrades
		existing.StopLossPct = e.StopLossPct
		existing.TakeProfitPct = e.TakeProfitPct
		existing.UpdatedAt = time.Now()
		s.edges[key] = existing
		*e = existing
		return nil
	}
	e.ID = s.id()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	s.edges[key] = *e
	return nil
}

func (s *MemoryStore) ListFollowers(_ context.Context, leadAddress string) ([]models.FollowerEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FollowerEdge
	for _, e := range s.edges {
		if e.LeadAddress == leadAddress {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListEdgesByFollower(_ context.Context, followerAddress string) ([]models.FollowerEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FollowerEdge
	for _, e := range s.edges {
		if e.FollowerAddress == followerAddress {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteEdge(_ context.Context, followerAddress, leadAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, edgeKey(leadAddress, followerAddress))
	return nil
}

func (s *MemoryStore) DeleteEdgesByFollower(_ context.Context, followerAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.edges {
		if e.FollowerAddress == followerAddress {
			delete(s.edges, key)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteEdgesByLead(_ context.Context, leadAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.edges {
		if e.LeadAddress == leadAddress {
			delete(s.edges, key)
		}
	}
	return nil
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (*models.AdminSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.settings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &setting, nil
}

func (s *MemoryStore) PutSetting(_ context.Context, setting *models.AdminSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.settings[setting.Key]; ok {
		setting.ID = existing.ID
	} else {
		setting.ID = s.id()
	}
	setting.UpdatedAt = time.Now()
	s.settings[setting.Key] = *setting
	return nil
}
