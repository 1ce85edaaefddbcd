package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"daemon/internal/trading"
)

// PriceSource reports the current price of a token in SOL. Prices come
// from small probe quotes against an adapter, cached briefly; a push
// stream may also feed the cache directly through SetPrice.
type PriceSource struct {
	adapter Adapter
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]priceEntry
}

type priceEntry struct {
	price     float64
	updatedAt time.Time
}

// priceProbeAmount is the token input used for probe quotes, 1e6 raw
// units of a 6-decimal token.
const priceProbeAmount = 1_000_000

func NewPriceSource(adapter Adapter, ttl time.Duration) *PriceSource {
	if ttl == 0 {
		ttl = 10 * time.Second
	}
	return &PriceSource{
		adapter: adapter,
		ttl:     ttl,
		cache:   make(map[string]priceEntry),
	}
}

// Price returns the token's price in SOL per whole token.
func (s *PriceSource) Price(ctx context.Context, mint string) (float64, error) {
	if mint == trading.SolMint {
		return 1, nil
	}

	s.mu.RLock()
	entry, ok := s.cache[mint]
	s.mu.RUnlock()
	if ok && time.Since(entry.updatedAt) < s.ttl {
		return entry.price, nil
	}

	q, err := s.adapter.Quote(ctx, mint, trading.SolMint, priceProbeAmount, 50)
	if err != nil {
		// A stale price beats no price for monitoring purposes.
		if ok {
			return entry.price, nil
		}
		return 0, fmt.Errorf("price probe for %s: %w", mint, err)
	}

	// probe input is 1 whole token (6 decimals), output is lamports
	price := float64(q.OutAmount) / trading.LamportsPerSOL
	s.SetPrice(mint, price)
	return price, nil
}

// SetPrice overwrites the cached price for mint. The tick stream calls
// this on every price event.
func (s *PriceSource) SetPrice(mint string, price float64) {
	s.mu.Lock()
	s.cache[mint] = priceEntry{price: price, updatedAt: time.Now()}
	s.mu.Unlock()
}
