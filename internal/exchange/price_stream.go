package exchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	streamMaxReconnectAttempts = 10
	streamReconnectDelay       = 5 * time.Second
)

// priceTick is one price event from the tick feed.
type priceTick struct {
	Mint     string  `json:"mint"`
	PriceSol float64 `json:"priceSol"`
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys"`
}

// PriceStream keeps a WebSocket subscription to the exchange tick feed
// and pushes every price event into a PriceSource. It reconnects on
// failure and resubscribes the full mint set after each reconnect.
type PriceStream struct {
	endpoint string
	source   *PriceSource

	mu     sync.Mutex
	mints  map[string]bool
	conn   *websocket.Conn
	stopCh chan struct{}
	once   sync.Once
}

func NewPriceStream(endpoint string, source *PriceSource) *PriceStream {
	return &PriceStream{
		endpoint: endpoint,
		source:   source,
		mints:    make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Subscribe adds a mint to the tick subscription. Safe to call before or
// after Run starts.
func (s *PriceStream) Subscribe(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mints[mint] {
		return
	}
	s.mints[mint] = true
	if s.conn != nil {
		if err := s.conn.WriteJSON(subscribeMessage{Method: "subscribeTokenTrade", Keys: []string{mint}}); err != nil {
			log.WithField("mint", mint).Warnf("subscribe write failed: %v", err)
		}
	}
}

// Unsubscribe removes a mint from the subscription.
func (s *PriceStream) Unsubscribe(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mints[mint] {
		return
	}
	delete(s.mints, mint)
	if s.conn != nil {
		if err := s.conn.WriteJSON(subscribeMessage{Method: "unsubscribeTokenTrade", Keys: []string{mint}}); err != nil {
			log.WithField("mint", mint).Warnf("unsubscribe write failed: %v", err)
		}
	}
}

// Run connects and consumes ticks until ctx is cancelled or Stop is
// called. Intended to run in its own goroutine.
func (s *PriceStream) Run(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connectAndConsume(ctx); err != nil {
			attempts++
			if attempts >= streamMaxReconnectAttempts {
				log.Errorf("price stream: giving up after %d reconnect attempts: %v", attempts, err)
				return
			}
			log.Warnf("price stream disconnected (attempt %d): %v", attempts, err)
			select {
			case <-time.After(streamReconnectDelay):
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
			continue
		}
		attempts = 0
	}
}

// Stop terminates Run. Idempotent.
func (s *PriceStream) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

func (s *PriceStream) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	keys := make([]string, 0, len(s.mints))
	for mint := range s.mints {
		keys = append(keys, mint)
	}
	s.mu.Unlock()

	if len(keys) > 0 {
		if err := conn.WriteJSON(subscribeMessage{Method: "subscribeTokenTrade", Keys: keys}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			return err
		}
		var tick priceTick
		if err := json.Unmarshal(msg, &tick); err != nil || tick.Mint == "" {
			continue
		}
		s.source.SetPrice(tick.Mint, tick.PriceSol)
	}
}
