package market

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
)

// reconnectDelay is the fixed backoff between stream reconnect attempts.
const reconnectDelay = 3 * time.Second

// Stream keeps the latest futures prices in memory, fed by the Binance
// !miniTicker@arr websocket. Safe for concurrent readers.
type Stream struct {
	mu     sync.RWMutex
	prices map[string]float64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewStream() *Stream {
	return &Stream{prices: make(map[string]float64)}
}

// Price returns the latest price for symbol and whether one is known.
func (s *Stream) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	return p, ok
}

// Snapshot returns a copy of the full symbol→price map.
func (s *Stream) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices))
	for sym, p := range s.prices {
		out[sym] = p
	}
	return out
}

func (s *Stream) update(events futures.WsAllMiniMarketTickerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if ev.Symbol == "" {
			continue
		}
		if price, err := strconv.ParseFloat(ev.ClosePrice, 64); err == nil {
			s.prices[ev.Symbol] = price
		}
	}
}

// Start launches the stream loop. It reconnects with a fixed delay until
// ctx is cancelled.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log.Info().Msg("price_stream_started")

		for {
			if ctx.Err() != nil {
				log.Info().Msg("price_stream_stopped")
				return
			}

			doneC, stopC, err := futures.WsAllMiniMarketTickerServe(s.update, func(err error) {
				log.Warn().Err(err).Msg("price_stream_error")
			})
			if err != nil {
				log.Warn().Err(err).Msg("price_stream_disconnected")
				select {
				case <-ctx.Done():
				case <-time.After(reconnectDelay):
				}
				continue
			}
			log.Info().Msg("price_stream_connected")

			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
			case <-doneC:
				log.Warn().Msg("price_stream_disconnected")
				select {
				case <-ctx.Done():
				case <-time.After(reconnectDelay):
				}
			}
		}
	}()
}

// Stop cancels the stream loop and waits for it to drain.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
