// Package wsfeed provides a market data provider backed by a plain-JSON
// WebSocket quote stream (e.g. cmd/quotesim). Quotes arrive pushed over
// the wire; historical bars and scanner data are delegated to a fallback
// provider since a raw quote stream carries neither.
//
// The expected JSON message format on the wire is identical to model.Quote:
//
//	{"symbol":"AAPL","price":185.05,"bid":185.04,"ask":185.06,"ts":"..."}
package wsfeed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Spectavi/spectr/internal/model"
)

// Config holds configuration for the WebSocket quote feed.
type Config struct {
	// URL of the quote WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// StaleAfter bounds quote age served from the cache. FetchQuote falls
	// back to the delegate provider for older quotes. Defaults to 30s.
	StaleAfter time.Duration

	// BarInterval is the bucket size for bars assembled from the stream.
	// Defaults to one minute.
	BarInterval time.Duration
}

// maxLocalBars bounds per-symbol memory for stream-assembled bars.
const maxLocalBars = 1000

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 30 * time.Second
	}
	if c.BarInterval == 0 {
		c.BarInterval = time.Minute
	}
}

// series accumulates one symbol's streamed quotes into fixed-interval bars.
type series struct {
	bars    model.Bars
	cur     *model.Bar
	lastVol float64 // quotesim reports cumulative session volume
}

// Feed is a model.DataProvider that serves quotes from a live WebSocket
// stream and everything else from a delegate provider.
type Feed struct {
	cfg      Config
	delegate model.DataProvider

	// Optional hook, called each time a reconnection happens.
	OnReconnect func()

	mu     sync.RWMutex
	quotes map[string]model.Quote
	bars   map[string]*series
}

// New creates a Feed. delegate must not be nil; it serves bars, movers,
// news, and any quote the stream has not delivered yet.
func New(cfg Config, delegate model.DataProvider) (*Feed, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Feed{
		cfg:      cfg,
		delegate: delegate,
		quotes:   make(map[string]model.Quote),
		bars:     make(map[string]*series),
	}, nil
}

// Start connects to the quote WebSocket and keeps the quote cache fresh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (f *Feed) Start(ctx context.Context) error {
	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s...", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (f *Feed) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", f.cfg.URL)

	// Async context watcher, closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var q model.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Printf("[wsfeed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if q.Symbol == "" {
			log.Printf("[wsfeed] skipping quote with empty symbol")
			continue
		}
		if q.TS.IsZero() {
			q.TS = time.Now().UTC()
		}
		f.apply(q)
	}
}

func (f *Feed) apply(q model.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[q.Symbol] = q

	s := f.bars[q.Symbol]
	if s == nil {
		s = &series{}
		f.bars[q.Symbol] = s
	}
	bucket := q.TS.UTC().Truncate(f.cfg.BarInterval)
	if s.cur == nil || !s.cur.TS.Equal(bucket) {
		if s.cur != nil {
			s.bars = s.bars.Inject(*s.cur)
			if len(s.bars) > maxLocalBars {
				s.bars = s.bars[len(s.bars)-maxLocalBars:]
			}
		}
		s.cur = &model.Bar{TS: bucket, Open: q.Price, High: q.Price, Low: q.Price, Close: q.Price}
	} else {
		if q.Price > s.cur.High {
			s.cur.High = q.Price
		}
		if q.Price < s.cur.Low {
			s.cur.Low = q.Price
		}
		s.cur.Close = q.Price
	}
	if s.lastVol > 0 && q.Volume >= s.lastVol {
		s.cur.Volume += q.Volume - s.lastVol
	}
	s.lastVol = q.Volume
}

// FetchQuote returns the latest streamed quote for symbol when fresh,
// otherwise falls back to the delegate.
func (f *Feed) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	f.mu.RLock()
	q, ok := f.quotes[symbol]
	f.mu.RUnlock()

	if ok && time.Since(q.TS) <= f.cfg.StaleAfter {
		return q, nil
	}
	return f.delegate.FetchQuote(ctx, symbol)
}

// FetchBars returns delegate bars overlaid with bars assembled from the
// quote stream, so the most recent buckets reflect live trading. Intervals
// other than the assembly interval are served by the delegate alone.
func (f *Feed) FetchBars(ctx context.Context, symbol string, from, to time.Time, interval time.Duration) (model.Bars, error) {
	bars, err := f.delegate.FetchBars(ctx, symbol, from, to, interval)
	if err != nil {
		return nil, err
	}
	if interval != f.cfg.BarInterval {
		return bars, nil
	}

	f.mu.RLock()
	s := f.bars[symbol]
	var local model.Bars
	if s != nil {
		local = make(model.Bars, 0, len(s.bars)+1)
		local = append(local, s.bars...)
		if s.cur != nil {
			local = append(local, *s.cur)
		}
	}
	f.mu.RUnlock()

	for _, b := range local {
		if b.TS.Before(from) || b.TS.After(to) {
			continue
		}
		bars = bars.Inject(b)
	}
	return bars, nil
}

// FetchTopMovers delegates to the fallback provider.
func (f *Feed) FetchTopMovers(ctx context.Context, limit int) ([]model.Candidate, error) {
	return f.delegate.FetchTopMovers(ctx, limit)
}

// HasRecentPositiveNews delegates to the fallback provider.
func (f *Feed) HasRecentPositiveNews(ctx context.Context, symbol string, window time.Duration) bool {
	return f.delegate.HasRecentPositiveNews(ctx, symbol, window)
}
