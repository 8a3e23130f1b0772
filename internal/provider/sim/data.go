// Package sim provides in-process market data and broker implementations
// for offline development and tests. Prices follow a deterministic
// per-symbol random walk, the broker fills instantly and tracks positions
// in memory.
package sim

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Spectavi/spectr/internal/model"
)

// Data is a DataProvider serving synthetic bars. The walk for each symbol
// is seeded from the symbol name so runs are reproducible.
type Data struct {
	mu    sync.Mutex
	state map[string]*walk

	// Volatility is the per-bar stddev as a fraction of price. Default 0.002.
	Volatility float64

	// NewsSymbols marks symbols the news check reports positively for.
	NewsSymbols map[string]bool
}

type walk struct {
	rng   *rand.Rand
	last  float64
	bars  model.Bars
	until time.Time
}

// NewData returns a synthetic data provider.
func NewData() *Data {
	return &Data{
		state:       make(map[string]*walk),
		Volatility:  0.002,
		NewsSymbols: make(map[string]bool),
	}
}

func seedFor(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

// basePrice derives a stable starting price in the 10..510 range.
func basePrice(symbol string) float64 {
	return 10 + float64(seedFor(symbol)%500)
}

func (d *Data) walkFor(symbol string) *walk {
	w, ok := d.state[symbol]
	if !ok {
		w = &walk{
			rng:  rand.New(rand.NewSource(seedFor(symbol))),
			last: basePrice(symbol),
		}
		d.state[symbol] = w
	}
	return w
}

// extend advances the walk so bars exist through `to` at the given interval.
func (d *Data) extend(w *walk, to time.Time, interval time.Duration) {
	if w.until.IsZero() {
		w.until = to.Add(-400 * interval).Truncate(interval)
	}
	for ts := w.until; !ts.After(to); ts = ts.Add(interval) {
		open := w.last
		drift := w.rng.NormFloat64() * d.Volatility * open
		close := open + drift
		if close < 0.01 {
			close = 0.01
		}
		high := math.Max(open, close) * (1 + math.Abs(w.rng.NormFloat64())*d.Volatility/2)
		low := math.Min(open, close) * (1 - math.Abs(w.rng.NormFloat64())*d.Volatility/2)
		vol := 1000 + float64(w.rng.Intn(9000))
		w.bars = w.bars.Inject(model.Bar{
			TS: ts, Open: open, High: high, Low: low, Close: close, Volume: vol,
		})
		w.last = close
	}
	w.until = to.Add(interval).Truncate(interval)

	// Bound memory on long runs.
	const keep = 5000
	if len(w.bars) > keep {
		w.bars = w.bars.Tail(keep)
	}
}

func (d *Data) FetchBars(ctx context.Context, symbol string, from, to time.Time, interval time.Duration) (model.Bars, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Minute
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.walkFor(symbol)
	d.extend(w, to, interval)

	out := make(model.Bars, 0, len(w.bars))
	for _, b := range w.bars {
		if !b.TS.Before(from) && !b.TS.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (d *Data) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.walkFor(symbol)
	d.extend(w, time.Now(), time.Minute)
	last, _ := w.bars.Last()

	spread := last.Close * 0.0005
	var prevClose float64
	if len(w.bars) >= 2 {
		prevClose = w.bars[len(w.bars)-2].Close
	}
	return model.Quote{
		Symbol:    symbol,
		Price:     last.Close,
		Bid:       last.Close - spread,
		Ask:       last.Close + spread,
		PrevClose: prevClose,
		Volume:    last.Volume,
		AvgVolume: 5000,
		TS:        time.Now(),
	}, nil
}

// FetchTopMovers ranks the symbols already walked by absolute change on the
// latest bar. A fresh provider has no universe and returns nothing.
func (d *Data) FetchTopMovers(ctx context.Context, limit int) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.Candidate, 0, len(d.state))
	for symbol, w := range d.state {
		if len(w.bars) < 2 {
			continue
		}
		prev := w.bars[len(w.bars)-2].Close
		last := w.bars[len(w.bars)-1].Close
		var change float64
		if prev > 0 {
			change = (last - prev) / prev
		}
		out = append(out, model.Candidate{Symbol: symbol, Price: last, ChangePct: change})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *Data) HasRecentPositiveNews(ctx context.Context, symbol string, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.NewsSymbols[symbol]
}
