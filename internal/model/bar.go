package model

import (
	"sort"
	"time"
)

// Bar represents one OHLCV observation for a fixed time interval.
type Bar struct {
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bars is a bar series ordered by timestamp ascending with no duplicate
// timestamps.
type Bars []Bar

// Inject inserts b into the series, keeping timestamp order. A bar with a
// timestamp already present replaces the existing one (last write wins).
func (bs Bars) Inject(b Bar) Bars {
	n := len(bs)
	if n == 0 || bs[n-1].TS.Before(b.TS) {
		return append(bs, b)
	}
	i := sort.Search(n, func(i int) bool { return !bs[i].TS.Before(b.TS) })
	if i < n && bs[i].TS.Equal(b.TS) {
		bs[i] = b
		return bs
	}
	bs = append(bs, Bar{})
	copy(bs[i+1:], bs[i:])
	bs[i] = b
	return bs
}

// InjectQuote appends a synthetic bar built from a live quote so that signal
// detection always sees the latest traded price. Open, high, low and volume
// carry over from the last real bar. Returns bs unchanged when empty.
func (bs Bars) InjectQuote(q Quote) Bars {
	if len(bs) == 0 {
		return bs
	}
	last := bs[len(bs)-1]
	ts := q.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return bs.Inject(Bar{
		TS:     ts,
		Open:   last.Close,
		High:   last.High,
		Low:    last.Low,
		Close:  q.Price,
		Volume: last.Volume,
	})
}

// Last returns the final bar. ok is false for an empty series.
func (bs Bars) Last() (Bar, bool) {
	if len(bs) == 0 {
		return Bar{}, false
	}
	return bs[len(bs)-1], true
}

// Tail returns at most the last n bars (the whole series when shorter).
func (bs Bars) Tail(n int) Bars {
	if n <= 0 || len(bs) <= n {
		return bs
	}
	return bs[len(bs)-n:]
}

// Closes returns the close column as a fresh slice.
func (bs Bars) Closes() []float64 {
	out := make([]float64, len(bs))
	for i := range bs {
		out[i] = bs[i].Close
	}
	return out
}
