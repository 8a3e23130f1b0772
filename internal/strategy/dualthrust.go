package strategy

import (
	"time"

	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
)

func init() {
	Register("DualThrust", func(cfg Config, stops *StopBook) Strategy {
		return &DualThrust{cfg: cfg}
	})
}

// DualThrust is a session breakout strategy. The band is the current day's
// open offset by k times the largest range observed over a trailing window
// of prior daily bars. A break above/below the band inside the configured
// time-of-day window enters; any open position is force-exited at the
// configured end-of-day time regardless of price.
type DualThrust struct {
	cfg Config
}

func (s *DualThrust) Name() string { return "DualThrust" }

func (s *DualThrust) RequiredIndicators() []indicator.Spec { return nil }

// One session of minute bars per window day, plus today.
func (s *DualThrust) Lookback() int { return (s.cfg.Window + 1) * 390 }

type dailyBar struct {
	date  time.Time
	open  float64
	high  float64
	low   float64
	close float64
}

// resampleDaily folds intraday bars into one bar per calendar date,
// preserving chronological order. Dates follow each bar's own location.
func resampleDaily(bars model.Bars) []dailyBar {
	var out []dailyBar
	for _, b := range bars {
		y, m, d := b.TS.Date()
		date := time.Date(y, m, d, 0, 0, 0, 0, b.TS.Location())
		if len(out) == 0 || !out[len(out)-1].date.Equal(date) {
			out = append(out, dailyBar{date: date, open: b.Open, high: b.High, low: b.Low, close: b.Close})
			continue
		}
		day := &out[len(out)-1]
		if b.High > day.high {
			day.high = b.High
		}
		if b.Low < day.low {
			day.low = b.Low
		}
		day.close = b.Close
	}
	return out
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func (s *DualThrust) DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal {
	bars := frame.Bars
	n := len(bars)
	if n < 2 {
		return nil
	}
	curr := bars[n-1]
	prevClose := bars[n-2].Close
	price := curr.Close

	daily := resampleDaily(bars)
	if len(daily) <= s.cfg.Window {
		return nil // need a full window of prior days plus today
	}
	today := daily[len(daily)-1]
	hist := daily[len(daily)-1-s.cfg.Window : len(daily)-1]

	maxHigh, minClose := hist[0].high, hist[0].close
	maxClose, minLow := hist[0].close, hist[0].low
	for _, d := range hist[1:] {
		if d.high > maxHigh {
			maxHigh = d.high
		}
		if d.close < minClose {
			minClose = d.close
		}
		if d.close > maxClose {
			maxClose = d.close
		}
		if d.low < minLow {
			minLow = d.low
		}
	}
	rng := maxHigh - minClose
	if r2 := maxClose - minLow; r2 > rng {
		rng = r2
	}
	upper := today.open + s.cfg.K*rng
	lower := today.open - (1-s.cfg.K)*rng

	startMin, okStart := parseClock(s.cfg.StartTime)
	endMin, okEnd := parseClock(s.cfg.EndTime)
	if !okStart || !okEnd {
		return nil
	}
	nowMin := curr.TS.Hour()*60 + curr.TS.Minute()

	dir := pos.Direction()

	var side model.Side
	var reason string
	switch {
	case nowMin >= endMin && dir != 0:
		if dir > 0 {
			side = model.SideSell
		} else {
			side = model.SideBuy
		}
		reason = "End of day exit"
	case dir == 0 && nowMin >= startMin:
		if prevClose <= upper && upper < price {
			side, reason = model.SideBuy, "Breakout above upper"
		} else if prevClose >= lower && lower > price {
			side, reason = model.SideSell, "Breakout below lower"
		}
	case dir > 0 && prevClose >= lower && lower > price:
		side, reason = model.SideSell, "Reverse at lower"
	case dir < 0 && prevClose <= upper && upper < price:
		side, reason = model.SideBuy, "Reverse at upper"
	}
	if side == "" || hasPendingSide(pending, side) {
		return nil
	}
	return &model.Signal{
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Reason:   reason,
		Strategy: s.Name(),
	}
}
