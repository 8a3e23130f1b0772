package strategy

import (
	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
)

func init() {
	Register("AwesomeOscillator", func(cfg Config, stops *StopBook) Strategy {
		return &AwesomeOscillator{cfg: cfg, stops: stops}
	})
}

// AwesomeOscillator is a momentum strategy over the median price
// (high+low)/2. While flat, a bearish "saucer" — two consecutive up candles
// with the oscillator rising but still below zero — triggers entry; a
// moving-average crossover is a secondary entry trigger. The symmetric
// patterns trigger exit.
type AwesomeOscillator struct {
	cfg   Config
	stops *StopBook
}

func (s *AwesomeOscillator) Name() string { return "AwesomeOscillator" }

func (s *AwesomeOscillator) RequiredIndicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: indicator.SMA, Window: s.cfg.FastPeriod, Column: "ma_fast"},
		{Name: indicator.SMA, Window: s.cfg.SlowPeriod, Column: "ma_slow"},
	}
}

func (s *AwesomeOscillator) Lookback() int {
	return max(s.cfg.FastPeriod, s.cfg.SlowPeriod) + 5
}

func (s *AwesomeOscillator) DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal {
	n := frame.Len()
	if n < 3 {
		return nil
	}
	bars := frame.Bars
	curr, prev1, prev2 := bars[n-1], bars[n-2], bars[n-3]
	price := curr.Close

	if stop := s.stops.Check(symbol, price, pos, s.cfg); stop != nil {
		stop.Strategy = s.Name()
		return stop
	}

	mid := make([]float64, n)
	for i := range bars {
		mid[i] = (bars[i].High + bars[i].Low) / 2
	}
	fast := indicator.PartialSMA(mid, s.cfg.FastPeriod)
	slow := indicator.PartialSMA(mid, s.cfg.SlowPeriod)
	currOsc := fast[n-1] - slow[n-1]
	prev1Osc := fast[n-2] - slow[n-2]
	prev2Osc := fast[n-3] - slow[n-3]

	var side model.Side
	var reason string
	if pos.IsFlat() {
		switch {
		case curr.Open > curr.Close &&
			prev1.Open < prev1.Close && prev2.Open < prev2.Close &&
			prev1Osc > prev2Osc && prev1Osc < 0 && currOsc < 0:
			side, reason = model.SideBuy, "Bearish saucer"
		case fast[n-1] > slow[n-1] && fast[n-2] <= slow[n-2]:
			side, reason = model.SideBuy, "MA crossover"
		}
	} else {
		switch {
		case curr.Open < curr.Close &&
			prev1.Open > prev1.Close && prev2.Open > prev2.Close &&
			prev1Osc < prev2Osc && prev1Osc > 0 && currOsc > 0:
			side, reason = model.SideSell, "Bullish saucer"
		case fast[n-1] < slow[n-1] && fast[n-2] >= slow[n-2]:
			side, reason = model.SideSell, "MA crossunder"
		}
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
