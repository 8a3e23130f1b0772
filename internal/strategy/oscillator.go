package strategy

import (
	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
)

func init() {
	Register("MACDOscillator", func(cfg Config, stops *StopBook) Strategy {
		return &MACDOscillator{cfg: cfg, stops: stops}
	})
}

// MACDOscillator trades the difference of two simple moving averages of
// close: long when the oscillator crosses above zero, flat when it crosses
// back below. Stop levels take priority over the oscillator rules.
type MACDOscillator struct {
	cfg   Config
	stops *StopBook
}

func (s *MACDOscillator) Name() string { return "MACDOscillator" }

func (s *MACDOscillator) RequiredIndicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: indicator.SMA, Window: s.cfg.FastPeriod, Column: "ma_fast"},
		{Name: indicator.SMA, Window: s.cfg.SlowPeriod, Column: "ma_slow"},
	}
}

func (s *MACDOscillator) Lookback() int {
	return max(s.cfg.FastPeriod, s.cfg.SlowPeriod) + 5
}

func (s *MACDOscillator) DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal {
	n := frame.Len()
	if n < 2 {
		return nil
	}
	last, _ := frame.Bars.Last()
	price := last.Close

	if stop := s.stops.Check(symbol, price, pos, s.cfg); stop != nil {
		stop.Strategy = s.Name()
		return stop
	}

	closes := frame.Bars.Closes()
	fast := indicator.PartialSMA(closes, s.cfg.FastPeriod)
	slow := indicator.PartialSMA(closes, s.cfg.SlowPeriod)
	currOsc := fast[n-1] - slow[n-1]
	prevOsc := fast[n-2] - slow[n-2]

	var side model.Side
	var reason string
	if pos.IsFlat() {
		if currOsc > 0 && prevOsc <= 0 {
			side, reason = model.SideBuy, "Oscillator crossed above zero"
		}
	} else {
		if currOsc < 0 && prevOsc >= 0 {
			side, reason = model.SideSell, "Oscillator crossed below zero"
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
