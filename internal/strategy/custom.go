package strategy

import (
	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
)

func init() {
	Register("CustomStrategy", func(cfg Config, stops *StopBook) Strategy {
		return &CustomStrategy{cfg: cfg}
	})
}

// CustomStrategy is the default crossover-plus-breakout strategy: it enters
// long on a MACD bullish crossover or a close above the upper Bollinger
// band, and exits on a bearish crossover or a close below the band midline.
type CustomStrategy struct {
	cfg Config
}

func (s *CustomStrategy) Name() string { return "CustomStrategy" }

func (s *CustomStrategy) RequiredIndicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: indicator.MACD, WindowFast: s.cfg.MACDFast, WindowSlow: s.cfg.MACDSlow, WindowSig: s.cfg.MACDSignal},
		{Name: indicator.BollingerBands, Window: s.cfg.BBPeriod, WindowDev: s.cfg.BBDev},
		{Name: indicator.VWAP},
	}
}

func (s *CustomStrategy) Lookback() int { return 200 }

func (s *CustomStrategy) DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal {
	n := frame.Len()
	if n == 0 {
		return nil
	}
	last, _ := frame.Bars.Last()
	price := last.Close
	cross := frame.CrossoverAt(n - 1)

	var side model.Side
	var reason string
	if pos.IsFlat() {
		switch {
		case cross == "buy":
			side, reason = model.SideBuy, "MACD crossover"
		case price > frame.Last(indicator.ColBBUpper): // false while the band is NaN
			side, reason = model.SideBuy, "Price above BB"
		}
	} else {
		switch {
		case cross == "sell":
			side, reason = model.SideSell, "MACD crossunder"
		case price < frame.Last(indicator.ColBBMid):
			side, reason = model.SideSell, "Price below BB mid"
		}
	}
	if side == "" {
		return nil
	}
	if hasPendingSide(pending, side) {
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
