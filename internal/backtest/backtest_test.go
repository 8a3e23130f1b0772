package backtest

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
	"github.com/Spectavi/spectr/internal/strategy"
)

// scripted strategies for exercising the simulator without depending on
// indicator math.

type scriptedStrategy struct {
	name   string
	detect func(frame *indicator.Frame, pos *model.Position) *model.Signal
	lookb  int
}

func (s *scriptedStrategy) Name() string { return s.name }
func (s *scriptedStrategy) DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal {
	return s.detect(frame, pos)
}
func (s *scriptedStrategy) RequiredIndicators() []indicator.Spec { return nil }
func (s *scriptedStrategy) Lookback() int                        { return s.lookb }

func init() {
	strategy.Register("test-buy-and-hold", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		return &scriptedStrategy{
			name:  "test-buy-and-hold",
			lookb: 10,
			detect: func(frame *indicator.Frame, pos *model.Position) *model.Signal {
				if pos.IsFlat() {
					return &model.Signal{Side: model.SideBuy, Reason: "scripted entry"}
				}
				return nil
			},
		}
	})
	strategy.Register("test-round-trip", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		bought := false
		return &scriptedStrategy{
			name:  "test-round-trip",
			lookb: 10,
			detect: func(frame *indicator.Frame, pos *model.Position) *model.Signal {
				if pos.IsFlat() && !bought {
					bought = true
					return &model.Signal{Side: model.SideBuy, Reason: "scripted entry"}
				}
				last, _ := frame.Bars.Last()
				if !pos.IsFlat() && last.Close >= 88 {
					return &model.Signal{Side: model.SideSell, Reason: "scripted exit"}
				}
				return nil
			},
		}
	})
	strategy.Register("test-needs-history", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		return &scriptedStrategy{
			name:  "test-needs-history",
			lookb: 2,
			detect: func(frame *indicator.Frame, pos *model.Position) *model.Signal {
				if pos.IsFlat() && frame.Len() >= 4 {
					return &model.Signal{Side: model.SideBuy, Reason: "full history entry"}
				}
				return nil
			},
		}
	})
	strategy.Register("test-never-trades", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		return &scriptedStrategy{
			name:   "test-never-trades",
			lookb:  10,
			detect: func(frame *indicator.Frame, pos *model.Position) *model.Signal { return nil },
		}
	})
}

func seriesBars(closes ...float64) model.Bars {
	start := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bars := make(model.Bars, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			TS: start.Add(time.Duration(i) * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return bars
}

func wantDecimal(t *testing.T, got decimal.Decimal, want float64) {
	t.Helper()
	g, _ := got.Float64()
	if math.Abs(g-want) > 1e-9 {
		t.Fatalf("got %s, want %v", got, want)
	}
}

func TestRun_BuyAndHold(t *testing.T) {
	// Entry fires at the second bar's close of 100, moving all 10000 into
	// 100 shares. The last close of 120 values the account at 12000.
	bars := seriesBars(100, 100, 105, 110, 120)
	res, err := New().Run(bars, "TEST", strategy.DefaultConfig(), "test-buy-and-hold", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.NumBuys() != 1 || res.NumSells() != 0 {
		t.Fatalf("trades = %d buys / %d sells, want 1 / 0", res.NumBuys(), res.NumSells())
	}
	wantDecimal(t, res.FinalValue, 12000)
	if len(res.EquityCurve) != len(bars) {
		t.Fatalf("equity curve has %d points, want %d", len(res.EquityCurve), len(bars))
	}
	// Equity tracks the mark to market once invested.
	wantDecimal(t, res.EquityCurve[0].Value, 10000)
	wantDecimal(t, res.EquityCurve[3].Value, 11000)
}

func TestRun_RoundTripConservation(t *testing.T) {
	// Buy 125 shares at 80, sell all at 88: final value must equal
	// startingCash + qty*(exit-entry) exactly, and stay flat afterwards.
	bars := seriesBars(80, 80, 84, 88, 86)
	res, err := New().Run(bars, "TEST", strategy.DefaultConfig(), "test-round-trip", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.NumBuys() != 1 || res.NumSells() != 1 {
		t.Fatalf("trades = %d buys / %d sells, want 1 / 1", res.NumBuys(), res.NumSells())
	}
	wantDecimal(t, res.FinalValue, 11000)
	if !res.Trades[0].Qty.Equal(res.Trades[1].Qty) {
		t.Fatalf("sell qty %s != buy qty %s", res.Trades[1].Qty, res.Trades[0].Qty)
	}
	wantDecimal(t, res.EquityCurve[len(res.EquityCurve)-1].Value, 11000)
}

func TestRun_FallbackReplayOnShortSeries(t *testing.T) {
	// The windowed pass only ever sees 2-bar frames, so the strategy stays
	// silent and the full-series fallback must produce the entry instead.
	bars := seriesBars(100, 100, 100, 100, 110)
	res, err := New().Run(bars, "TEST", strategy.DefaultConfig(), "test-needs-history", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.NumBuys() != 1 {
		t.Fatalf("fallback produced %d buys, want 1", res.NumBuys())
	}
	if res.Trades[0].Reason != "full history entry" {
		t.Fatalf("trade reason = %q", res.Trades[0].Reason)
	}
	wantDecimal(t, res.FinalValue, 11000)
	if len(res.EquityCurve) != len(bars) {
		t.Fatalf("equity curve has %d points, want %d", len(res.EquityCurve), len(bars))
	}
}

func TestRun_NoTradesStillProducesCurve(t *testing.T) {
	bars := seriesBars(100, 101, 102)
	res, err := New().Run(bars, "TEST", strategy.DefaultConfig(), "test-never-trades", 5000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("unexpected trades: %v", res.Trades)
	}
	wantDecimal(t, res.FinalValue, 5000)
	if len(res.EquityCurve) != len(bars) {
		t.Fatalf("equity curve has %d points, want %d", len(res.EquityCurve), len(bars))
	}
}

func TestRun_Commission(t *testing.T) {
	sim := New()
	sim.Commission = func(qty, price decimal.Decimal) decimal.Decimal {
		return decimal.NewFromInt(1)
	}
	bars := seriesBars(80, 80, 88, 88, 88)
	res, err := sim.Run(bars, "TEST", strategy.DefaultConfig(), "test-round-trip", 10000)
	if err != nil {
		t.Fatal(err)
	}
	// One dollar per fill, two fills.
	wantDecimal(t, res.FinalValue, 10998)
}

func TestRun_EmptySeries(t *testing.T) {
	_, err := New().Run(nil, "TEST", strategy.DefaultConfig(), "test-buy-and-hold", 10000)
	if err != ErrNoBars {
		t.Fatalf("err = %v, want ErrNoBars", err)
	}
}

func TestRun_UnknownStrategy(t *testing.T) {
	_, err := New().Run(seriesBars(1, 2), "TEST", strategy.DefaultConfig(), "no-such-strategy", 10000)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestReadCSV(t *testing.T) {
	in := strings.NewReader(`timestamp,open,high,low,close,volume
2024-03-04T14:31:00Z,101,102,100,101.5,2000
2024-03-04T14:30:00Z,100,101,99,100.5,1000
`)
	bars, err := ReadCSV(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if !bars[0].TS.Before(bars[1].TS) {
		t.Fatal("bars not sorted by timestamp")
	}
	if bars[0].Close != 100.5 || bars[1].Volume != 2000 {
		t.Fatalf("unexpected bars: %+v", bars)
	}
}

func TestReadCSV_BadHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c\n1,2,3\n"))
	if err == nil {
		t.Fatal("expected header error")
	}
}
