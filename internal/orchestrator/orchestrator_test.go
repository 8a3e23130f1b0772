package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Spectavi/spectr/config"
	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
	"github.com/Spectavi/spectr/internal/provider/sim"
	"github.com/Spectavi/spectr/internal/strategy"
)

type scriptedStrategy struct {
	name   string
	detect func(pos *model.Position) *model.Signal
}

func (s *scriptedStrategy) Name() string { return s.name }
func (s *scriptedStrategy) DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal {
	return s.detect(pos)
}
func (s *scriptedStrategy) RequiredIndicators() []indicator.Spec { return nil }
func (s *scriptedStrategy) Lookback() int                        { return 30 }

func init() {
	strategy.Register("test-orch-buy-when-flat", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		return &scriptedStrategy{
			name: "test-orch-buy-when-flat",
			detect: func(pos *model.Position) *model.Signal {
				if pos.IsFlat() {
					return &model.Signal{Side: model.SideBuy, Reason: "scripted entry"}
				}
				return nil
			},
		}
	})
	strategy.Register("test-orch-panic", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		return &scriptedStrategy{
			name:   "test-orch-panic",
			detect: func(pos *model.Position) *model.Signal { panic("boom") },
		}
	})
	strategy.Register("test-orch-silent", func(cfg strategy.Config, stops *strategy.StopBook) strategy.Strategy {
		return &scriptedStrategy{
			name:   "test-orch-silent",
			detect: func(pos *model.Position) *model.Signal { return nil },
		}
	})
}

func testConfig(strategyName string, auto bool) config.Orchestrator {
	cfg := config.Orchestrator{
		Symbols:     []string{"BTCUSD"},
		Strategy:    strategyName,
		TradeAmount: 1000,
		AutoTrading: auto,

		PollInterval:   20 * time.Millisecond,
		ScanInterval:   20 * time.Millisecond,
		EquityInterval: 10 * time.Millisecond,
		EquityWindow:   time.Hour,
		Workers:        2,
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestOrchestrator(t *testing.T, strategyName string, auto bool) (*Orchestrator, *sim.Broker) {
	t.Helper()
	broker := sim.NewBroker(100000)
	o, err := New(testConfig(strategyName, auto), sim.NewData(), broker, nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return o, broker
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig("test-orch-silent", false)
	if _, err := New(cfg, nil, sim.NewBroker(0), nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil data provider")
	}
	if _, err := New(cfg, sim.NewData(), nil, nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil broker provider")
	}
	empty := cfg
	empty.Symbols = nil
	if _, err := New(empty, sim.NewData(), sim.NewBroker(0), nil, nil, nil, nil); err == nil {
		t.Error("expected error for empty watchlist")
	}
	bad := cfg
	bad.Strategy = "no-such-strategy"
	if _, err := New(bad, sim.NewData(), sim.NewBroker(0), nil, nil, nil, nil); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestPollSymbol_ProducesFrameAndSignal(t *testing.T) {
	o, _ := newTestOrchestrator(t, "test-orch-buy-when-flat", true)

	res := o.pollSymbol(context.Background(), "BTCUSD")
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.frame == nil || res.frame.Len() == 0 {
		t.Fatal("expected a populated frame")
	}
	if res.quote.Price <= 0 {
		t.Fatalf("quote = %+v", res.quote)
	}
	if res.signal == nil {
		t.Fatal("expected a buy signal while flat")
	}
	if res.signal.ID == 0 || res.signal.Symbol != "BTCUSD" || res.signal.Price <= 0 {
		t.Fatalf("signal not stamped: %+v", res.signal)
	}
}

func TestPollSymbol_RecoversPanic(t *testing.T) {
	o, _ := newTestOrchestrator(t, "test-orch-panic", true)

	res := o.pollSymbol(context.Background(), "BTCUSD")
	var stratErr *model.StrategyError
	if !errors.As(res.err, &stratErr) {
		t.Fatalf("err = %v, want StrategyError", res.err)
	}
	if stratErr.Symbol != "BTCUSD" || stratErr.Strategy != "test-orch-panic" {
		t.Fatalf("strategy error = %+v", stratErr)
	}
	if res.signal != nil {
		t.Fatal("panicking evaluation must not emit a signal")
	}
}

func TestApplyPoll_AutoSubmitsOrder(t *testing.T) {
	o, broker := newTestOrchestrator(t, "test-orch-buy-when-flat", true)
	ctx := context.Background()

	res := o.pollSymbol(ctx, "BTCUSD")
	o.applyPoll(ctx, res)

	pos, err := broker.GetPosition(ctx, "BTCUSD")
	if err != nil {
		t.Fatal(err)
	}
	if pos == nil {
		t.Fatal("auto mode should have opened a position")
	}
	if f, ok := o.Frame("BTCUSD"); !ok || f.Len() == 0 {
		t.Fatal("frame snapshot missing after poll")
	}
	if _, ok := o.Quote("BTCUSD"); !ok {
		t.Fatal("quote snapshot missing after poll")
	}
}

func TestApplyPoll_DropsSignalWhenOrderPending(t *testing.T) {
	o, broker := newTestOrchestrator(t, "test-orch-buy-when-flat", true)
	ctx := context.Background()

	// Park a resting limit order so the symbol has a pending order.
	if _, err := broker.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "BTCUSD", Side: model.SideBuy, Type: model.OrderTypeLimit,
		Qty: 1, LimitPrice: 1,
	}); err != nil {
		t.Fatal(err)
	}

	sig := model.Signal{ID: 7, Symbol: "BTCUSD", Side: model.SideBuy, Price: 100,
		Strategy: "test-orch-buy-when-flat"}
	o.handleSignal(ctx, sig)

	pos, _ := broker.GetPosition(ctx, "BTCUSD")
	if pos != nil {
		t.Fatal("duplicate signal must not open a position")
	}
}

func TestManualSignals_ConfirmAndDismiss(t *testing.T) {
	o, broker := newTestOrchestrator(t, "test-orch-buy-when-flat", false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go o.consumerLoop(ctx)

	res := o.pollSymbol(ctx, "BTCUSD")
	o.applyPoll(ctx, res)

	pending := o.PendingSignals()
	if len(pending) != 1 {
		t.Fatalf("pending = %v, want one signal", pending)
	}
	// A repeat of the same signal is suppressed while one is queued.
	o.handleSignal(ctx, model.Signal{ID: 99, Symbol: "BTCUSD", Side: model.SideBuy, Price: 100})
	if got := o.PendingSignals(); len(got) != 1 {
		t.Fatalf("duplicate queued: %v", got)
	}

	// No order yet in manual mode.
	if pos, _ := broker.GetPosition(ctx, "BTCUSD"); pos != nil {
		t.Fatal("manual mode must not auto-submit")
	}

	if err := o.ConfirmSignal(ctx, pending[0].ID); err != nil {
		t.Fatal(err)
	}
	if pos, _ := broker.GetPosition(ctx, "BTCUSD"); pos == nil {
		t.Fatal("confirm should have submitted the order")
	}
	if got := o.PendingSignals(); len(got) != 0 {
		t.Fatalf("signal not removed after confirm: %v", got)
	}

	// Dismiss path.
	o.handleSignal(ctx, model.Signal{ID: 41, Symbol: "BTCUSD", Side: model.SideSell, Price: 100})
	if err := o.DismissSignal(ctx, 41); err != nil {
		t.Fatal(err)
	}
	if got := o.PendingSignals(); len(got) != 0 {
		t.Fatalf("signal not removed after dismiss: %v", got)
	}

	if err := o.DismissSignal(ctx, 12345); !errors.Is(err, ErrSignalNotFound) {
		t.Fatalf("err = %v, want ErrSignalNotFound", err)
	}
}

func TestApplyEquity_PrunesWindow(t *testing.T) {
	o, _ := newTestOrchestrator(t, "test-orch-silent", false)
	now := time.Now()

	o.applyEquity(equityUpdate{point: EquityPoint{At: now.Add(-2 * time.Hour), Total: 1}})
	o.applyEquity(equityUpdate{point: EquityPoint{At: now.Add(-30 * time.Minute), Total: 2}})
	o.applyEquity(equityUpdate{point: EquityPoint{At: now, Total: 3}})

	curve := o.EquityCurve()
	if len(curve) != 2 {
		t.Fatalf("curve = %v, want the 2 points inside the 1h window", curve)
	}
	if curve[0].Total != 2 || curve[1].Total != 3 {
		t.Fatalf("wrong points survived: %v", curve)
	}
}

func TestMarkToMarket_RevaluesAgainstCachedQuotes(t *testing.T) {
	broker := sim.NewBroker(1000)
	o, err := New(testConfig("test-orch-silent", false), sim.NewData(), broker, nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := broker.SubmitOrder(ctx, model.OrderRequest{
		Symbol:      "BTCUSD",
		Side:        model.SideBuy,
		Type:        model.OrderTypeMarket,
		Qty:         10,
		MarketPrice: 50,
	}); err != nil {
		t.Fatal(err)
	}

	// No cached quote yet, so the position values at entry price.
	point, err := o.markToMarket(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if point.Cash != 500 || point.Total != 1000 {
		t.Fatalf("cash = %v total = %v, want 500 and 1000 at cost basis", point.Cash, point.Total)
	}

	o.mu.Lock()
	o.quotes["BTCUSD"] = model.Quote{Symbol: "BTCUSD", Price: 60, TS: time.Now()}
	o.mu.Unlock()

	point, err = o.markToMarket(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if point.Total != 1100 {
		t.Fatalf("total = %v, want 1100 with the position marked at 60", point.Total)
	}
}

func TestRun_StopsWithinInterval(t *testing.T) {
	o, _ := newTestOrchestrator(t, "test-orch-silent", false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Let a few cycles happen, then cancel and require prompt shutdown.
	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
