// Package orchestrator runs the live trading assistant: it polls market
// data on an interval, fans per-symbol work out to a bounded worker pool,
// and funnels every result back through a single consumer goroutine. The
// consumer is the only goroutine that mutates shared state; readers take
// snapshots under an RWMutex.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Spectavi/spectr/config"
	"github.com/Spectavi/spectr/internal/cache"
	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/metrics"
	"github.com/Spectavi/spectr/internal/model"
	"github.com/Spectavi/spectr/internal/notification"
	"github.com/Spectavi/spectr/internal/scanner"
	"github.com/Spectavi/spectr/internal/strategy"
)

// ErrSignalNotFound is returned by Confirm/Dismiss for an unknown id.
var ErrSignalNotFound = errors.New("orchestrator: signal not found")

// EquityPoint is one sample of account value over time.
type EquityPoint struct {
	At    time.Time `json:"at"`
	Cash  float64   `json:"cash"`
	Total float64   `json:"total"`
}

// pollUpdate is the result of one symbol evaluation.
type pollUpdate struct {
	symbol string
	frame  *indicator.Frame
	quote  model.Quote
	signal *model.Signal
	err    error
}

type scanUpdate struct {
	rows []model.Candidate
}

type equityUpdate struct {
	point EquityPoint
}

// confirmReq asks the consumer to resolve a pending manual signal.
type confirmReq struct {
	id      int64
	dismiss bool
	reply   chan error
}

// Orchestrator drives the live loops.
type Orchestrator struct {
	cfg    config.Orchestrator
	data   model.DataProvider
	broker model.BrokerProvider
	store  cache.Store
	met    *metrics.Metrics
	health *metrics.HealthStatus
	log    *slog.Logger

	strat  strategy.Strategy
	stops  *strategy.StopBook
	orders *OrderPipeline
	scan   *scanner.Scanner

	// Notify, when set before Run, receives signal and order alerts.
	// Delivery happens off the consumer goroutine and is best effort.
	Notify notification.Notifier

	pollCh    chan pollUpdate
	scanCh    chan scanUpdate
	equityCh  chan equityUpdate
	confirmCh chan confirmReq

	sigSeq atomic.Int64

	// Consumer-owned state. The consumer goroutine is the sole writer; the
	// mutex exists so accessor methods can take consistent snapshots.
	mu       sync.RWMutex
	frames   map[string]*indicator.Frame
	quotes   map[string]model.Quote
	signals  []model.Signal
	equity   []EquityPoint
	scanRows []model.Candidate
}

// New validates the wiring and builds an orchestrator. Both providers are
// required; store, metrics and health are optional.
func New(cfg config.Orchestrator, data model.DataProvider, broker model.BrokerProvider, store cache.Store, met *metrics.Metrics, health *metrics.HealthStatus, log *slog.Logger) (*Orchestrator, error) {
	if data == nil {
		return nil, errors.New("orchestrator: data provider is required")
	}
	if broker == nil {
		return nil, errors.New("orchestrator: broker provider is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("orchestrator: at least one symbol is required")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg.ApplyDefaults()

	stops := strategy.NewStopBook()
	strat, err := strategy.New(cfg.Strategy, cfg.StrategyConfig, stops)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if store == nil {
		store = cache.NewMemory()
	}

	o := &Orchestrator{
		cfg:    cfg,
		data:   data,
		broker: broker,
		store:  store,
		met:    met,
		health: health,
		log:    log,
		strat:  strat,
		stops:  stops,
		orders: NewOrderPipeline(data, broker, cfg.TradeAmount, log, met),
		scan:   scanner.New(data, cfg.Scanner, log),

		pollCh:    make(chan pollUpdate, len(cfg.Symbols)),
		scanCh:    make(chan scanUpdate, 1),
		equityCh:  make(chan equityUpdate, 1),
		confirmCh: make(chan confirmReq),

		frames: make(map[string]*indicator.Frame),
		quotes: make(map[string]model.Quote),
	}
	if health != nil {
		health.SetAutoTrading(cfg.AutoTrading)
		health.SetStrategy(cfg.Strategy)
	}
	return o, nil
}

// Run starts the loops and blocks until ctx is cancelled. Every loop checks
// the context inside its sleep, so shutdown completes within one interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("orchestrator starting",
		"symbols", o.cfg.Symbols,
		"strategy", o.cfg.Strategy,
		"auto_trading", o.cfg.AutoTrading,
		"workers", o.cfg.Workers)

	jobs := make(chan string)
	var wg sync.WaitGroup

	// Worker pool: each worker evaluates one symbol at a time.
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				if o.met != nil {
					o.met.WorkersBusy.Inc()
				}
				res := o.pollSymbol(ctx, symbol)
				if o.met != nil {
					o.met.WorkersBusy.Dec()
				}
				select {
				case o.pollCh <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		o.pollLoop(ctx, jobs)
	}()
	go func() {
		defer wg.Done()
		o.scanLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		o.equityLoop(ctx)
	}()

	o.consumerLoop(ctx)
	wg.Wait()
	o.log.Info("orchestrator stopped")
	return ctx.Err()
}

// pollLoop dispatches all symbols to the worker pool once per interval.
// The first cycle starts immediately.
func (o *Orchestrator) pollLoop(ctx context.Context, jobs chan<- string) {
	defer close(jobs)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		for _, symbol := range o.cfg.Symbols {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				return
			}
		}
		if o.met != nil {
			o.met.PollCycles.Inc()
			o.met.PollDur.Observe(time.Since(start).Seconds())
		}
		if o.health != nil {
			o.health.SetLastPollTime(time.Now())
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// pollSymbol fetches data, builds the indicator frame, and evaluates the
// strategy. A panicking strategy is recovered into a StrategyError so one
// bad symbol never takes the loop down.
func (o *Orchestrator) pollSymbol(ctx context.Context, symbol string) (res pollUpdate) {
	res.symbol = symbol
	defer func() {
		if r := recover(); r != nil {
			if o.met != nil {
				o.met.StrategyPanics.Inc()
			}
			res.signal = nil
			res.err = &model.StrategyError{
				Symbol:   symbol,
				Strategy: o.strat.Name(),
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()

	now := time.Now()
	lookback := o.strat.Lookback()
	from := now.Add(-time.Duration(lookback+5) * o.cfg.BarInterval)

	bars, err := o.data.FetchBars(ctx, symbol, from, now, o.cfg.BarInterval)
	if err != nil {
		res.err = fmt.Errorf("%w: bars for %s: %v", model.ErrDataFetch, symbol, err)
		return res
	}
	quote, err := o.data.FetchQuote(ctx, symbol)
	if err != nil {
		res.err = fmt.Errorf("%w: quote for %s: %v", model.ErrDataFetch, symbol, err)
		return res
	}
	res.quote = quote

	bars = bars.InjectQuote(quote)
	if len(bars) == 0 {
		res.err = fmt.Errorf("%w: empty series for %s", model.ErrDataFetch, symbol)
		return res
	}

	frame := indicator.Compute(bars.Tail(lookback), o.strat.RequiredIndicators())
	res.frame = frame
	if o.met != nil {
		o.met.FramesBuilt.Inc()
	}

	pos, err := o.broker.GetPosition(ctx, symbol)
	if err != nil {
		res.err = fmt.Errorf("position for %s: %w", symbol, err)
		return res
	}
	pending, err := o.broker.PendingOrderSides(ctx, symbol)
	if err != nil {
		o.log.Warn("pending order lookup failed", "symbol", symbol, "err", err)
		pending = nil
	}

	sig := o.strat.DetectSignal(frame, symbol, pos, pending)
	if sig != nil {
		sig.ID = o.sigSeq.Add(1)
		sig.Symbol = symbol
		if sig.Price == 0 {
			sig.Price = quote.Price
		}
		if sig.Strategy == "" {
			sig.Strategy = o.strat.Name()
		}
		sig.At = now
	}
	res.signal = sig
	return res
}

// consumerLoop is the single owner of shared state. Poll results, scanner
// sweeps, equity samples, and manual confirmations all land here.
func (o *Orchestrator) consumerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-o.pollCh:
			o.applyPoll(ctx, res)
		case su := <-o.scanCh:
			o.applyScan(ctx, su)
		case eu := <-o.equityCh:
			o.applyEquity(eu)
		case req := <-o.confirmCh:
			req.reply <- o.resolveSignal(ctx, req)
		}
	}
}

func (o *Orchestrator) applyPoll(ctx context.Context, res pollUpdate) {
	if res.err != nil {
		if o.met != nil {
			o.met.PollErrors.WithLabelValues(res.symbol).Inc()
		}
		var stratErr *model.StrategyError
		switch {
		case errors.As(res.err, &stratErr):
			o.log.Error("strategy evaluation failed", "symbol", res.symbol, "err", res.err)
		case errors.Is(res.err, model.ErrRateLimit):
			o.log.Warn("rate limited, backing off until next cycle", "symbol", res.symbol)
		case errors.Is(res.err, model.ErrDataFetch):
			o.log.Warn("data fetch failed, skipping symbol this cycle", "symbol", res.symbol, "err", res.err)
		default:
			o.log.Error("poll failed", "symbol", res.symbol, "err", res.err)
		}
		if res.frame == nil {
			return
		}
	}

	o.mu.Lock()
	if res.frame != nil {
		o.frames[res.symbol] = res.frame
	}
	if res.quote.Symbol != "" || res.quote.Price > 0 {
		o.quotes[res.symbol] = res.quote
	}
	o.mu.Unlock()

	if res.signal != nil {
		o.handleSignal(ctx, *res.signal)
	}
}

func (o *Orchestrator) handleSignal(ctx context.Context, sig model.Signal) {
	if o.met != nil {
		o.met.SignalsDetected.WithLabelValues(sig.Strategy, string(sig.Side)).Inc()
	}
	o.log.Info("signal detected",
		"symbol", sig.Symbol, "side", sig.Side, "price", sig.Price, "reason", sig.Reason)

	if !o.cfg.AutoTrading {
		// Manual mode: queue for user confirmation, one live signal per
		// symbol and side.
		o.mu.Lock()
		defer o.mu.Unlock()
		for _, s := range o.signals {
			if s.Symbol == sig.Symbol && s.Side == sig.Side {
				o.dropSignal("duplicate_pending_signal")
				return
			}
		}
		o.signals = append(o.signals, sig)
		o.sendAlert(notification.SignalAlert(sig, true))
		return
	}

	has, err := o.broker.HasPendingOrder(ctx, sig.Symbol)
	if err != nil {
		o.log.Error("pending order check failed, dropping signal", "symbol", sig.Symbol, "err", err)
		o.dropSignal("pending_check_failed")
		return
	}
	if has {
		o.log.Warn("order already pending, dropping signal", "symbol", sig.Symbol, "side", sig.Side)
		o.dropSignal("order_pending")
		return
	}

	if _, err := o.orders.Submit(ctx, sig.Symbol, sig.Side, sig.Price); err != nil {
		o.log.Error("order submission failed", "symbol", sig.Symbol, "side", sig.Side, "err", err)
		o.sendAlert(notification.OrderErrorAlert(sig.Symbol, sig.Side, err))
		return
	}
	o.log.Info("order submitted", "symbol", sig.Symbol, "side", sig.Side, "price", sig.Price)
	o.sendAlert(notification.SignalAlert(sig, false))
}

// sendAlert delivers an alert without blocking the consumer.
func (o *Orchestrator) sendAlert(a notification.Alert) {
	if o.Notify == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.Notify.Send(ctx, a); err != nil {
			o.log.Warn("alert delivery failed", "title", a.Title, "err", err)
		}
	}()
}

func (o *Orchestrator) dropSignal(reason string) {
	if o.met != nil {
		o.met.SignalsDropped.WithLabelValues(reason).Inc()
	}
}

// resolveSignal confirms or dismisses a queued manual signal by id.
func (o *Orchestrator) resolveSignal(ctx context.Context, req confirmReq) error {
	o.mu.Lock()
	idx := -1
	for i, s := range o.signals {
		if s.ID == req.id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return ErrSignalNotFound
	}
	sig := o.signals[idx]
	o.signals = append(o.signals[:idx], o.signals[idx+1:]...)
	o.mu.Unlock()

	if req.dismiss {
		o.log.Info("signal dismissed", "symbol", sig.Symbol, "side", sig.Side, "id", sig.ID)
		return nil
	}
	if _, err := o.orders.Submit(ctx, sig.Symbol, sig.Side, sig.Price); err != nil {
		return err
	}
	o.log.Info("confirmed order submitted", "symbol", sig.Symbol, "side", sig.Side, "id", sig.ID)
	return nil
}

// ConfirmSignal submits the order for a queued manual signal.
func (o *Orchestrator) ConfirmSignal(ctx context.Context, id int64) error {
	return o.sendConfirm(ctx, confirmReq{id: id, reply: make(chan error, 1)})
}

// DismissSignal discards a queued manual signal without trading.
func (o *Orchestrator) DismissSignal(ctx context.Context, id int64) error {
	return o.sendConfirm(ctx, confirmReq{id: id, dismiss: true, reply: make(chan error, 1)})
}

func (o *Orchestrator) sendConfirm(ctx context.Context, req confirmReq) error {
	select {
	case o.confirmCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelOrder forwards a cancellation to the broker.
func (o *Orchestrator) CancelOrder(ctx context.Context, id string) (bool, error) {
	ok, err := o.broker.CancelOrder(ctx, id)
	if ok && o.met != nil {
		o.met.OrdersCanceled.Inc()
	}
	return ok, err
}

func (o *Orchestrator) applyScan(ctx context.Context, su scanUpdate) {
	o.mu.Lock()
	o.scanRows = su.rows
	o.mu.Unlock()
	if o.met != nil {
		o.met.ScanCandidates.Set(float64(len(scanner.Passed(su.rows))))
	}
	// Best effort persist for the next start.
	if err := o.store.Put(ctx, cache.KeyScanResults, su.rows); err != nil {
		if o.met != nil {
			o.met.CacheErrors.Inc()
		}
		o.log.Warn("scan cache write failed", "err", err)
	}
}

func (o *Orchestrator) applyEquity(eu equityUpdate) {
	cutoff := eu.point.At.Add(-o.cfg.EquityWindow)
	o.mu.Lock()
	o.equity = append(o.equity, eu.point)
	trimmed := o.equity[:0]
	for _, p := range o.equity {
		if !p.At.Before(cutoff) {
			trimmed = append(trimmed, p)
		}
	}
	o.equity = trimmed
	o.mu.Unlock()

	if o.met != nil {
		o.met.EquityValue.Set(eu.point.Total)
		o.met.EquityPoints.Inc()
	}
}

// scanLoop sweeps the market on its own interval.
func (o *Orchestrator) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		rows, err := o.scan.Scan(ctx)
		if err != nil && ctx.Err() == nil {
			o.log.Warn("scanner sweep failed", "err", err)
		}
		if o.met != nil {
			o.met.ScanDur.Observe(time.Since(start).Seconds())
		}
		if len(rows) > 0 {
			select {
			case o.scanCh <- scanUpdate{rows: rows}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// equityLoop samples account value on its own interval. Open positions are
// revalued against the latest cached quote so the curve tracks market moves,
// not just fills.
func (o *Orchestrator) equityLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.EquityInterval)
	defer ticker.Stop()

	for {
		point, err := o.markToMarket(ctx)
		if err != nil {
			if ctx.Err() == nil {
				o.log.Warn("equity sample failed", "err", err)
			}
			if o.health != nil {
				o.health.SetBrokerOK(false)
			}
		} else {
			if o.health != nil {
				o.health.SetBrokerOK(true)
			}
			select {
			case o.equityCh <- equityUpdate{point: point}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// markToMarket values the account as cash plus each open position at its
// cached quote. Positions with no cached quote fall back to entry price.
func (o *Orchestrator) markToMarket(ctx context.Context) (EquityPoint, error) {
	bal, err := o.broker.GetBalance(ctx)
	if err != nil {
		return EquityPoint{}, fmt.Errorf("balance: %w", err)
	}
	positions, err := o.broker.GetPositions(ctx)
	if err != nil {
		return EquityPoint{}, fmt.Errorf("positions: %w", err)
	}

	total := bal.Cash
	for i := range positions {
		p := &positions[i]
		price := p.AvgPrice
		if q, ok := o.Quote(p.Symbol); ok && q.Price > 0 {
			price = q.Price
		}
		total += p.MarketValue(price)
	}

	return EquityPoint{At: time.Now(), Cash: bal.Cash, Total: total}, nil
}

// ── Snapshot accessors ──

// Frame returns the latest indicator frame for symbol.
func (o *Orchestrator) Frame(symbol string) (*indicator.Frame, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f, ok := o.frames[symbol]
	return f, ok
}

// Quote returns the latest quote for symbol.
func (o *Orchestrator) Quote(symbol string) (model.Quote, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.quotes[symbol]
	return q, ok
}

// PendingSignals returns the manual-mode signals awaiting confirmation.
func (o *Orchestrator) PendingSignals() []model.Signal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]model.Signal, len(o.signals))
	copy(out, o.signals)
	return out
}

// EquityCurve returns the rolling equity window, oldest first.
func (o *Orchestrator) EquityCurve() []EquityPoint {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]EquityPoint, len(o.equity))
	copy(out, o.equity)
	return out
}

// ScanResults returns the latest scanner sweep.
func (o *Orchestrator) ScanResults() []model.Candidate {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]model.Candidate, len(o.scanRows))
	copy(out, o.scanRows)
	return out
}
