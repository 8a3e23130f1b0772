package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Spectavi/spectr/internal/markethours"
	"github.com/Spectavi/spectr/internal/metrics"
	"github.com/Spectavi/spectr/internal/model"
)

// ErrNoPosition is returned when a sell is requested for a symbol with no
// open position.
var ErrNoPosition = errors.New("orchestrator: no position to sell")

// ErrNoQuote is returned when an after-hours limit price cannot be derived
// because no usable quote exists.
var ErrNoQuote = errors.New("orchestrator: no quote for after-hours limit price")

// fractionalIndicators are the substrings a broker rejection must contain
// for the whole-share retry to apply.
var fractionalIndicators = []string{"fraction", "integer", "whole"}

// OrderPipeline turns signals into broker orders. It owns the market-hours
// decision (market vs after-hours limit) and the single whole-share retry
// for brokers that reject fractional quantities.
type OrderPipeline struct {
	data   model.DataProvider
	broker model.BrokerProvider
	log    *slog.Logger
	met    *metrics.Metrics

	// TradeAmount is the cash budget for one buy.
	TradeAmount float64

	// now is replaceable in tests.
	now func() time.Time
}

// NewOrderPipeline wires the pipeline. met may be nil.
func NewOrderPipeline(data model.DataProvider, broker model.BrokerProvider, tradeAmount float64, log *slog.Logger, met *metrics.Metrics) *OrderPipeline {
	if log == nil {
		log = slog.Default()
	}
	return &OrderPipeline{
		data:        data,
		broker:      broker,
		log:         log,
		met:         met,
		TradeAmount: tradeAmount,
		now:         time.Now,
	}
}

// roundWithTick rounds raw to the instrument's tick while preserving the
// buffer direction: buys round up, sells round down. Tick is a cent at or
// above a dollar, a hundredth of a cent below.
func roundWithTick(raw float64, side model.Side) float64 {
	if raw <= 0 {
		return 0
	}
	tick := 0.01
	decimals := 2.0
	if raw < 1 {
		tick = 0.0001
		decimals = 4
	}
	var factor float64
	if side == model.SideBuy {
		factor = math.Ceil(raw / tick)
	} else {
		factor = math.Floor(raw / tick)
	}
	pow := math.Pow(10, decimals)
	return math.Round(factor*tick*pow) / pow
}

// prepareOrderDetails picks the order type and, after hours, the limit
// price. During regular hours (and always for crypto) orders go out as
// plain market orders. After hours an equity order becomes a limit nudged
// 0.3% through the spread so it actually fills.
func (p *OrderPipeline) prepareOrderDetails(ctx context.Context, symbol string, side model.Side) (model.OrderType, float64, bool, error) {
	if markethours.IsTradableNow(symbol, p.now()) {
		return model.OrderTypeMarket, 0, false, nil
	}

	quote, err := p.data.FetchQuote(ctx, symbol)
	if err != nil {
		return model.OrderTypeLimit, 0, true, fmt.Errorf("%w: %s: %v", ErrNoQuote, symbol, err)
	}

	var src float64
	if side == model.SideBuy {
		src = quote.Ask
		if src <= 0 {
			src = quote.Price
		}
		src *= 1.003
	} else {
		src = quote.Bid
		if src <= 0 {
			src = quote.Price
		}
		src *= 0.997
	}
	limit := roundWithTick(src, side)
	if limit <= 0 {
		return model.OrderTypeLimit, 0, true, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return model.OrderTypeLimit, limit, true, nil
}

// Submit sizes and places an order for a detected signal. Buys spend the
// trade budget as a fractional quantity at price; sells liquidate the whole
// position. When the broker rejects a fractional buy, the order is retried
// exactly once with the quantity floored to whole shares, provided the
// floored notional still fits the budget.
func (p *OrderPipeline) Submit(ctx context.Context, symbol string, side model.Side, price float64) (*model.Order, error) {
	orderType, limitPrice, extended, err := p.prepareOrderDetails(ctx, symbol, side)
	if err != nil {
		return nil, err
	}

	qty := 1.0
	if side == model.SideBuy && p.TradeAmount > 0 && price > 0 {
		qty = p.TradeAmount / price
	} else if side == model.SideSell {
		pos, err := p.broker.GetPosition(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: position lookup for %s: %w", symbol, err)
		}
		if pos.IsFlat() {
			return nil, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
		}
		qty = pos.Qty
	}

	req := model.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          orderType,
		Qty:           qty,
		LimitPrice:    limitPrice,
		MarketPrice:   price,
		ExtendedHours: extended,
	}

	order, err := p.broker.SubmitOrder(ctx, req)
	if err == nil {
		p.countSubmitted(req)
		return order, nil
	}

	if !p.shouldRetryWholeShares(req, price, err) {
		p.countError()
		return nil, err
	}

	retryReq := req
	retryReq.Qty = math.Floor(qty)
	p.log.Warn("broker rejected fractional qty, retrying with whole shares",
		"symbol", symbol, "qty", qty, "retry_qty", retryReq.Qty)
	if p.met != nil {
		p.met.OrderRetries.Inc()
	}

	order, retryErr := p.broker.SubmitOrder(ctx, retryReq)
	if retryErr != nil {
		p.countError()
		return nil, retryErr
	}
	p.countSubmitted(retryReq)
	return order, nil
}

// shouldRetryWholeShares applies the retry preconditions: a buy sized from
// the trade budget, a genuinely fractional quantity, a rejection message
// naming the fractional restriction, and a floored notional that is
// positive yet still within budget.
func (p *OrderPipeline) shouldRetryWholeShares(req model.OrderRequest, price float64, err error) bool {
	if req.Side != model.SideBuy {
		return false
	}
	if req.Qty == math.Trunc(req.Qty) {
		return false
	}
	msg := strings.ToLower(err.Error())
	found := false
	for _, w := range fractionalIndicators {
		if strings.Contains(msg, w) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	floored := math.Floor(req.Qty)
	total := floored * price
	return floored > 0 && total > 0 && total <= p.TradeAmount
}

func (p *OrderPipeline) countSubmitted(req model.OrderRequest) {
	if p.met != nil {
		p.met.OrdersSubmitted.WithLabelValues(string(req.Side), string(req.Type)).Inc()
	}
}

func (p *OrderPipeline) countError() {
	if p.met != nil {
		p.met.OrderErrors.Inc()
	}
}
