package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Spectavi/spectr/internal/model"
)

// Broker is a paper-trading BrokerProvider. Market orders fill instantly at
// the request's market price; limit orders rest as pending until canceled
// or filled by a later market sweep.
type Broker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*model.Position
	orders    map[string]*model.Order
	orderSeq  int64

	// RejectFractional emulates brokers that only accept whole-share
	// quantities: fractional submissions fail with a rejection message.
	RejectFractional bool

	// FillLimitOrders makes limit orders fill instantly at their limit
	// price instead of resting pending.
	FillLimitOrders bool
}

// NewBroker starts a paper account with the given cash.
func NewBroker(startingCash float64) *Broker {
	return &Broker{
		cash:      startingCash,
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*model.Order),
	}
}

func (b *Broker) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (b *Broker) GetBalance(ctx context.Context) (model.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.cash
	for _, p := range b.positions {
		total += p.Qty * p.AvgPrice
	}
	return model.Balance{Cash: b.cash, BuyingPower: b.cash, PortfolioValue: total}, nil
}

func (b *Broker) HasPendingOrder(ctx context.Context, symbol string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.Symbol == symbol && !o.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (b *Broker) PendingOrderSides(ctx context.Context, symbol string) ([]model.Side, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sides []model.Side
	for _, o := range b.orders {
		if o.Symbol == symbol && !o.Status.Terminal() {
			sides = append(sides, o.Side)
		}
	}
	return sides, nil
}

func (b *Broker) SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	if req.Qty <= 0 {
		return nil, errors.New("sim: qty must be positive")
	}
	if b.RejectFractional && req.Qty != math.Trunc(req.Qty) {
		return nil, errors.New("sim: asset is not fractionable, qty must be a whole number")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.orderSeq++
	order := &model.Order{
		ID:         fmt.Sprintf("SIM-%d", b.orderSeq),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		Status:     model.OrderStatusPending,
		CreatedAt:  time.Now(),
	}
	b.orders[order.ID] = order

	fillPrice := req.MarketPrice
	if req.Type == model.OrderTypeLimit {
		if !b.FillLimitOrders {
			slog.Debug("sim order resting", "id", order.ID, "symbol", req.Symbol, "limit", req.LimitPrice)
			return order, nil
		}
		fillPrice = req.LimitPrice
	}
	if fillPrice <= 0 {
		return nil, errors.New("sim: market order needs a market price")
	}

	if err := b.fillLocked(order, fillPrice); err != nil {
		order.Status = model.OrderStatusRejected
		return nil, err
	}
	return order, nil
}

// fillLocked applies a fill to the account. Caller holds the lock.
func (b *Broker) fillLocked(order *model.Order, price float64) error {
	notional := order.Qty * price
	switch order.Side {
	case model.SideBuy:
		if notional > b.cash {
			return fmt.Errorf("sim: insufficient cash %.2f for %.2f", b.cash, notional)
		}
		b.cash -= notional
		pos, ok := b.positions[order.Symbol]
		if !ok {
			b.positions[order.Symbol] = &model.Position{
				Symbol: order.Symbol, Qty: order.Qty, AvgPrice: price,
			}
		} else {
			totalQty := pos.Qty + order.Qty
			pos.AvgPrice = (pos.Qty*pos.AvgPrice + notional) / totalQty
			pos.Qty = totalQty
		}
	case model.SideSell:
		pos, ok := b.positions[order.Symbol]
		if !ok || pos.Qty < order.Qty {
			return fmt.Errorf("sim: no position to sell %g %s", order.Qty, order.Symbol)
		}
		b.cash += notional
		pos.Qty -= order.Qty
		if pos.Qty <= 1e-9 {
			delete(b.positions, order.Symbol)
		}
	}
	order.Status = model.OrderStatusFilled
	slog.Debug("sim order filled", "id", order.ID, "symbol", order.Symbol,
		"side", order.Side, "qty", order.Qty, "price", price)
	return nil
}

func (b *Broker) CancelOrder(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok || o.Status.Terminal() {
		return false, nil
	}
	o.Status = model.OrderStatusCanceled
	return true, nil
}
