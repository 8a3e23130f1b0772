package model

import "time"

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Terminal reports whether the order will see no further status changes.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusRejected
}

// Order is a broker order. The core treats it as read-only after submission
// except to poll status; only the broker mutates it.
type Order struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Type       OrderType   `json:"type"`
	Qty        float64     `json:"qty"`
	LimitPrice float64     `json:"limit_price"` // 0 for market orders
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderRequest carries everything the broker needs to place an order.
type OrderRequest struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Qty           float64   `json:"qty"`
	LimitPrice    float64   `json:"limit_price"`
	MarketPrice   float64   `json:"market_price"` // decision price, for the fill simulator
	ExtendedHours bool      `json:"extended_hours"`
}
