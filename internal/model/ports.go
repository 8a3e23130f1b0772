package model

import (
	"context"
	"time"
)

// ── Provider Port Interfaces ──
// These interfaces decouple the core from concrete market data and broker
// implementations. Network clients live behind them and are out of the
// core's scope; the simulator satisfies both for staging and tests.

// DataProvider serves market data.
type DataProvider interface {
	// FetchBars returns bars for symbol between from and to at the given
	// interval, timestamp-ascending.
	FetchBars(ctx context.Context, symbol string, from, to time.Time, interval time.Duration) (Bars, error)

	// FetchQuote returns the latest quote for symbol.
	FetchQuote(ctx context.Context, symbol string) (Quote, error)

	// FetchTopMovers returns up to limit symbols ranked by daily change.
	FetchTopMovers(ctx context.Context, limit int) ([]Candidate, error)

	// HasRecentPositiveNews reports whether positive news was published for
	// symbol within the trailing window.
	HasRecentPositiveNews(ctx context.Context, symbol string, window time.Duration) bool
}

// BrokerProvider executes orders and reports account state.
type BrokerProvider interface {
	// GetPosition returns the position for symbol, or nil when flat.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// GetPositions returns all open positions.
	GetPositions(ctx context.Context) ([]Position, error)

	// GetBalance returns the account balance snapshot.
	GetBalance(ctx context.Context) (Balance, error)

	// HasPendingOrder reports whether a non-terminal order exists for symbol.
	HasPendingOrder(ctx context.Context, symbol string) (bool, error)

	// PendingOrderSides returns the sides of all non-terminal orders for
	// symbol, used for duplicate-signal suppression.
	PendingOrderSides(ctx context.Context, symbol string) ([]Side, error)

	// SubmitOrder places an order and returns the broker's view of it.
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder cancels a pending order by id.
	CancelOrder(ctx context.Context, id string) (bool, error)
}
