// Package cache persists small pieces of assistant state (watchlist,
// selected strategy, trade budget, last backtest result) between runs.
// The cache is best effort: callers log failures and carry on, they never
// fail a trading operation because a cache write did not stick.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMiss is returned by Get when the key has never been written.
var ErrMiss = errors.New("cache: key not found")

// Well-known keys.
const (
	KeyWatchlist    = "watchlist"
	KeyStrategy     = "strategy"
	KeyTradeAmount  = "trade_amount"
	KeyAutoTrading  = "auto_trading"
	KeyLastBacktest = "last_backtest"
	KeyScanResults  = "scanner_results"
)

// Store is a small JSON key-value cache.
type Store interface {
	// Get unmarshals the value stored under key into out. Returns ErrMiss
	// when the key is absent.
	Get(ctx context.Context, key string, out any) error

	// Put marshals v and stores it under key, replacing any prior value.
	Put(ctx context.Context, key string, v any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}

func marshal(key string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return data, nil
}

func unmarshal(key string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}
