package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider failures. Wrap them with fmt.Errorf("...: %w")
// so callers can classify with errors.Is.
var (
	// ErrDataFetch marks a network or parse failure while fetching bars or
	// quotes. The affected poll cycle is skipped; nothing crashes.
	ErrDataFetch = errors.New("data fetch failed")

	// ErrRateLimit marks provider throttling. Surfaced to the caller; the
	// core schedules no retry of its own — the next interval tries again.
	ErrRateLimit = errors.New("provider rate limited")
)

// StrategyError wraps a failure raised while evaluating one strategy for one
// symbol. It never affects other symbols or other loops.
type StrategyError struct {
	Symbol   string
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s on %s: %v", e.Strategy, e.Symbol, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }
