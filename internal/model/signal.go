package model

import "time"

// Side is the direction of a signal or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Signal is an entry/exit recommendation produced by a strategy. Signals are
// transient, single-use events: whichever caller requested the evaluation
// consumes the signal exactly once.
type Signal struct {
	ID       int64     `json:"id"` // assigned by the orchestrator consumer
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Price    float64   `json:"price"`
	Reason   string    `json:"reason"`
	Strategy string    `json:"strategy"`
	At       time.Time `json:"at"`
}
