package model

// Position is a tracked holding for one symbol. Qty is signed: positive for
// long, negative for short, zero for flat.
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"` // average entry price
}

// IsFlat reports whether the position holds no quantity. A nil position is
// flat.
func (p *Position) IsFlat() bool {
	return p == nil || p.Qty == 0
}

// Direction returns 1 for long, -1 for short, 0 for flat.
func (p *Position) Direction() int {
	switch {
	case p == nil || p.Qty == 0:
		return 0
	case p.Qty > 0:
		return 1
	default:
		return -1
	}
}

// MarketValue returns the position's value at the given price.
func (p *Position) MarketValue(price float64) float64 {
	if p == nil {
		return 0
	}
	return p.Qty * price
}
