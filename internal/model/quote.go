package model

import "time"

// Quote is a point-in-time price snapshot for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	PrevClose float64   `json:"prev_close"`
	Volume    float64   `json:"volume"`
	AvgVolume float64   `json:"avg_volume"`
	TS        time.Time `json:"ts"`
}

// Balance is an account-level snapshot from the broker.
type Balance struct {
	Cash           float64 `json:"cash"`
	BuyingPower    float64 `json:"buying_power"`
	PortfolioValue float64 `json:"portfolio_value"`
}

// Candidate is one scanner row: a symbol that moved enough to be worth a
// closer look, plus the liquidity metrics the filters ran on.
type Candidate struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	ChangePct   float64 `json:"change_pct"` // percent change vs previous close
	Volume      float64 `json:"volume"`
	AvgVolume   float64 `json:"avg_volume"`
	VolumeRatio float64 `json:"volume_ratio"` // volume / avg volume
	FloatShares float64 `json:"float_shares"`
	HasNews     bool    `json:"has_news"`
	Passed      bool    `json:"passed"`
}
