package model

import (
	"testing"
	"time"
)

func ts(min int) time.Time {
	return time.Date(2025, 6, 2, 9, min, 0, 0, time.UTC)
}

func TestBars_InjectKeepsOrder(t *testing.T) {
	var bs Bars
	for _, m := range []int{30, 32, 31} {
		bs = bs.Inject(Bar{TS: ts(m), Close: float64(m)})
	}
	if len(bs) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bs))
	}
	for i := 1; i < len(bs); i++ {
		if !bs[i-1].TS.Before(bs[i].TS) {
			t.Errorf("bars out of order at %d: %v >= %v", i, bs[i-1].TS, bs[i].TS)
		}
	}
}

func TestBars_InjectLastWriteWins(t *testing.T) {
	var bs Bars
	bs = bs.Inject(Bar{TS: ts(30), Close: 100})
	bs = bs.Inject(Bar{TS: ts(31), Close: 101})
	bs = bs.Inject(Bar{TS: ts(30), Close: 99.5})

	if len(bs) != 2 {
		t.Fatalf("duplicate timestamp should replace, got %d bars", len(bs))
	}
	if bs[0].Close != 99.5 {
		t.Errorf("expected last write to win, got close=%v", bs[0].Close)
	}
}

func TestBars_InjectQuote(t *testing.T) {
	bs := Bars{{TS: ts(30), Open: 99, High: 101, Low: 98, Close: 100, Volume: 500}}
	bs = bs.InjectQuote(Quote{Symbol: "NVDA", Price: 102.5, TS: ts(31)})

	if len(bs) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bs))
	}
	last := bs[1]
	if last.Close != 102.5 {
		t.Errorf("close = %v, want quote price 102.5", last.Close)
	}
	if last.Open != 100 || last.Volume != 500 {
		t.Errorf("open/volume should carry over from last bar: %+v", last)
	}
}

func TestPosition_Direction(t *testing.T) {
	var nilPos *Position
	if !nilPos.IsFlat() || nilPos.Direction() != 0 {
		t.Error("nil position should be flat")
	}
	if (&Position{Qty: 2}).Direction() != 1 {
		t.Error("long position should have direction 1")
	}
	if (&Position{Qty: -2}).Direction() != -1 {
		t.Error("short position should have direction -1")
	}
}
