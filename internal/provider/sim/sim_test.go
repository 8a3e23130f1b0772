package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Spectavi/spectr/internal/model"
)

func TestData_FetchBarsDeterministic(t *testing.T) {
	ctx := context.Background()
	to := time.Now().Truncate(time.Minute)
	from := to.Add(-30 * time.Minute)

	a, err := NewData().FetchBars(ctx, "AAPL", from, to, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewData().FetchBars(ctx, "AAPL", from, to, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Close != b[i].Close {
			t.Fatalf("walks diverge at %d: %v vs %v", i, a[i].Close, b[i].Close)
		}
	}
	for i := 1; i < len(a); i++ {
		if !a[i-1].TS.Before(a[i].TS) {
			t.Fatal("bars out of order")
		}
		if a[i].Open != a[i-1].Close {
			t.Fatalf("bar %d open %v != prev close %v", i, a[i].Open, a[i-1].Close)
		}
	}
}

func TestData_QuoteConsistentWithBars(t *testing.T) {
	ctx := context.Background()
	d := NewData()
	q, err := d.FetchQuote(ctx, "TSLA")
	if err != nil {
		t.Fatal(err)
	}
	if q.Price <= 0 || q.Bid >= q.Ask {
		t.Fatalf("bad quote: %+v", q)
	}
}

func TestBroker_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(10000)

	order, err := b.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderTypeMarket,
		Qty: 10, MarketPrice: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != model.OrderStatusFilled {
		t.Fatalf("status = %s", order.Status)
	}

	pos, err := b.GetPosition(ctx, "AAPL")
	if err != nil || pos == nil {
		t.Fatalf("position missing: %v", err)
	}
	if pos.Qty != 10 || pos.AvgPrice != 100 {
		t.Fatalf("position = %+v", pos)
	}

	bal, _ := b.GetBalance(ctx)
	if bal.Cash != 9000 {
		t.Fatalf("cash = %v, want 9000", bal.Cash)
	}

	if _, err := b.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "AAPL", Side: model.SideSell, Type: model.OrderTypeMarket,
		Qty: 10, MarketPrice: 110,
	}); err != nil {
		t.Fatal(err)
	}
	pos, _ = b.GetPosition(ctx, "AAPL")
	if pos != nil {
		t.Fatalf("position should be flat, got %+v", pos)
	}
	bal, _ = b.GetBalance(ctx)
	if bal.Cash != 10100 {
		t.Fatalf("cash = %v, want 10100", bal.Cash)
	}
}

func TestBroker_RejectFractional(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(10000)
	b.RejectFractional = true

	_, err := b.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderTypeMarket,
		Qty: 2.5, MarketPrice: 100,
	})
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "whole") {
		t.Fatalf("err = %v, want whole-number rejection", err)
	}

	if _, err := b.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderTypeMarket,
		Qty: 2, MarketPrice: 100,
	}); err != nil {
		t.Fatalf("whole qty should fill: %v", err)
	}
}

func TestBroker_LimitOrdersRestPending(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(10000)

	order, err := b.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderTypeLimit,
		Qty: 1, LimitPrice: 99.5, ExtendedHours: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}

	has, _ := b.HasPendingOrder(ctx, "AAPL")
	if !has {
		t.Fatal("expected pending order")
	}
	sides, _ := b.PendingOrderSides(ctx, "AAPL")
	if len(sides) != 1 || sides[0] != model.SideBuy {
		t.Fatalf("sides = %v", sides)
	}

	ok, err := b.CancelOrder(ctx, order.ID)
	if err != nil || !ok {
		t.Fatalf("cancel = %v, %v", ok, err)
	}
	has, _ = b.HasPendingOrder(ctx, "AAPL")
	if has {
		t.Fatal("order should be canceled")
	}
	// Cancel is not idempotent-true: second attempt reports false.
	ok, _ = b.CancelOrder(ctx, order.ID)
	if ok {
		t.Fatal("second cancel should report false")
	}
}

func TestBroker_InsufficientCash(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(100)
	_, err := b.SubmitOrder(ctx, model.OrderRequest{
		Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderTypeMarket,
		Qty: 10, MarketPrice: 100,
	})
	if err == nil {
		t.Fatal("expected insufficient cash error")
	}
}
