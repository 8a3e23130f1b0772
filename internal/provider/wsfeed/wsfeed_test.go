package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Spectavi/spectr/internal/model"
	"github.com/Spectavi/spectr/internal/provider/sim"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// quoteServer serves each payload once to every connecting client, then
// holds the connection open until the client goes away.
func quoteServer(t *testing.T, payloads [][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, p); err != nil {
				return
			}
		}
		// Hold the connection open; exit when the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForQuote(t *testing.T, f *Feed, symbol string) model.Quote {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.RLock()
		q, ok := f.quotes[symbol]
		f.mu.RUnlock()
		if ok {
			return q
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no streamed quote for %s", symbol)
	return model.Quote{}
}

func TestFeedServesStreamedQuote(t *testing.T) {
	want := model.Quote{
		Symbol: "AAPL",
		Price:  185.05,
		Bid:    185.04,
		Ask:    185.06,
		TS:     time.Now().UTC(),
	}
	raw, _ := json.Marshal(want)
	srv := quoteServer(t, [][]byte{raw})

	f, err := New(Config{URL: wsURL(srv)}, sim.NewData())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Start(ctx)
	}()

	waitForQuote(t, f, "AAPL")

	got, err := f.FetchQuote(ctx, "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if got.Price != want.Price || got.Ask != want.Ask {
		t.Fatalf("got quote %+v, want %+v", got, want)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestFeedFallsBackToDelegate(t *testing.T) {
	srv := quoteServer(t, nil)

	f, err := New(Config{URL: wsURL(srv)}, sim.NewData())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// No stream started; unseen symbol must come from the delegate.
	q, err := f.FetchQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if q.Symbol != "MSFT" || q.Price <= 0 {
		t.Fatalf("unexpected delegate quote: %+v", q)
	}
}

func TestFeedIgnoresStaleStreamedQuote(t *testing.T) {
	stale := model.Quote{
		Symbol: "TSLA",
		Price:  1.23,
		TS:     time.Now().UTC().Add(-time.Minute),
	}

	f, err := New(Config{URL: "ws://localhost:0/ws", StaleAfter: time.Second}, sim.NewData())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.apply(stale)

	q, err := f.FetchQuote(context.Background(), "TSLA")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if q.Price == stale.Price {
		t.Fatal("stale streamed quote served instead of delegate")
	}
}

// emptyData satisfies model.DataProvider with no data, so assembled bars
// are observable in isolation.
type emptyData struct{}

func (emptyData) FetchBars(ctx context.Context, symbol string, from, to time.Time, interval time.Duration) (model.Bars, error) {
	return nil, nil
}
func (emptyData) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	return model.Quote{}, nil
}
func (emptyData) FetchTopMovers(ctx context.Context, limit int) ([]model.Candidate, error) {
	return nil, nil
}
func (emptyData) HasRecentPositiveNews(ctx context.Context, symbol string, window time.Duration) bool {
	return false
}

func TestFeedAssemblesBarsFromStream(t *testing.T) {
	f, err := New(Config{URL: "ws://localhost:0/ws"}, emptyData{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t0 := time.Date(2026, 3, 10, 12, 0, 10, 0, time.UTC)
	f.apply(model.Quote{Symbol: "AAPL", Price: 100, Volume: 1000, TS: t0})
	f.apply(model.Quote{Symbol: "AAPL", Price: 110, Volume: 1500, TS: t0.Add(20 * time.Second)})
	f.apply(model.Quote{Symbol: "AAPL", Price: 105, Volume: 1600, TS: t0.Add(55 * time.Second)})

	bars, err := f.FetchBars(context.Background(), "AAPL",
		t0.Add(-time.Hour), t0.Add(time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2 (one closed, one forming)", len(bars))
	}

	closed := bars[0]
	if !closed.TS.Equal(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("closed bar ts = %v", closed.TS)
	}
	if closed.Open != 100 || closed.High != 110 || closed.Low != 100 || closed.Close != 110 {
		t.Errorf("closed bar ohlc = %+v", closed)
	}
	if closed.Volume != 500 {
		t.Errorf("closed bar volume = %v, want 500 (cumulative delta)", closed.Volume)
	}

	forming := bars[1]
	if forming.Open != 105 || forming.Close != 105 || forming.Volume != 100 {
		t.Errorf("forming bar = %+v", forming)
	}

	// Other intervals come straight from the delegate.
	bars, err = f.FetchBars(context.Background(), "AAPL",
		t0.Add(-time.Hour), t0.Add(time.Hour), 5*time.Minute)
	if err != nil {
		t.Fatalf("FetchBars 5m: %v", err)
	}
	if len(bars) != 0 {
		t.Fatalf("5m bars = %d, want 0", len(bars))
	}
}

func TestFeedSkipsMalformedMessages(t *testing.T) {
	good := model.Quote{Symbol: "NVDA", Price: 900.10, TS: time.Now().UTC()}
	raw, _ := json.Marshal(good)
	srv := quoteServer(t, [][]byte{
		[]byte("not json"),
		[]byte(`{"price":10}`), // missing symbol
		raw,
	})

	f, err := New(Config{URL: wsURL(srv)}, sim.NewData())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Start(ctx)

	q := waitForQuote(t, f, "NVDA")
	if q.Price != good.Price {
		t.Fatalf("got price %v, want %v", q.Price, good.Price)
	}
}
