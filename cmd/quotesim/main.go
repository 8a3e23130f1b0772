// cmd/quotesim — Demo WebSocket quote server.
// Broadcasts simulated quote data for testing spectr without real broker
// credentials.
//
// Quote JSON shape is identical to model.Quote:
//
//	{"symbol":"AAPL","price":185.05,"bid":185.04,"ask":185.06,"ts":"..."}
//
// Config (env vars):
//
//	QUOTE_SERVER_ADDR  — listen address  (default: ":9001")
//	QUOTE_SYMBOLS      — comma-separated symbols (default: "AAPL,TSLA,BTCUSD")
//	QUOTE_INTERVAL_MS  — broadcast interval milliseconds (default: "500")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Spectavi/spectr/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol    string
	Price     float64
	PrevClose float64
	Volume    float64
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop quote
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[quotesim] upgrade error: %v", err)
			return
		}
		log.Printf("[quotesim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[quotesim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends quote JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Quote generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			instruments[i].Volume += float64(rand.Intn(500) + 1)
			spread := instruments[i].Price * 0.0005
			msg := model.Quote{
				Symbol:    instruments[i].Symbol,
				Price:     instruments[i].Price,
				Bid:       instruments[i].Price - spread,
				Ask:       instruments[i].Price + spread,
				PrevClose: instruments[i].PrevClose,
				Volume:    instruments[i].Volume,
				TS:        time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[quotesim] starting demo quote server...")

	// Config
	addr := envOrDefault("QUOTE_SERVER_ADDR", ":9001")
	symbolsEnv := envOrDefault("QUOTE_SYMBOLS", "AAPL,TSLA,BTCUSD")
	intervalMs := envIntOrDefault("QUOTE_INTERVAL_MS", 500)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[quotesim] no symbols configured via QUOTE_SYMBOLS")
	}
	log.Printf("[quotesim] symbols: %+v", instruments)
	log.Printf("[quotesim] broadcast interval: %dms", intervalMs)

	h := newHub()

	// Start quote generator
	go runGenerator(h, instruments, intervalMs)

	// HTTP routes
	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"quotesim"}`)
	})

	log.Printf("[quotesim] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[quotesim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	// Rough starting prices so the walk begins somewhere plausible.
	defaultPrices := map[string]float64{
		"AAPL":   185.00,
		"TSLA":   250.00,
		"NVDA":   900.00,
		"BTCUSD": 65000.00,
		"ETHUSD": 3400.00,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		price := defaultPrices[sym]
		if price == 0 {
			price = 100.00
		}
		result = append(result, instrument{
			Symbol:    sym,
			Price:     price,
			PrevClose: price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
