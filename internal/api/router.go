// Package api exposes the assistant's state over HTTP: pending signals,
// indicator frames, quotes, the equity curve, and scanner results, plus
// the confirm/dismiss endpoints that drive manual trading mode.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/Spectavi/spectr/config"
	"github.com/Spectavi/spectr/internal/orchestrator"
)

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

type idRequest struct {
	ID int64 `json:"id"`
}

// NewRouter builds the control-plane mux for a running orchestrator.
func NewRouter(orch *orchestrator.Orchestrator, cfg config.Orchestrator, processStart time.Time) *http.ServeMux {
	mux := http.NewServeMux()

	// REST: signals awaiting manual confirmation
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.PendingSignals())
	})

	mux.HandleFunc("/api/signals/confirm", resolveHandler(orch.ConfirmSignal))
	mux.HandleFunc("/api/signals/dismiss", resolveHandler(orch.DismissSignal))

	// REST: cancel a pending broker order
	mux.HandleFunc("/api/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != "POST" {
			http.Error(w, `{"error":"POST only"}`, http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		ok, err := orch.CancelOrder(r.Context(), req.ID)
		if err != nil {
			log.Printf("[api] cancel order %s: %v", req.ID, err)
			http.Error(w, `{"error":"cancel failed"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"canceled": ok})
	})

	// REST: latest indicator frame for one symbol. Warmup bars carry NaN,
	// which JSON cannot represent, so only finite latest values are sent.
	mux.HandleFunc("/api/frame", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		symbol := r.URL.Query().Get("symbol")
		f, ok := orch.Frame(symbol)
		if !ok {
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
			return
		}

		latest := make(map[string]float64, len(f.Columns))
		last := f.Len() - 1
		for col := range f.Columns {
			if v := f.At(col, last); !math.IsNaN(v) {
				latest[col] = v
			}
		}
		crossover := ""
		if last >= 0 && last < len(f.Crossover) {
			crossover = f.Crossover[last]
		}
		lastBar, _ := f.Bars.Last()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":    symbol,
			"bars":      f.Len(),
			"last_bar":  lastBar,
			"latest":    latest,
			"crossover": crossover,
		})
	})

	// REST: latest quote for one symbol
	mux.HandleFunc("/api/quote", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		symbol := r.URL.Query().Get("symbol")
		q, ok := orch.Quote(symbol)
		if !ok {
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(q)
	})

	// REST: rolling equity curve, oldest first
	mux.HandleFunc("/api/equity", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.EquityCurve())
	})

	// REST: latest scanner sweep
	mux.HandleFunc("/api/scan", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.ScanResults())
	})

	// REST: effective configuration
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbols":      cfg.Symbols,
			"strategy":     cfg.Strategy,
			"auto_trading": cfg.AutoTrading,
			"trade_amount": cfg.TradeAmount,
			"poll_sec":     int(cfg.PollInterval.Seconds()),
			"scan_sec":     int(cfg.ScanInterval.Seconds()),
		})
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"signals":    len(orch.PendingSignals()),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	return mux
}

// resolveHandler builds the confirm and dismiss POST handlers, which differ
// only in the orchestrator call they make.
func resolveHandler(resolve func(ctx context.Context, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != "POST" {
			http.Error(w, `{"error":"POST only"}`, http.StatusMethodNotAllowed)
			return
		}
		var req idRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		if err := resolve(r.Context(), req.ID); err != nil {
			if errors.Is(err, orchestrator.ErrSignalNotFound) {
				http.Error(w, `{"error":"signal not found"}`, http.StatusNotFound)
				return
			}
			log.Printf("[api] resolve signal %d: %v", req.ID, err)
			http.Error(w, `{"error":"resolve failed"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
