// cmd/backtest replays a historical bar series through a strategy and
// prints a performance summary.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/AAPL.csv --symbol=AAPL --strategy=CustomStrategy --cash=10000
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"github.com/Spectavi/spectr/config"
	"github.com/Spectavi/spectr/internal/backtest"
	"github.com/Spectavi/spectr/internal/cache"
	"github.com/Spectavi/spectr/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	csvPath := flag.String("csv", "", "Path to OHLCV CSV file (required)")
	symbol := flag.String("symbol", "SIM", "Symbol label for the run")
	strategyName := flag.String("strategy", "CustomStrategy", "Strategy to run (see --list)")
	cash := flag.Float64("cash", 10000, "Starting cash")
	tradesOut := flag.String("trades", "", "Optional path to write the trade log CSV")
	list := flag.Bool("list", false, "List registered strategies and exit")
	flag.Parse()

	if *list {
		for _, name := range strategy.Names() {
			fmt.Println(name)
		}
		return
	}
	if *csvPath == "" {
		log.Fatal("[backtest] --csv is required")
	}

	bars, err := backtest.LoadCSV(*csvPath)
	if err != nil {
		log.Fatalf("[backtest] load csv: %v", err)
	}
	log.Printf("[backtest] loaded %d bars from %s", len(bars), *csvPath)

	appCfg := config.Load()
	cfg := appCfg.StrategyConfig()

	bar := initProgressBar(len(bars))
	sim := backtest.New()
	sim.OnBar = func(i, total int) { bar.Add(1) }

	result, err := sim.Run(bars, *symbol, cfg, *strategyName, *cash)
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}
	fmt.Println()
	printReport(result, *cash)

	if *tradesOut != "" {
		if err := backtest.WriteTradesCSV(result.Trades, *tradesOut); err != nil {
			log.Fatalf("[backtest] write trades: %v", err)
		}
		log.Printf("[backtest] trade log written to %s", *tradesOut)
	}

	// Persist the summary so the live UI can show the last run.
	if store, err := cache.OpenSQLite(appCfg.SQLitePath); err == nil {
		defer store.Close()
		summary := map[string]any{
			"symbol":      result.Symbol,
			"strategy":    result.Strategy,
			"final_value": result.FinalValue.String(),
			"trades":      len(result.Trades),
		}
		if err := store.Put(context.Background(), cache.KeyLastBacktest, summary); err != nil {
			log.Printf("[backtest] cache write failed: %v", err)
		}
	}
}

func printReport(r *backtest.Result, startingCash float64) {
	start := decimal.NewFromFloat(startingCash)
	profit := r.FinalValue.Sub(start)
	pct := decimal.Zero
	if start.IsPositive() {
		pct = profit.Div(start).Mul(decimal.NewFromInt(100))
	}

	fmt.Println("===== Backtest Report =====")
	fmt.Printf("Symbol:          %s\n", r.Symbol)
	fmt.Printf("Strategy:        %s\n", r.Strategy)
	fmt.Printf("Bars:            %d\n", len(r.Bars))
	fmt.Printf("Trades:          %d (%d buys / %d sells)\n", len(r.Trades), r.NumBuys(), r.NumSells())
	fmt.Printf("Starting Cash:   %s\n", start.StringFixed(2))
	fmt.Printf("Final Value:     %s\n", r.FinalValue.StringFixed(2))
	fmt.Printf("Net Profit:      %s (%s%%)\n", profit.StringFixed(2), pct.StringFixed(2))
	fmt.Println("===========================")

	if len(r.Trades) > 0 {
		fmt.Println("\n-- Trades --")
		for _, t := range r.Trades {
			fmt.Printf("%s  %-4s qty=%s price=%s  %s\n",
				t.Time.Format("2006-01-02 15:04"), t.Type, t.Qty.StringFixed(4),
				t.Price.StringFixed(2), t.Reason)
		}
	}
}

func initProgressBar(totalBars int) *progressbar.ProgressBar {
	return progressbar.NewOptions(totalBars,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
