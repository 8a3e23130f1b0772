package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Spectavi/spectr/internal/model"
)

// LoadCSV reads a bar series from a CSV file with a header row. Recognized
// columns (case-insensitive): timestamp/time/date, open, high, low, close,
// volume. Timestamps may be RFC3339, "2006-01-02 15:04:05", "2006-01-02",
// or a unix epoch in seconds. Rows are injected so the result is sorted and
// de-duplicated regardless of file order.
func LoadCSV(path string) (model.Bars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses bars from r. See LoadCSV for the accepted layout.
func ReadCSV(r io.Reader) (model.Bars, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("backtest: read csv header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var bars model.Bars
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: read csv: %w", err)
		}
		line++
		bar, err := parseBar(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("backtest: csv line %d: %w", line, err)
		}
		bars = bars.Inject(bar)
	}
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	return bars, nil
}

// WriteTradesCSV dumps a trade log for offline inspection.
func WriteTradesCSV(trades []Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"time", "side", "price", "qty", "reason"})
	for _, t := range trades {
		_ = w.Write([]string{
			t.Time.Format(time.RFC3339),
			string(t.Type),
			t.Price.String(),
			t.Qty.String(),
			t.Reason,
		})
	}
	return nil
}

type columnMap struct {
	ts, open, high, low, close, volume int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{ts: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "timestamp", "time", "date", "datetime":
			cols.ts = i
		case "open", "o":
			cols.open = i
		case "high", "h":
			cols.high = i
		case "low", "l":
			cols.low = i
		case "close", "c":
			cols.close = i
		case "volume", "v", "vol":
			cols.volume = i
		}
	}
	if cols.ts < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0 {
		return cols, fmt.Errorf("backtest: csv header missing required columns: %v", header)
	}
	return cols, nil
}

func parseBar(rec []string, cols columnMap) (model.Bar, error) {
	var bar model.Bar
	ts, err := parseTime(rec[cols.ts])
	if err != nil {
		return bar, err
	}
	bar.TS = ts
	if bar.Open, err = strconv.ParseFloat(rec[cols.open], 64); err != nil {
		return bar, fmt.Errorf("open: %w", err)
	}
	if bar.High, err = strconv.ParseFloat(rec[cols.high], 64); err != nil {
		return bar, fmt.Errorf("high: %w", err)
	}
	if bar.Low, err = strconv.ParseFloat(rec[cols.low], 64); err != nil {
		return bar, fmt.Errorf("low: %w", err)
	}
	if bar.Close, err = strconv.ParseFloat(rec[cols.close], 64); err != nil {
		return bar, fmt.Errorf("close: %w", err)
	}
	if cols.volume >= 0 {
		if bar.Volume, err = strconv.ParseFloat(rec[cols.volume], 64); err != nil {
			return bar, fmt.Errorf("volume: %w", err)
		}
	}
	return bar, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
