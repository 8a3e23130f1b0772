// Package indicator computes technical indicator columns over a bar series.
//
// Compute builds an immutable Frame from scratch on every call: no indicator
// state is carried between refreshes, which guarantees that live evaluation
// and historical replay of the same bars produce identical values. Cells
// without enough history are NaN; strategies treat NaN as "not enough data,
// no signal".
package indicator

import (
	"math"
	"strconv"

	"github.com/Spectavi/spectr/internal/model"
)

// Well-known spec names.
const (
	MACD           = "macd"
	BollingerBands = "bollingerbands"
	VWAP           = "vwap"
	SMA            = "sma"
)

// Frame column names.
const (
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColBBUpper    = "bb_upper"
	ColBBMid      = "bb_mid"
	ColBBLower    = "bb_lower"
	ColVWAP       = "vwap"
)

// Spec requests a single indicator by name with its parameters. Zero-valued
// fields fall back to the indicator's defaults.
type Spec struct {
	Name       string
	Window     int     // bollingerbands, sma
	WindowFast int     // macd
	WindowSlow int     // macd
	WindowSig  int     // macd signal line
	WindowDev  float64 // bollingerbands deviation multiplier
	Column     string  // sma output column override, e.g. "ma_fast"
}

// Frame is a bar series annotated with computed indicator columns, all
// aligned to the bars by index. Immutable once returned by Compute.
type Frame struct {
	Bars      model.Bars
	Columns   map[string][]float64
	Crossover []string // per-bar MACD crossover flag: "buy", "sell" or ""
}

// Len returns the number of bars in the frame.
func (f *Frame) Len() int { return len(f.Bars) }

// At returns column col at bar index i, or NaN when the column is absent or
// the index out of range.
func (f *Frame) At(col string, i int) float64 {
	c, ok := f.Columns[col]
	if !ok || i < 0 || i >= len(c) {
		return math.NaN()
	}
	return c[i]
}

// Last returns column col at the final bar.
func (f *Frame) Last(col string) float64 {
	return f.At(col, len(f.Bars)-1)
}

// CrossoverAt returns the MACD crossover flag at bar index i.
func (f *Frame) CrossoverAt(i int) string {
	if i < 0 || i >= len(f.Crossover) {
		return ""
	}
	return f.Crossover[i]
}

// Compute returns a Frame holding only the columns the given specs request.
// Strategies declare exactly what they need, which keeps the backtest and
// live paths consistent and avoids computing unused columns.
func Compute(bars model.Bars, specs []Spec) *Frame {
	f := &Frame{
		Bars:    bars,
		Columns: make(map[string][]float64, 2*len(specs)),
	}
	for _, spec := range specs {
		switch spec.Name {
		case MACD:
			computeMACD(f, spec)
		case BollingerBands:
			computeBollinger(f, spec)
		case VWAP:
			computeVWAP(f)
		case SMA:
			computeSMA(f, spec)
		}
	}
	return f
}

func computeMACD(f *Frame, spec Spec) {
	fast, slow, sig := spec.WindowFast, spec.WindowSlow, spec.WindowSig
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if sig <= 0 {
		sig = 9
	}
	closes := f.Bars.Closes()
	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)

	line := make([]float64, len(closes))
	for i := range line {
		line[i] = emaFast[i] - emaSlow[i] // NaN while either EMA warms up
	}
	signal := EMASeries(line, sig)

	f.Columns[ColMACD] = line
	f.Columns[ColMACDSignal] = signal
	f.Crossover = crossovers(line, signal)
}

// crossovers flags the bar where the MACD line crosses its signal line,
// comparing each bar only to its immediate predecessor. NaN comparisons are
// false, so warmup bars never flag.
func crossovers(line, signal []float64) []string {
	out := make([]string, len(line))
	for i := 1; i < len(line); i++ {
		switch {
		case line[i] > signal[i] && line[i-1] <= signal[i-1]:
			out[i] = "buy"
		case line[i] < signal[i] && line[i-1] >= signal[i-1]:
			out[i] = "sell"
		}
	}
	return out
}

func computeBollinger(f *Frame, spec Spec) {
	window := spec.Window
	if window <= 0 {
		window = 20
	}
	dev := spec.WindowDev
	if dev == 0 {
		dev = 2.0
	}
	mean, std := MeanStd(f.Bars.Closes(), window)
	n := len(mean)
	upper := make([]float64, n)
	lower := make([]float64, n)
	mid := make([]float64, n)
	for i := 0; i < n; i++ {
		upper[i] = mean[i] + dev*std[i]
		lower[i] = mean[i] - dev*std[i]
		mid[i] = (upper[i] + lower[i]) / 2
	}
	f.Columns[ColBBUpper] = upper
	f.Columns[ColBBLower] = lower
	f.Columns[ColBBMid] = mid
}

// computeVWAP accumulates over the entire supplied series. The engine never
// resets at session boundaries; callers wanting a session VWAP truncate the
// input to one session first.
func computeVWAP(f *Frame) {
	out := make([]float64, len(f.Bars))
	var sumPV, sumV float64
	for i, b := range f.Bars {
		sumPV += b.Close * b.Volume
		sumV += b.Volume
		if sumV == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sumPV / sumV
		}
	}
	f.Columns[ColVWAP] = out
}

func computeSMA(f *Frame, spec Spec) {
	window := spec.Window
	if window <= 0 {
		window = 20
	}
	col := spec.Column
	if col == "" {
		col = "sma_" + strconv.Itoa(window)
	}
	f.Columns[col] = PartialSMA(f.Bars.Closes(), window)
}
