// Package scanner sweeps the market for momentum candidates. Results are
// informational only: rows feed the watch UI and cache, they never place
// orders.
package scanner

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Spectavi/spectr/internal/model"
)

// Config tunes the candidate filter.
type Config struct {
	Limit          int           // top movers to pull per sweep
	MinChangePct   float64       // fraction vs previous close, e.g. 0.05
	VolumeMultiple float64       // today's volume vs average, e.g. 3
	NewsWindow     time.Duration // recency window for the news check
	Workers        int           // concurrent per-symbol lookups
}

// DefaultConfig matches the stock momentum filter: up at least 5% on the
// day, trading at 3x average volume, with positive news in the last 48h.
func DefaultConfig() Config {
	return Config{
		Limit:          50,
		MinChangePct:   0.05,
		VolumeMultiple: 3,
		NewsWindow:     48 * time.Hour,
		Workers:        8,
	}
}

// Scanner filters top movers down to candidates worth watching.
type Scanner struct {
	data model.DataProvider
	cfg  Config
	log  *slog.Logger
}

// New returns a Scanner over the given data provider.
func New(data model.DataProvider, cfg Config, log *slog.Logger) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{data: data, cfg: cfg, log: log}
}

// Scan pulls the day's top movers and enriches each concurrently. Every
// mover comes back as a Candidate with Passed set iff it cleared all
// filters; rows are sorted by percent change, best first. A canceled
// context returns whatever was gathered so far along with ctx.Err().
func (s *Scanner) Scan(ctx context.Context) ([]model.Candidate, error) {
	movers, err := s.data.FetchTopMovers(ctx, s.cfg.Limit)
	if err != nil {
		return nil, err
	}

	jobs := make(chan model.Candidate)
	results := make(chan model.Candidate)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				if c, ok := s.check(ctx, row); ok {
					select {
					case results <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, row := range movers {
			select {
			case jobs <- row:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]model.Candidate, 0, len(movers))
	for c := range results {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ChangePct > out[j].ChangePct })
	return out, ctx.Err()
}

// Passed narrows a scan result to the rows that cleared every filter.
func Passed(rows []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(rows))
	for _, r := range rows {
		if r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// check enriches one mover row and applies the filters.
func (s *Scanner) check(ctx context.Context, row model.Candidate) (model.Candidate, bool) {
	quote, err := s.data.FetchQuote(ctx, row.Symbol)
	if err != nil {
		s.log.Debug("scanner quote fetch failed", "symbol", row.Symbol, "err", err)
		return row, false
	}

	row.Price = quote.Price
	row.Volume = quote.Volume
	row.AvgVolume = quote.AvgVolume
	if quote.AvgVolume > 0 {
		row.VolumeRatio = quote.Volume / quote.AvgVolume
	}
	if quote.PrevClose > 0 {
		row.ChangePct = (quote.Price - quote.PrevClose) / quote.PrevClose
	}

	row.Passed = true
	if quote.PrevClose <= 0 || row.ChangePct < s.cfg.MinChangePct {
		row.Passed = false
	}
	if quote.AvgVolume <= 0 || quote.Volume < s.cfg.VolumeMultiple*quote.AvgVolume {
		row.Passed = false
	}
	if row.Passed {
		// News is the most expensive check, so it runs last.
		row.HasNews = s.data.HasRecentPositiveNews(ctx, row.Symbol, s.cfg.NewsWindow)
		if !row.HasNews {
			row.Passed = false
		}
	}
	return row, true
}
