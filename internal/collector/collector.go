package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FibSentinel/internal/calculator"
	"FibSentinel/internal/config"
	"FibSentinel/internal/model"
	"FibSentinel/internal/screen"
)

// Collector screens the market and computes retracement levels per instrument.
type Collector struct {
	Fetcher     Fetcher
	Screen      config.Screen
	Concurrency int
	HistoryDays int
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, cfg *config.Config) *Collector {
	return &Collector{
		Fetcher:     fetcher,
		Screen:      cfg.Screen,
		Concurrency: cfg.Analysis.Concurrency,
		HistoryDays: cfg.Analysis.HistoryDays,
	}
}

// ScreenQuotes fetches the spot snapshot and returns the quotes passing the
// configured criteria, in snapshot order, plus the snapshot size.
func (c *Collector) ScreenQuotes(ctx context.Context) ([]model.Quote, int, error) {
	quotes, err := c.Fetcher.FetchSpot(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch spot: %w", err)
	}

	var members []string
	if c.Screen.Board != "" {
		members, err = c.Fetcher.FetchBoardMembers(ctx, c.Screen.Board)
		if err != nil {
			return nil, len(quotes), fmt.Errorf("fetch board members: %w", err)
		}
	}

	passed := screen.Apply(quotes, screen.Criteria(c.Screen, members))
	zerolog.Ctx(ctx).Info().Msgf("screened %d of %d quotes", len(passed), len(quotes))
	return passed, len(quotes), nil
}

// Analyze computes the report for a single instrument. Failures are
// recorded on the report, never returned.
func (c *Collector) Analyze(ctx context.Context, q model.Quote) *model.Report {
	r, _ := c.analyze(ctx, q)
	return r
}

func (c *Collector) analyze(ctx context.Context, q model.Quote) (*model.Report, []model.Series) {
	logger := zerolog.Ctx(ctx).With().Str("code", q.Code).Logger()
	r := &model.Report{
		Code:             q.Code,
		Name:             q.Name,
		CurrentPrice:     q.LastPrice,
		FloatMarketCapYi: calculator.Yi(q.FloatMarketCap),
		AnalyzedAt:       time.Now(),
	}

	backward, err := c.Fetcher.FetchDailyBars(ctx, q.Code, model.Backward, c.HistoryDays)
	if err != nil {
		logger.Warn().Msgf("backward bars failed: %v", err)
		r.Err = err.Error()
		return r, nil
	}
	history := []model.Series{backward}

	sw, ok := calculator.DetectSwing(backward)
	if !ok {
		logger.Debug().Msgf("no swing in %d bars", len(backward.Bars))
		return r, history
	}

	forward, err := c.Fetcher.FetchDailyBars(ctx, q.Code, model.Forward, c.HistoryDays)
	if err != nil {
		// Keep the backward levels; the forward side stays null.
		logger.Warn().Msgf("forward bars failed: %v", err)
		r.Err = err.Error()
		forward = model.Series{Code: q.Code, Adjustment: model.Forward}
	} else {
		history = append(history, forward)
	}

	rec := calculator.Reconcile(sw, forward, q.LastPrice)
	r.Apply(sw, rec)
	if !rec.LevelForward.Valid && err == nil {
		logger.Debug().Msgf("swing dates %s/%s missing from forward series",
			sw.LowDate.Format(model.DateLayout), sw.HighDate.Format(model.DateLayout))
	}
	return r, history
}

// AnalyzeAll analyzes quotes on a bounded worker pool. Reports come back in
// input order; one failing instrument never stops the others.
func (c *Collector) AnalyzeAll(ctx context.Context, quotes []model.Quote) []*model.Report {
	reports, _ := c.analyzeAll(ctx, quotes)
	return reports
}

func (c *Collector) analyzeAll(ctx context.Context, quotes []model.Quote) ([]*model.Report, []model.Series) {
	workers := c.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(quotes) {
		workers = len(quotes)
	}

	reports := make([]*model.Report, len(quotes))
	histories := make([][]model.Series, len(quotes))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					reports[i] = &model.Report{
						Code:         quotes[i].Code,
						Name:         quotes[i].Name,
						CurrentPrice: quotes[i].LastPrice,
						Err:          err.Error(),
						AnalyzedAt:   time.Now(),
					}
					continue
				}
				reports[i], histories[i] = c.analyze(ctx, quotes[i])
			}
		}()
	}

	for i := range quotes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var all []model.Series
	for _, h := range histories {
		all = append(all, h...)
	}
	return reports, all
}

// Run performs one full pass: screen, then analyze every passing quote.
func (c *Collector) Run(ctx context.Context) (*model.Pass, error) {
	pass := &model.Pass{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Board:     c.Screen.Board,
	}
	logger := zerolog.Ctx(ctx).With().Str("run", pass.RunID).Logger()
	ctx = logger.WithContext(ctx)

	quotes, total, err := c.ScreenQuotes(ctx)
	pass.Screened = total
	if err != nil {
		return pass, err
	}

	reports, history := c.analyzeAll(ctx, quotes)
	pass.Reports = reports
	pass.History = history
	pass.FinishedAt = time.Now()

	swings, breakouts, failed := pass.Counts()
	logger.Info().Msgf("pass done in %v: %d analyzed, %d swings, %d breakouts, %d failed",
		pass.FinishedAt.Sub(pass.StartedAt).Round(time.Millisecond), len(reports), swings, breakouts, failed)
	return pass, nil
}
