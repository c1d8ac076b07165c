package model

import "time"

// Pass is the outcome of one screen-and-analyze run.
type Pass struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Board      string
	Screened   int // quotes in the spot snapshot
	Reports    []*Report
	// History holds the series fetched during the pass, for persistence.
	History []Series
}

// Counts returns how many reports have a swing, a breakout and an error.
func (p *Pass) Counts() (swings, breakouts, failed int) {
	for _, r := range p.Reports {
		if r.Err != "" {
			failed++
			continue
		}
		if r.HasSwing() {
			swings++
		}
		if r.Breakout {
			breakouts++
		}
	}
	return swings, breakouts, failed
}
