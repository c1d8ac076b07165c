package model

import (
	"time"

	"github.com/guregu/null/v5"
)

// SwingResult is the most recent significant low and the subsequent high
// found on one series, plus the 0.618 retracement between them.
type SwingResult struct {
	LowDate          time.Time
	HighDate         time.Time
	LowPrice         float64
	HighPrice        float64
	RetracementPrice float64
}

// Reconciled carries a swing priced on both adjustment conventions.
// The forward fields are null when a swing date is missing from the
// forward series.
type Reconciled struct {
	LowBackward   float64
	HighBackward  float64
	LevelBackward float64
	LowForward    null.Float
	HighForward   null.Float
	LevelForward  null.Float
	Breakout      bool
}

// Report is the per-instrument output of a screen pass.
type Report struct {
	Code             string
	Name             string
	CurrentPrice     float64
	FloatMarketCapYi float64 // hundred millions of yuan
	Swing            *SwingResult
	LowBackward      null.Float
	HighBackward     null.Float
	LevelBackward    null.Float
	LowForward       null.Float
	HighForward      null.Float
	LevelForward     null.Float
	Breakout         bool
	Err              string
	AnalyzedAt       time.Time
}

// HasSwing reports whether a swing was detected for the instrument.
func (r *Report) HasSwing() bool { return r.Swing != nil }

// Apply copies the reconciled levels into the report.
func (r *Report) Apply(sw SwingResult, rec Reconciled) {
	r.Swing = &sw
	r.LowBackward = null.FloatFrom(rec.LowBackward)
	r.HighBackward = null.FloatFrom(rec.HighBackward)
	r.LevelBackward = null.FloatFrom(rec.LevelBackward)
	r.LowForward = rec.LowForward
	r.HighForward = rec.HighForward
	r.LevelForward = rec.LevelForward
	r.Breakout = rec.Breakout
}
