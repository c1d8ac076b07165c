package calculator

import (
	"github.com/guregu/null/v5"

	"FibSentinel/internal/model"
)

// Reconcile prices a swing found on the backward-adjusted series on the
// forward-adjusted one. Swing dates come from sw, the tradable prices from
// forward. A date missing from forward leaves its price and the forward
// level null while the backward fields stay populated.
func Reconcile(sw model.SwingResult, forward model.Series, lastPrice float64) model.Reconciled {
	rec := model.Reconciled{
		LowBackward:   sw.LowPrice,
		HighBackward:  sw.HighPrice,
		LevelBackward: sw.RetracementPrice,
	}

	idx := forward.Index()
	if b, ok := idx[sw.LowDate.Format(model.DateLayout)]; ok && validPrice(b.Low) {
		rec.LowForward = null.FloatFrom(Round2(b.Low))
	}
	if b, ok := idx[sw.HighDate.Format(model.DateLayout)]; ok && validPrice(b.High) {
		rec.HighForward = null.FloatFrom(Round2(b.High))
	}
	if rec.LowForward.Valid && rec.HighForward.Valid {
		rec.LevelForward = null.FloatFrom(Retracement(rec.LowForward.Float64, rec.HighForward.Float64))
	}
	rec.Breakout = IsBreakout(lastPrice, rec.LevelForward)
	return rec
}

// IsBreakout reports whether price is strictly above a present level.
func IsBreakout(price float64, level null.Float) bool {
	return level.Valid && validPrice(price) && price > level.Float64
}
