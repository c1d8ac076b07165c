package calculator

import (
	"math"

	"FibSentinel/internal/model"
)

const (
	// swingWindow is the trailing window of the rolling low minimum.
	swingWindow = 10
	// swingMinPeriods is the number of bars a window needs before it yields a value.
	swingMinPeriods = 5
	// highWindowMin is the minimum number of bars from the low onward.
	highWindowMin = 5
)

// DetectSwing finds the most recent significant low of the series and the
// highest high on or after it. ok is false when the series is too short,
// holds malformed prices, or no low/high pair qualifies.
func DetectSwing(s model.Series) (res model.SwingResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			res, ok = model.SwingResult{}, false
		}
	}()

	bars := s.Sorted()
	if len(bars) < swingMinPeriods || !validBars(bars) {
		return model.SwingResult{}, false
	}

	lowIdx := recentLowIndex(bars)
	if lowIdx < 0 {
		return model.SwingResult{}, false
	}

	window := bars[lowIdx:]
	if len(window) < highWindowMin {
		return model.SwingResult{}, false
	}

	highIdx := -1
	for i, b := range window {
		if math.IsNaN(b.High) {
			continue
		}
		if highIdx < 0 || b.High > window[highIdx].High {
			highIdx = i
		}
	}
	if highIdx < 0 {
		return model.SwingResult{}, false
	}

	low := Round2(bars[lowIdx].Low)
	high := Round2(window[highIdx].High)
	return model.SwingResult{
		LowDate:          bars[lowIdx].Date,
		HighDate:         window[highIdx].Date,
		LowPrice:         low,
		HighPrice:        high,
		RetracementPrice: Retracement(low, high),
	}, true
}

// RecentLow returns the most recent bar whose low equals the trailing
// 10-bar rolling minimum. Ties keep the latest bar.
func RecentLow(s model.Series) (model.Bar, bool) {
	bars := s.Sorted()
	if len(bars) < swingMinPeriods || !validBars(bars) {
		return model.Bar{}, false
	}
	i := recentLowIndex(bars)
	if i < 0 {
		return model.Bar{}, false
	}
	return bars[i], true
}

func recentLowIndex(bars []model.Bar) int {
	lows := make([]float64, len(bars))
	for i, b := range bars {
		lows[i] = b.Low
	}
	rolling := rollingMin(lows, swingWindow, swingMinPeriods)

	idx := -1
	for i := range bars {
		if !math.IsNaN(rolling[i]) && lows[i] == rolling[i] {
			idx = i
		}
	}
	return idx
}

// rollingMin computes a trailing minimum over window values, skipping NaN.
// Positions with fewer than minPeriods non-NaN values in their window are NaN.
func rollingMin(vals []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		m, n := math.Inf(1), 0
		for j := start; j <= i; j++ {
			if math.IsNaN(vals[j]) {
				continue
			}
			n++
			if vals[j] < m {
				m = vals[j]
			}
		}
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = m
	}
	return out
}

// validBars rejects infinite or negative prices. NaN prices mark missing
// values and are skipped by the low and high scans.
func validBars(bars []model.Bar) bool {
	for _, b := range bars {
		if !validPrice(b.Low) || !validPrice(b.High) {
			return false
		}
	}
	return true
}

func validPrice(v float64) bool {
	return math.IsNaN(v) || (!math.IsInf(v, 0) && v >= 0)
}
