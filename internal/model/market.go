package model

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day layout used for bar dates.
const DateLayout = "2006-01-02"

// Adjustment is a historical price-adjustment convention.
type Adjustment string

const (
	// Backward restates past prices in terms of today's share structure (hfq).
	Backward Adjustment = "hfq"
	// Forward keeps prices close to what was actually quoted at the time (qfq).
	Forward Adjustment = "qfq"
)

// Bar represents a single daily candlestick.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Day returns the bar's calendar day key.
func (b Bar) Day() string { return b.Date.Format(DateLayout) }

// Series holds the daily bars of one instrument under one adjustment.
type Series struct {
	Code       string
	Adjustment Adjustment
	Bars       []Bar
}

// Sorted returns the bars ascending by date. A later duplicate of a day
// replaces an earlier one, so every day appears once.
func (s Series) Sorted() []Bar {
	byDay := make(map[string]int, len(s.Bars))
	out := make([]Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if i, ok := byDay[b.Day()]; ok {
			out[i] = b
			continue
		}
		byDay[b.Day()] = len(out)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Index returns a day -> bar lookup.
func (s Series) Index() map[string]Bar {
	idx := make(map[string]Bar, len(s.Bars))
	for _, b := range s.Bars {
		idx[b.Day()] = b
	}
	return idx
}

// ParseDay parses a "2006-01-02" day into a UTC midnight time.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Quote is a spot snapshot row for one listed instrument.
type Quote struct {
	Code           string
	Name           string
	LastPrice      float64
	FloatMarketCap float64 // yuan
}

// Board is a concept board grouping instruments.
type Board struct {
	Code string
	Name string
}
