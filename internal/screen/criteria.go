// Package screen filters spot quotes down to the instruments worth analyzing.
package screen

import (
	"math"
	"strings"

	"FibSentinel/internal/config"
	"FibSentinel/internal/model"
)

// Criterion reports whether a quote passes one screening rule.
type Criterion func(*model.Quote) bool

// And passes when every non-nil criterion passes.
func And(cs ...Criterion) Criterion {
	return func(q *model.Quote) bool {
		if q == nil {
			return false
		}
		for _, c := range cs {
			if c == nil {
				continue
			}
			if !c(q) {
				return false
			}
		}
		return true
	}
}

// Or passes when any non-nil criterion passes.
func Or(cs ...Criterion) Criterion {
	return func(q *model.Quote) bool {
		if q == nil {
			return false
		}
		for _, c := range cs {
			if c == nil {
				continue
			}
			if c(q) {
				return true
			}
		}
		return false
	}
}

// Tradable drops quotes without a usable last price (suspended listings
// report zero or a placeholder).
func Tradable(q *model.Quote) bool {
	return q.LastPrice > 0 && !math.IsInf(q.LastPrice, 0) && !math.IsNaN(q.LastPrice)
}

// FloatCapBand passes float market caps within [min, max] yuan, both ends inclusive.
func FloatCapBand(min, max float64) Criterion {
	return func(q *model.Quote) bool {
		return q.FloatMarketCap >= min && q.FloatMarketCap <= max
	}
}

// PriceAtMost passes last prices at or below max.
func PriceAtMost(max float64) Criterion {
	return func(q *model.Quote) bool { return q.LastPrice <= max }
}

// ExcludeName drops names containing substr, case-sensitively. An empty
// substr disables the rule.
func ExcludeName(substr string) Criterion {
	if substr == "" {
		return nil
	}
	return func(q *model.Quote) bool {
		return !strings.Contains(q.Name, substr)
	}
}

// CodePrefixIn passes codes starting with one of the prefixes. No prefixes
// disables the rule.
func CodePrefixIn(prefixes ...string) Criterion {
	if len(prefixes) == 0 {
		return nil
	}
	return func(q *model.Quote) bool {
		code := strings.TrimSpace(q.Code)
		for _, p := range prefixes {
			if strings.HasPrefix(code, p) {
				return true
			}
		}
		return false
	}
}

// NameAnyOf passes names containing any keyword. No keywords disables the rule.
func NameAnyOf(keywords ...string) Criterion {
	var cs []Criterion
	for _, k := range keywords {
		if k == "" {
			continue
		}
		k := k
		cs = append(cs, func(q *model.Quote) bool { return strings.Contains(q.Name, k) })
	}
	if len(cs) == 0 {
		return nil
	}
	return Or(cs...)
}

// MemberOf passes codes in the given membership list. A nil list disables
// the rule; an empty non-nil list rejects everything.
func MemberOf(codes []string) Criterion {
	if codes == nil {
		return nil
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[strings.TrimSpace(c)] = struct{}{}
	}
	return func(q *model.Quote) bool {
		_, ok := set[strings.TrimSpace(q.Code)]
		return ok
	}
}

// Criteria builds the configured screen. members restricts the screen to a
// board's constituents when non-nil.
func Criteria(cfg config.Screen, members []string) Criterion {
	return And(
		Tradable,
		FloatCapBand(cfg.MinCap(), cfg.MaxCap()),
		PriceAtMost(cfg.MaxPrice),
		ExcludeName(cfg.ExcludeName),
		CodePrefixIn(cfg.CodePrefixes...),
		NameAnyOf(cfg.NameKeywords...),
		MemberOf(members),
	)
}

// Apply returns the quotes passing c, in input order.
func Apply(quotes []model.Quote, c Criterion) []model.Quote {
	out := make([]model.Quote, 0, len(quotes)/4)
	for i := range quotes {
		if c(&quotes[i]) {
			out = append(out, quotes[i])
		}
	}
	return out
}
