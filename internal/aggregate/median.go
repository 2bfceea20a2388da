// Package aggregate computes median-of-medians, TWAP and OHLC reductions
// over raw entries, per spec.md §4.3, as pure functions over a slice with
// no framework and no hidden state.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"
)

// divPrecision is the decimal-place precision used for every division in
// this package's reductions, per spec.md §9's arbitrary-precision intent.
// decimal.DivisionPrecision defaults to 16, far short of that.
const divPrecision = 1000

// median returns the lower-middle element for an even-length input, per
// spec.md §4.3's tie-break rule. vs is sorted in place.
func median(vs []decimal.Decimal) decimal.Decimal {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Cmp(vs[j]) < 0 })
	n := len(vs)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 1 {
		return vs[n/2]
	}
	return vs[n/2-1]
}

func mean(vs []decimal.Decimal) decimal.Decimal {
	if len(vs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range vs {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(vs))), divPrecision)
}
