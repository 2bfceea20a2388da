package aggregate

import (
	"math"

	"github.com/shopspring/decimal"

	"oracleflow/internal/domain"
)

// FilterOutliers drops sources whose per-source median falls outside
// [μ-2σ, μ+2σ] of the raw-price distribution, per spec.md §4.3's optional
// outlier policy. It requires num-sources > 2 to activate; otherwise
// entries pass through unchanged.
func FilterOutliers(entries []domain.SpotEntry) []domain.SpotEntry {
	bySource := make(map[string][]domain.SpotEntry)
	for _, e := range entries {
		bySource[e.Source] = append(bySource[e.Source], e)
	}
	if len(bySource) <= 2 {
		return entries
	}

	raw := make([]float64, len(entries))
	for i, e := range entries {
		f, _ := e.Price.Float64()
		raw[i] = f
	}
	mu, sigma := meanStddev(raw)
	if sigma == 0 {
		return entries
	}
	lower := mu - 2*sigma
	upper := mu + 2*sigma

	out := make([]domain.SpotEntry, 0, len(entries))
	for source, es := range bySource {
		prices := make([]decimal.Decimal, len(es))
		for i, e := range es {
			prices[i] = e.Price
		}
		agg, _ := median(append([]decimal.Decimal(nil), prices...)).Float64()
		if agg < lower || agg > upper {
			continue
		}
		_ = source
		out = append(out, es...)
	}
	return out
}

func meanStddev(vs []float64) (mu, sigma float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	mu = sum / float64(len(vs))

	var sqDiff float64
	for _, v := range vs {
		d := v - mu
		sqDiff += d * d
	}
	sigma = math.Sqrt(sqDiff / float64(len(vs)))
	return mu, sigma
}
