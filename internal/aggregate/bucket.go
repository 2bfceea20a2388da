package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"oracleflow/internal/domain"
)

// bySourceMedians computes a per-source median over entries, per spec.md
// §4.3 step 1. Perp entries are pre-filtered to expiration = nil by the
// caller before this is invoked.
func bySourceMedians(entries []domain.SpotEntry, bucketStart time.Time) []domain.Component {
	bySource := make(map[string][]domain.SpotEntry)
	for _, e := range entries {
		bySource[e.Source] = append(bySource[e.Source], e)
	}

	components := make([]domain.Component, 0, len(bySource))
	for source, es := range bySource {
		prices := make([]decimal.Decimal, len(es))
		earliest := es[0].Timestamp
		for i, e := range es {
			prices[i] = e.Price
			if e.Timestamp < earliest {
				earliest = e.Timestamp
			}
		}
		components = append(components, domain.Component{
			Source:          source,
			SourceAggregate: median(prices),
			SubBucketStart:  time.UnixMilli(earliest),
		})
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Source < components[j].Source })
	return components
}

// Median computes the median-of-medians bucket for pair-id over
// [bucketStart, bucketStart+width), per spec.md §4.3.
func Median(pairID string, width domain.BucketWidth, bucketStart time.Time, entries []domain.SpotEntry) domain.AggregatedBucket {
	components := bySourceMedians(entries, bucketStart)
	perSource := make([]decimal.Decimal, len(components))
	for i, c := range components {
		perSource[i] = c.SourceAggregate
	}
	return domain.AggregatedBucket{
		PairID:      pairID,
		Flavor:      domain.FlavorMedian,
		Width:       width,
		BucketStart: bucketStart,
		Value:       median(perSource),
		NumSources:  len(components),
		Components:  components,
	}
}

// TWAP computes the time-weighted average bucket for pair-id, per spec.md
// §4.3: per-source linear TWAP, then the arithmetic mean across sources.
func TWAP(pairID string, width domain.BucketWidth, bucketStart, bucketEnd time.Time, entries []domain.SpotEntry) domain.AggregatedBucket {
	bySource := make(map[string][]domain.SpotEntry)
	for _, e := range entries {
		bySource[e.Source] = append(bySource[e.Source], e)
	}

	components := make([]domain.Component, 0, len(bySource))
	perSourceTWAP := make([]decimal.Decimal, 0, len(bySource))
	for source, es := range bySource {
		sort.Slice(es, func(i, j int) bool { return es[i].Timestamp < es[j].Timestamp })
		twap := sourceTWAP(es, bucketStart, bucketEnd)
		components = append(components, domain.Component{
			Source:          source,
			SourceAggregate: twap,
			SubBucketStart:  time.UnixMilli(es[0].Timestamp),
		})
		perSourceTWAP = append(perSourceTWAP, twap)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Source < components[j].Source })

	return domain.AggregatedBucket{
		PairID:      pairID,
		Flavor:      domain.FlavorTWAP,
		Width:       width,
		BucketStart: bucketStart,
		Value:       mean(perSourceTWAP),
		NumSources:  len(components),
		Components:  components,
	}
}

// sourceTWAP computes the linearly time-weighted average of es within
// [start, end). With fewer than 2 observations the source contributes its
// single value, per spec.md §4.3's tie-break rule.
func sourceTWAP(es []domain.SpotEntry, start, end time.Time) decimal.Decimal {
	if len(es) == 1 {
		return es[0].Price
	}
	totalWeight := decimal.Zero
	weightedSum := decimal.Zero
	for i := 0; i < len(es); i++ {
		segStart := time.UnixMilli(es[i].Timestamp)
		var segEnd time.Time
		if i+1 < len(es) {
			segEnd = time.UnixMilli(es[i+1].Timestamp)
		} else {
			segEnd = end
		}
		if segEnd.Before(segStart) {
			continue
		}
		weight := decimal.NewFromInt(segEnd.Sub(segStart).Milliseconds())
		weightedSum = weightedSum.Add(es[i].Price.Mul(weight))
		totalWeight = totalWeight.Add(weight)
	}
	if totalWeight.IsZero() {
		return es[len(es)-1].Price
	}
	return weightedSum.DivRound(totalWeight, divPrecision)
}
