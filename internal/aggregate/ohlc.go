package aggregate

import (
	"sort"
	"time"

	"oracleflow/internal/domain"
)

// finestDivisor returns the median tier OHLC buckets of width target are
// derived from: 1s for widths below 5m, 10s for 5m and wider. Widths below
// 10s, or not evenly divided by that tier, have no source tier and report
// false.
func finestDivisor(target domain.BucketWidth) (domain.BucketWidth, bool) {
	fine := domain.Width10s
	if target < domain.Width5m {
		fine = domain.Width1s
	}
	if target < domain.Width10s || int64(target)%int64(fine) != 0 {
		return 0, false
	}
	return fine, true
}

// OHLC derives an OHLC bucket for pair-id over [bucketStart,
// bucketStart+width) from the finer median sub-buckets that fall within
// it, per spec.md §4.3. subBuckets must all share the same, finer width
// and be pre-filtered to the requested window.
func OHLC(pairID string, width domain.BucketWidth, bucketStart time.Time, subBuckets []domain.AggregatedBucket) (domain.OHLCBucket, bool) {
	if len(subBuckets) == 0 {
		return domain.OHLCBucket{}, false
	}

	sorted := append([]domain.AggregatedBucket(nil), subBuckets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BucketStart.Before(sorted[j].BucketStart) })

	open := sorted[0].Value
	close := sorted[len(sorted)-1].Value
	high := sorted[0].Value
	low := sorted[0].Value
	numSources := 0
	for _, b := range sorted {
		if b.Value.GreaterThan(high) {
			high = b.Value
		}
		if b.Value.LessThan(low) {
			low = b.Value
		}
		if b.NumSources > numSources {
			numSources = b.NumSources
		}
	}

	return domain.OHLCBucket{
		PairID:      pairID,
		Width:       width,
		BucketStart: bucketStart,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close,
		NumSources:  numSources,
	}, true
}
