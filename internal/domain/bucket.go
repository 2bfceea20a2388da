package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AggregationFlavor is the second-stage reduction applied across per-source
// aggregates.
type AggregationFlavor string

const (
	FlavorMedian AggregationFlavor = "median"
	FlavorTWAP   AggregationFlavor = "twap"
	FlavorMean   AggregationFlavor = "mean"
)

// BucketWidth is one of the tiered bucket intervals the engine maintains.
type BucketWidth time.Duration

// Supported widths, per spec.md §3. TWAP omits 100ms and 10s.
var (
	Width100ms = BucketWidth(100 * time.Millisecond)
	Width1s    = BucketWidth(time.Second)
	Width5s    = BucketWidth(5 * time.Second)
	Width10s   = BucketWidth(10 * time.Second)
	Width1m    = BucketWidth(time.Minute)
	Width5m    = BucketWidth(5 * time.Minute)
	Width15m   = BucketWidth(15 * time.Minute)
	Width1h    = BucketWidth(time.Hour)
	Width2h    = BucketWidth(2 * time.Hour)
	Width1d    = BucketWidth(24 * time.Hour)
	Width1w    = BucketWidth(7 * 24 * time.Hour)

	MedianWidths = []BucketWidth{Width100ms, Width1s, Width5s, Width10s, Width1m, Width5m, Width15m, Width1h, Width2h, Width1d, Width1w}
	TWAPWidths   = []BucketWidth{Width1s, Width5s, Width1m, Width5m, Width15m, Width1h, Width2h, Width1d, Width1w}
	OHLCWidths   = []BucketWidth{Width10s, Width1m, Width5m, Width15m, Width1h, Width1d, Width1w}
)

// Component is the per-source reduction contributing to a bucket's
// second-stage aggregate.
type Component struct {
	Source          string          `json:"source"`
	SourceAggregate decimal.Decimal `json:"value"`
	SubBucketStart  time.Time       `json:"sub_bucket_start"`
}

// AggregatedBucket is a single (flavor, width) tier's computed value for a
// pair over one bucket window.
type AggregatedBucket struct {
	PairID      string            `json:"pair_id"`
	Flavor      AggregationFlavor `json:"flavor"`
	Width       BucketWidth       `json:"width"`
	BucketStart time.Time         `json:"bucket_start"`
	Value       decimal.Decimal   `json:"value"`
	NumSources  int               `json:"num_sources"`
	Components  []Component       `json:"components"`
}

// BucketEnd returns the half-open window's exclusive upper bound.
func (b AggregatedBucket) BucketEnd() time.Time {
	return b.BucketStart.Add(time.Duration(b.Width))
}

// OHLCBucket is the open/high/low/close quadruple for a pair over one
// bucket window, derived from a finer median tier.
type OHLCBucket struct {
	PairID      string          `json:"pair_id"`
	Width       BucketWidth     `json:"width"`
	BucketStart time.Time       `json:"bucket_start"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	NumSources  int             `json:"num_sources"`
}

// MinSourcesFor returns the minimum num-sources a bucket of this flavor
// needs to be included in a query response. OHLC buckets require at least
// 3 per spec.md §3; other tiers default to 1.
func MinSourcesFor(flavor AggregationFlavor, isOHLC bool) int {
	if isOHLC {
		return 3
	}
	return 1
}
