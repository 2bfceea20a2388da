package aggregate

import (
	"context"
	"time"

	"oracleflow/internal/apierr"
	"oracleflow/internal/domain"
)

// RawReader is the narrow capability the engine needs from internal/store.
type RawReader interface {
	ReadRaw(ctx context.Context, pairID string, from, to time.Time) ([]domain.SpotEntry, error)
}

// Engine computes on-demand aggregates over raw entries read from a
// RawReader. Buckets are never materialized at rest; every query recomputes
// from the raw table, trading CPU for the freshness and gap-honesty
// spec.md §4.3 requires.
type Engine struct {
	reader       RawReader
	outlierTiers map[domain.BucketWidth]bool
}

// Option configures optional behavior on an Engine.
type Option func(*Engine)

// WithOutlierFiltering enables the μ±2σ outlier policy for the given
// tiers, per spec.md §4.3's "tiers flagged for filtering" clause.
func WithOutlierFiltering(widths ...domain.BucketWidth) Option {
	return func(e *Engine) {
		for _, w := range widths {
			e.outlierTiers[w] = true
		}
	}
}

// New builds an Engine. By default no tier applies outlier filtering; only
// the 10s tier does, passed explicitly via WithOutlierFiltering by the
// caller wiring it up.
func New(reader RawReader, opts ...Option) *Engine {
	e := &Engine{reader: reader, outlierTiers: make(map[domain.BucketWidth]bool)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func truncate(t time.Time, width domain.BucketWidth) time.Time {
	d := time.Duration(width)
	return t.Truncate(d)
}

// rawForBucket loads entries for [bucketStart, bucketStart+width) and
// applies outlier filtering if the tier is flagged.
func (e *Engine) rawForBucket(ctx context.Context, pairID string, width domain.BucketWidth, bucketStart time.Time) ([]domain.SpotEntry, error) {
	end := bucketStart.Add(time.Duration(width))
	entries, err := e.reader.ReadRaw(ctx, pairID, bucketStart, end.Add(-time.Millisecond))
	if err != nil {
		return nil, err
	}
	if e.outlierTiers[width] {
		entries = FilterOutliers(entries)
	}
	return entries, nil
}

// isClosed reports whether bucketStart+width has fully elapsed as of now,
// per spec.md §4.3's "never interpolate into the future" rule.
func isClosed(bucketStart time.Time, width domain.BucketWidth, now time.Time) bool {
	return !bucketStart.Add(time.Duration(width)).After(now)
}

// PointMedian returns the smallest closed tier's median bucket containing
// instant t, per spec.md §4.3's point-query rule.
func (e *Engine) PointMedian(ctx context.Context, pairID string, t time.Time) (domain.AggregatedBucket, error) {
	now := time.Now()
	for _, w := range domain.MedianWidths {
		start := truncate(t, w)
		if !isClosed(start, w, now) {
			continue
		}
		entries, err := e.rawForBucket(ctx, pairID, w, start)
		if err != nil {
			return domain.AggregatedBucket{}, err
		}
		if len(entries) == 0 {
			continue
		}
		b := Median(pairID, w, start, entries)
		if b.NumSources >= domain.MinSourcesFor(domain.FlavorMedian, false) {
			return b, nil
		}
	}
	return domain.AggregatedBucket{}, apierr.NotFound("no closed bucket available at the requested instant")
}

// PointTWAP returns the smallest closed tier's TWAP bucket containing
// instant t, mirroring PointMedian for the TWAP flavor per spec.md §4.3.
func (e *Engine) PointTWAP(ctx context.Context, pairID string, t time.Time) (domain.AggregatedBucket, error) {
	now := time.Now()
	for _, w := range domain.TWAPWidths {
		start := truncate(t, w)
		end := start.Add(time.Duration(w))
		if !isClosed(start, w, now) {
			continue
		}
		entries, err := e.rawForBucket(ctx, pairID, w, start)
		if err != nil {
			return domain.AggregatedBucket{}, err
		}
		if len(entries) == 0 {
			continue
		}
		b := TWAP(pairID, w, start, end, entries)
		if b.NumSources >= domain.MinSourcesFor(domain.FlavorTWAP, false) {
			return b, nil
		}
	}
	return domain.AggregatedBucket{}, apierr.NotFound("no closed bucket available at the requested instant")
}

// RangeMedian returns every fully closed, sufficiently-sourced median
// bucket of width w covering [from, to), skipping gaps rather than
// fabricating values, per spec.md §4.3.
func (e *Engine) RangeMedian(ctx context.Context, pairID string, w domain.BucketWidth, from, to time.Time) ([]domain.AggregatedBucket, error) {
	now := time.Now()
	step := time.Duration(w)
	out := []domain.AggregatedBucket{}
	for cursor := truncate(from, w); cursor.Before(to); cursor = cursor.Add(step) {
		if !isClosed(cursor, w, now) {
			break
		}
		entries, err := e.rawForBucket(ctx, pairID, w, cursor)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		b := Median(pairID, w, cursor, entries)
		if b.NumSources < domain.MinSourcesFor(domain.FlavorMedian, false) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// RangeTWAP mirrors RangeMedian for the TWAP flavor.
func (e *Engine) RangeTWAP(ctx context.Context, pairID string, w domain.BucketWidth, from, to time.Time) ([]domain.AggregatedBucket, error) {
	now := time.Now()
	step := time.Duration(w)
	out := []domain.AggregatedBucket{}
	for cursor := truncate(from, w); cursor.Before(to); cursor = cursor.Add(step) {
		end := cursor.Add(step)
		if !isClosed(cursor, w, now) {
			break
		}
		entries, err := e.rawForBucket(ctx, pairID, w, cursor)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		b := TWAP(pairID, w, cursor, end, entries)
		if b.NumSources < domain.MinSourcesFor(domain.FlavorTWAP, false) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// RangeOHLC derives OHLC buckets of width w over [from, to) by composing
// the finer median tier finestDivisor picks for w, per spec.md §4.3.
func (e *Engine) RangeOHLC(ctx context.Context, pairID string, w domain.BucketWidth, from, to time.Time) ([]domain.OHLCBucket, error) {
	fine, ok := finestDivisor(w)
	if !ok {
		return nil, apierr.InvalidInput("no median tier evenly divides the requested OHLC width")
	}

	medians, err := e.RangeMedian(ctx, pairID, fine, truncate(from, w), to)
	if err != nil {
		return nil, err
	}

	byBucket := make(map[int64][]domain.AggregatedBucket)
	var order []int64
	for _, m := range medians {
		start := truncate(m.BucketStart, w).UnixMilli()
		if _, ok := byBucket[start]; !ok {
			order = append(order, start)
		}
		byBucket[start] = append(byBucket[start], m)
	}

	out := make([]domain.OHLCBucket, 0, len(order))
	for _, start := range order {
		ts := time.UnixMilli(start)
		ohlc, ok := OHLC(pairID, w, ts, byBucket[start])
		if !ok || ohlc.NumSources < domain.MinSourcesFor(domain.FlavorMedian, true) {
			continue
		}
		out = append(out, ohlc)
	}
	return out, nil
}
