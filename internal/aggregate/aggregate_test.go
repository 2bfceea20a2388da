package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"oracleflow/internal/domain"
)

func entry(source string, price string, ts time.Time) domain.SpotEntry {
	return domain.SpotEntry{
		PairID:    "BTC/USD",
		Publisher: "pub",
		Source:    source,
		Price:     decimal.RequireFromString(price),
		Timestamp: ts.UnixMilli(),
	}
}

func TestMedianOfMediansEvenSourceCountTakesLowerMiddle(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	entries := []domain.SpotEntry{
		entry("binance", "100", start),
		entry("okx", "200", start),
	}
	b := Median("BTC/USD", domain.Width1s, start, entries)
	if !b.Value.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected lower-middle median 100, got %s", b.Value)
	}
	if b.NumSources != 2 {
		t.Fatalf("expected 2 sources, got %d", b.NumSources)
	}
}

func TestMedianAggregatesPerSourceBeforeCrossSource(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	entries := []domain.SpotEntry{
		entry("binance", "100", start),
		entry("binance", "300", start.Add(time.Millisecond)),
		entry("okx", "200", start),
	}
	b := Median("BTC/USD", domain.Width1s, start, entries)
	if b.NumSources != 2 {
		t.Fatalf("expected per-source reduction to 2 sources, got %d", b.NumSources)
	}
	// binance's own median(100, 300) ties to the lower-middle value, 100;
	// the cross-source median of (100, 200) then also ties low, to 100.
	if !b.Value.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected median-of-medians 100, got %s", b.Value)
	}
}

func TestTWAPWeightsByTimeHeld(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	end := start.Add(10 * time.Second)
	entries := []domain.SpotEntry{
		entry("binance", "100", start),
		entry("binance", "200", start.Add(8*time.Second)),
	}
	b := TWAP("BTC/USD", domain.Width10s, start, end, entries)
	// 100 held for 8s, 200 held for 2s: (100*8 + 200*2)/10 = 120
	if !b.Value.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected time-weighted average 120, got %s", b.Value)
	}
}

func TestOHLCDerivesFromSubBuckets(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	sub := []domain.AggregatedBucket{
		{BucketStart: start, Value: decimal.NewFromInt(100), NumSources: 3},
		{BucketStart: start.Add(10 * time.Second), Value: decimal.NewFromInt(150), NumSources: 3},
		{BucketStart: start.Add(20 * time.Second), Value: decimal.NewFromInt(90), NumSources: 3},
		{BucketStart: start.Add(30 * time.Second), Value: decimal.NewFromInt(120), NumSources: 3},
	}
	ohlc, ok := OHLC("BTC/USD", domain.Width1m, start, sub)
	if !ok {
		t.Fatalf("expected OHLC to be derived")
	}
	if !ohlc.Open.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected open 100, got %s", ohlc.Open)
	}
	if !ohlc.Close.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected close 120, got %s", ohlc.Close)
	}
	if !ohlc.High.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected high 150, got %s", ohlc.High)
	}
	if !ohlc.Low.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected low 90, got %s", ohlc.Low)
	}
}

func TestOHLCEmptySubBucketsFails(t *testing.T) {
	if _, ok := OHLC("BTC/USD", domain.Width1m, time.Now(), nil); ok {
		t.Fatalf("expected no OHLC bucket from an empty sub-bucket set")
	}
}

func TestFilterOutliersPassesThroughWithTwoOrFewerSources(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	entries := []domain.SpotEntry{
		entry("binance", "100", start),
		entry("okx", "100000", start),
	}
	out := FilterOutliers(entries)
	if len(out) != len(entries) {
		t.Fatalf("expected pass-through with only 2 sources, got %d entries", len(out))
	}
}

func TestFilterOutliersDropsSourceBeyondTwoSigma(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	entries := []domain.SpotEntry{
		entry("binance", "100", start),
		entry("okx", "101", start),
		entry("bybit", "99", start),
		entry("kraken", "100", start),
		entry("coinbase", "101", start),
		entry("kucoin", "100000", start),
	}
	out := FilterOutliers(entries)
	for _, e := range out {
		if e.Source == "kucoin" {
			t.Fatalf("expected the kucoin outlier to be dropped")
		}
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 surviving entries, got %d", len(out))
	}
}

func TestFinestDivisorEvenlyDividesTarget(t *testing.T) {
	w, ok := finestDivisor(domain.Width1m)
	if !ok {
		t.Fatalf("expected a divisor for 1m")
	}
	if int64(domain.Width1m)%int64(w) != 0 {
		t.Fatalf("expected %v to evenly divide 1m", w)
	}
	if w > domain.Width1m {
		t.Fatalf("expected divisor no coarser than the target width")
	}
}
