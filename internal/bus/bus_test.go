package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
)

type fakeSink struct {
	spot    []domain.SpotEntry
	future  []domain.FutureEntry
	funding []domain.FundingRateObservation
	openInt []domain.OpenInterestObservation
}

func (f *fakeSink) InsertSpotEntries(_ context.Context, e []domain.SpotEntry) error {
	f.spot = append(f.spot, e...)
	return nil
}

func (f *fakeSink) InsertFutureEntries(_ context.Context, e []domain.FutureEntry) error {
	f.future = append(f.future, e...)
	return nil
}

func (f *fakeSink) InsertFundingRates(_ context.Context, o []domain.FundingRateObservation) error {
	f.funding = append(f.funding, o...)
	return nil
}

func (f *fakeSink) InsertOpenInterest(_ context.Context, o []domain.OpenInterestObservation) error {
	f.openInt = append(f.openInt, o...)
	return nil
}

func newTestConsumer(sink Sink) *Consumer {
	return NewConsumer(ConsumerConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "entries", GroupID: "test"}, sink, logger.Get())
}

func envelopeMessage(t *testing.T, kind string, payload interface{}) kafka.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(envelope{Kind: kind, Payload: body})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return kafka.Message{Value: env}
}

func TestDecodeRoutesEachEnvelopeKind(t *testing.T) {
	sink := &fakeSink{}
	c := newTestConsumer(sink)
	b := &batch{}

	spot := domain.SpotEntry{PairID: "BTC/USD", Price: decimal.NewFromInt(100)}
	c.decode(envelopeMessage(t, kindSpot, spot), b)
	if len(b.spot) != 1 || !b.spot[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected the spot entry to decode into the batch, got %+v", b.spot)
	}

	future := domain.FutureEntry{SpotEntry: domain.SpotEntry{PairID: "BTC/USD"}}
	c.decode(envelopeMessage(t, kindFuture, future), b)
	if len(b.future) != 1 {
		t.Fatalf("expected the future entry to decode into the batch")
	}

	funding := domain.FundingRateObservation{Pair: "BTC/USD"}
	c.decode(envelopeMessage(t, kindFunding, funding), b)
	if len(b.funding) != 1 {
		t.Fatalf("expected the funding observation to decode into the batch")
	}

	openInt := domain.OpenInterestObservation{Pair: "BTC/USD"}
	c.decode(envelopeMessage(t, kindOpenInt, openInt), b)
	if len(b.openInt) != 1 {
		t.Fatalf("expected the open-interest observation to decode into the batch")
	}
}

func TestDecodeIgnoresUnknownKind(t *testing.T) {
	sink := &fakeSink{}
	c := newTestConsumer(sink)
	b := &batch{}
	c.decode(envelopeMessage(t, "mystery", struct{}{}), b)
	if !b.empty() {
		t.Fatalf("expected an unknown kind to leave the batch empty")
	}
}

func TestDecodeIgnoresMalformedEnvelope(t *testing.T) {
	sink := &fakeSink{}
	c := newTestConsumer(sink)
	b := &batch{}
	c.decode(kafka.Message{Value: []byte("not json")}, b)
	if !b.empty() {
		t.Fatalf("expected a malformed envelope to leave the batch empty")
	}
}

func TestFlushDispatchesNonEmptyKindsToSink(t *testing.T) {
	sink := &fakeSink{}
	c := newTestConsumer(sink)
	b := &batch{
		spot: []domain.SpotEntry{{PairID: "BTC/USD"}},
	}
	c.flush(context.Background(), b)

	if len(sink.spot) != 1 {
		t.Fatalf("expected the spot batch to reach the sink")
	}
	if len(sink.future) != 0 || len(sink.funding) != 0 || len(sink.openInt) != 0 {
		t.Fatalf("expected empty kinds to never reach the sink")
	}
}

func TestBatchEmpty(t *testing.T) {
	b := &batch{}
	if !b.empty() {
		t.Fatalf("expected a zero-value batch to be empty")
	}
	b.spot = append(b.spot, domain.SpotEntry{})
	if b.empty() {
		t.Fatalf("expected a batch with a spot entry to be non-empty")
	}
}

func TestNewConsumerAppliesDefaults(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "entries", GroupID: "test"}, &fakeSink{}, logger.Get())
	if c.batchSize != 200 {
		t.Fatalf("expected default batch size 200, got %d", c.batchSize)
	}
	if c.batchInterval != time.Second {
		t.Fatalf("expected default batch interval 1s, got %v", c.batchInterval)
	}
}
