// Package bus wraps segmentio/kafka-go as the transport between admission
// and storage, per spec.md §4.2. Producer publishes individual domain-keyed
// entries rather than flattened batches; Consumer is the storage-side half,
// with a mutex-guarded running flag and a WaitGroup-tracked read loop.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
)

// envelope is the wire format written to the bus. Its Kind discriminates
// between the payload variants a consumer must decode.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	kindSpot    = "spot"
	kindFuture  = "future"
	kindFunding = "funding"
	kindOpenInt = "open_interest"
)

// Producer publishes admitted entries to the bus, keyed by pair so that a
// single partition carries ordered updates for a given instrument.
type Producer struct {
	writer  *kafka.Writer
	brokers []string
	log     *logger.Entry
}

// NewProducer builds a Producer targeting topic on brokers.
func NewProducer(brokers []string, topic string, log *logger.Log) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("bus: no brokers configured")
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		brokers: brokers,
		log:     log.WithComponent("bus_producer"),
	}, nil
}

// Ping dials the first configured broker to confirm the bus is reachable,
// for handleHealth's readiness probe.
func (p *Producer) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("bus: dial %s: %w", p.brokers[0], err)
	}
	return conn.Close()
}

// PublishSpotEntry implements admission.Forwarder.
func (p *Producer) PublishSpotEntry(ctx context.Context, e domain.SpotEntry) error {
	return p.publish(ctx, e.PairID, kindSpot, e)
}

// PublishFutureEntry implements admission.Forwarder.
func (p *Producer) PublishFutureEntry(ctx context.Context, e domain.FutureEntry) error {
	return p.publish(ctx, e.PairID, kindFuture, e)
}

// PublishFundingRate forwards a funding-rate observation.
func (p *Producer) PublishFundingRate(ctx context.Context, o domain.FundingRateObservation) error {
	return p.publish(ctx, o.Pair, kindFunding, o)
}

// PublishOpenInterest forwards an open-interest observation.
func (p *Producer) PublishOpenInterest(ctx context.Context, o domain.OpenInterestObservation) error {
	return p.publish(ctx, o.Pair, kindOpenInt, o)
}

func (p *Producer) publish(ctx context.Context, key, kind string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload: %w", err)
	}
	env, err := json.Marshal(envelope{Kind: kind, Payload: body})
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	msg := kafka.Message{Key: []byte(key), Value: env}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithFields(logger.Fields{"key": key, "kind": kind}).Warn("failed to write message")
		return err
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
