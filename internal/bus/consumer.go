package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
)

// Sink receives decoded bus messages for durable storage, implemented by
// internal/store.
type Sink interface {
	InsertSpotEntries(ctx context.Context, entries []domain.SpotEntry) error
	InsertFutureEntries(ctx context.Context, entries []domain.FutureEntry) error
	InsertFundingRates(ctx context.Context, obs []domain.FundingRateObservation) error
	InsertOpenInterest(ctx context.Context, obs []domain.OpenInterestObservation) error
}

// Consumer reads the shared entry topic and batches records before handing
// them to Sink, per spec.md §4.2's batched-insert requirement.
type Consumer struct {
	reader        *kafka.Reader
	sink          Sink
	batchSize     int
	batchInterval time.Duration
	log           *logger.Entry

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	BatchSize     int
	BatchInterval time.Duration
}

// NewConsumer builds a Consumer reading topic with the given consumer
// group, so multiple oracleflow processes can shard partitions.
func NewConsumer(cfg ConsumerConfig, sink Sink, log *logger.Log) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:        reader,
		sink:          sink,
		batchSize:     cfg.BatchSize,
		batchInterval: cfg.BatchInterval,
		log:           log.WithComponent("bus_consumer"),
	}
}

// Start begins consuming in a background goroutine.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

type batch struct {
	spot    []domain.SpotEntry
	future  []domain.FutureEntry
	funding []domain.FundingRateObservation
	openInt []domain.OpenInterestObservation
}

func (b *batch) empty() bool {
	return len(b.spot) == 0 && len(b.future) == 0 && len(b.funding) == 0 && len(b.openInt) == 0
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	cur := &batch{}
	ticker := time.NewTicker(c.batchInterval)
	defer ticker.Stop()

	flush := func() {
		if cur.empty() {
			return
		}
		c.flush(ctx, cur)
		cur = &batch{}
	}

	msgCh := make(chan kafka.Message)
	errCh := make(chan error, 1)
	go func() {
		for {
			m, err := c.reader.ReadMessage(ctx)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case err := <-errCh:
			if ctx.Err() == nil {
				c.log.WithError(err).Warn("reader stopped")
			}
			flush()
			return
		case m := <-msgCh:
			c.decode(m, cur)
			if len(cur.spot)+len(cur.future)+len(cur.funding)+len(cur.openInt) >= c.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (c *Consumer) decode(m kafka.Message, b *batch) {
	var env envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		c.log.WithError(err).Warn("failed to decode envelope")
		return
	}
	switch env.Kind {
	case kindSpot:
		var e domain.SpotEntry
		if err := json.Unmarshal(env.Payload, &e); err == nil {
			b.spot = append(b.spot, e)
		}
	case kindFuture:
		var e domain.FutureEntry
		if err := json.Unmarshal(env.Payload, &e); err == nil {
			b.future = append(b.future, e)
		}
	case kindFunding:
		var o domain.FundingRateObservation
		if err := json.Unmarshal(env.Payload, &o); err == nil {
			b.funding = append(b.funding, o)
		}
	case kindOpenInt:
		var o domain.OpenInterestObservation
		if err := json.Unmarshal(env.Payload, &o); err == nil {
			b.openInt = append(b.openInt, o)
		}
	default:
		c.log.WithFields(logger.Fields{"kind": env.Kind}).Warn("unknown envelope kind")
	}
}

func (c *Consumer) flush(ctx context.Context, b *batch) {
	if len(b.spot) > 0 {
		if err := c.sink.InsertSpotEntries(ctx, b.spot); err != nil {
			c.log.WithError(err).Warn("failed to insert spot entries")
		}
	}
	if len(b.future) > 0 {
		if err := c.sink.InsertFutureEntries(ctx, b.future); err != nil {
			c.log.WithError(err).Warn("failed to insert future entries")
		}
	}
	if len(b.funding) > 0 {
		if err := c.sink.InsertFundingRates(ctx, b.funding); err != nil {
			c.log.WithError(err).Warn("failed to insert funding rates")
		}
	}
	if len(b.openInt) > 0 {
		if err := c.sink.InsertOpenInterest(ctx, b.openInt); err != nil {
			c.log.WithError(err).Warn("failed to insert open interest")
		}
	}
}

// Stop halts consumption and closes the underlying reader.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.reader.Close()
	c.wg.Wait()
}
