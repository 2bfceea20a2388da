// Package admission implements the publish-side pipeline spec.md §4.1
// describes: decode, validate (publisher/session/signature/timestamp),
// dedupe, and forward to the bus. Each batch is validated in full, one
// entry at a time in the caller's goroutine, before any entry is forwarded.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"oracleflow/internal/apierr"
	"oracleflow/internal/crypto"
	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
)

// PublisherLookup resolves publisher records, implemented by
// internal/registry.Cache.
type PublisherLookup interface {
	Lookup(ctx context.Context, name string) (*domain.Publisher, error)
}

// Forwarder hands an admitted entry to the bus, implemented by
// internal/bus.Producer.
type Forwarder interface {
	PublishSpotEntry(ctx context.Context, e domain.SpotEntry) error
	PublishFutureEntry(ctx context.Context, e domain.FutureEntry) error
}

// Pipeline validates and forwards publisher-submitted entries.
type Pipeline struct {
	lookup    PublisherLookup
	forwarder Forwarder
	window    domain.AdmissionWindow
	sessions  *sessionRegistry
	dedup     *lru.Cache[string, struct{}]
	log       *logger.Entry

	mu      sync.RWMutex
	running bool
}

// Config configures a Pipeline.
type Config struct {
	Window               domain.AdmissionWindow
	PublisherMaxSessions int
	DedupCapacity        int
}

// New constructs an admission Pipeline.
func New(lookup PublisherLookup, forwarder Forwarder, cfg Config, log *logger.Log) (*Pipeline, error) {
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 100_000
	}
	dedup, err := lru.New[string, struct{}](cfg.DedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("admission: new dedup cache: %w", err)
	}
	return &Pipeline{
		lookup:    lookup,
		forwarder: forwarder,
		window:    cfg.Window,
		sessions:  newSessionRegistry(cfg.PublisherMaxSessions),
		dedup:     dedup,
		log:       log.WithComponent("admission"),
	}, nil
}

// OpenSession registers a new admission session for publisher, enforcing
// the concurrent-session cap.
func (p *Pipeline) OpenSession(publisher, sessionID string) error {
	return p.sessions.Open(publisher, sessionID)
}

// CloseSession releases a previously opened session.
func (p *Pipeline) CloseSession(publisher, sessionID string) {
	p.sessions.Close(publisher, sessionID)
}

// StartSessionSweeper periodically reclaims sessions that were never
// closed cleanly (dropped connections).
func (p *Pipeline) StartSessionSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.sessions.Sweep(time.Now().Add(-maxIdle))
			}
		}
	}()
}

// AdmitSpot validates and forwards a batch of spot entries, returning the
// first error encountered together with its 0-based index in the batch, per
// spec.md §4.1 step 4 (fail the whole batch on the first bad entry).
func (p *Pipeline) AdmitSpot(ctx context.Context, entries []domain.SpotEntry) error {
	now := time.Now()
	for i, e := range entries {
		if err := p.validateSpot(ctx, e, now, i); err != nil {
			return err
		}
	}
	for i, e := range entries {
		key := dedupKey(e.PairID, e.Source, e.Timestamp, nil)
		if _, seen := p.dedup.Get(key); seen {
			continue
		}
		p.dedup.Add(key, struct{}{})
		if err := p.forwarder.PublishSpotEntry(ctx, e); err != nil {
			return fmt.Errorf("admission: forward entry %d: %w", i, err)
		}
	}
	return nil
}

// AdmitFuture validates and forwards a batch of future/perp entries.
func (p *Pipeline) AdmitFuture(ctx context.Context, entries []domain.FutureEntry) error {
	now := time.Now()
	for i, e := range entries {
		if err := p.validateFuture(ctx, e, now, i); err != nil {
			return err
		}
	}
	for i, e := range entries {
		key := dedupKey(e.PairID, e.Source, e.Timestamp, e.Expiration)
		if _, seen := p.dedup.Get(key); seen {
			continue
		}
		p.dedup.Add(key, struct{}{})
		if err := p.forwarder.PublishFutureEntry(ctx, e); err != nil {
			return fmt.Errorf("admission: forward entry %d: %w", i, err)
		}
	}
	return nil
}

func (p *Pipeline) validateSpot(ctx context.Context, e domain.SpotEntry, now time.Time, index int) error {
	pub, err := p.validateCommon(ctx, e, now, index)
	if err != nil {
		return err
	}
	digest := crypto.EntryHash(e.PairID, e.Timestamp, e.Source, e.Publisher, e.Price.String(), nil)
	return p.checkSignature(pub, digest, e.Signature, e.Publisher, index)
}

func (p *Pipeline) validateFuture(ctx context.Context, e domain.FutureEntry, now time.Time, index int) error {
	pub, err := p.validateCommon(ctx, e.SpotEntry, now, index)
	if err != nil {
		return err
	}
	digest := crypto.EntryHash(e.PairID, e.Timestamp, e.Source, e.Publisher, e.Price.String(), e.Expiration)
	return p.checkSignature(pub, digest, e.Signature, e.Publisher, index)
}

func (p *Pipeline) validateCommon(ctx context.Context, e domain.SpotEntry, now time.Time, index int) (*domain.Publisher, error) {
	if e.PairID == "" || e.Source == "" || e.Price.IsNegative() {
		return nil, apierr.InvalidInput(fmt.Sprintf("entry %d: missing or invalid fields", index))
	}
	if !p.window.InWindow(e.Timestamp, now) {
		return nil, apierr.TimestampOutOfWindow(index)
	}

	pub, err := p.lookup.Lookup(ctx, e.Publisher)
	if err != nil {
		return nil, apierr.Transient(err)
	}
	if pub == nil {
		return nil, apierr.PublisherUnknown(e.Publisher)
	}
	if !pub.Active {
		return nil, apierr.PublisherInactive(e.Publisher)
	}
	return pub, nil
}

func (p *Pipeline) checkSignature(pub *domain.Publisher, digest []byte, sig []domain.FieldElement, publisher string, index int) error {
	if err := verifySignature(pub.ActiveKey, digest, sig); err != nil {
		p.log.WithError(err).WithFields(logger.Fields{"publisher": publisher, "index": index}).Warn("signature verification failed")
		return apierr.SignatureInvalid(index)
	}
	return nil
}

func verifySignature(pubKey []byte, digest []byte, sig []domain.FieldElement) error {
	if len(sig) == 0 {
		return fmt.Errorf("empty signature")
	}
	raw := make([]byte, 0, len(sig[0])*len(sig))
	for _, part := range sig {
		raw = append(raw, part...)
	}
	ok, err := crypto.VerifyEntrySignature(pubKey, digest, raw)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func dedupKey(pairID, source string, ts int64, expiration *int64) string {
	if expiration == nil {
		return fmt.Sprintf("%s|%s|%d", pairID, source, ts)
	}
	return fmt.Sprintf("%s|%s|%d|%d", pairID, source, ts, *expiration)
}
