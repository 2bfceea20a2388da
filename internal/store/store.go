// Package store adapts oracleflow's domain operations onto Postgres via
// jmoiron/sqlx and lib/pq: a thin struct wrapping a driver handle, one
// method per capability, sql errors wrapped with %w. Most consumers see a
// narrow interface (registry.Store, bus.Sink, aggregate.RawReader,
// merkle.OptionStore, optioncache.Backing, realtime.BlockSource);
// internal/httpapi holds the full Store type.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"oracleflow/internal/domain"
)

// Store is the Postgres-backed implementation of every read/write
// capability the rest of oracleflow needs from durable storage.
type Store struct {
	db *sqlx.DB
}

// serializableTx is used for every batch insert so concurrent bus
// consumers can't interleave a partial write, per spec.md §5.
var serializableTx = &sql.TxOptions{Isolation: sql.LevelSerializable}

// Open connects to the offchain database and verifies it's reachable.
func Open(ctx context.Context, dsn string, maxConn int) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxConn / 2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database connection is reachable, for
// handleHealth's readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetPublisher implements registry.Store.
func (s *Store) GetPublisher(ctx context.Context, name string) (*domain.Publisher, error) {
	var row struct {
		Name           string    `db:"name"`
		Kind           string    `db:"kind"`
		MasterKey      []byte    `db:"master_key"`
		ActiveKey      []byte    `db:"active_key"`
		AccountAddress string    `db:"account_address"`
		Active         bool      `db:"active"`
		UpdatedAt      time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT name, kind, master_key, active_key, account_address, active, updated_at
		FROM publishers WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get publisher: %w", err)
	}
	return &domain.Publisher{
		Name:           row.Name,
		Kind:           domain.PublisherKind(row.Kind),
		MasterKey:      row.MasterKey,
		ActiveKey:      row.ActiveKey,
		AccountAddress: row.AccountAddress,
		Active:         row.Active,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

// ListPublishers returns every known publisher, for the node/publishers
// endpoint spec.md §6 lists.
func (s *Store) ListPublishers(ctx context.Context) ([]domain.Publisher, error) {
	var rows []struct {
		Name           string    `db:"name"`
		Kind           string    `db:"kind"`
		AccountAddress string    `db:"account_address"`
		Active         bool      `db:"active"`
		UpdatedAt      time.Time `db:"updated_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT name, kind, account_address, active, updated_at FROM publishers ORDER BY name`); err != nil {
		return nil, fmt.Errorf("store: list publishers: %w", err)
	}
	out := make([]domain.Publisher, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Publisher{
			Name:           r.Name,
			Kind:           domain.PublisherKind(r.Kind),
			AccountAddress: r.AccountAddress,
			Active:         r.Active,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out, nil
}

// InsertSpotEntries implements bus.Sink with an idempotent upsert keyed on
// (pair_id, source, timestamp_ms), spec.md §3's spot entry identity, per
// spec.md §4.2's at-least-once delivery requirement.
func (s *Store) InsertSpotEntries(ctx context.Context, entries []domain.SpotEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, serializableTx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spot_entries (pair_id, publisher, source, price, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pair_id, source, timestamp_ms) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.PairID, e.Publisher, e.Source, e.Price, e.Timestamp); err != nil {
			return fmt.Errorf("store: insert spot entry: %w", err)
		}
	}
	return tx.Commit()
}

// InsertFutureEntries mirrors InsertSpotEntries for perp/future entries,
// keyed on (pair_id, source, timestamp_ms, expiration_ms), spec.md §3's
// future entry identity.
func (s *Store) InsertFutureEntries(ctx context.Context, entries []domain.FutureEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, serializableTx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO future_entries (pair_id, publisher, source, price, timestamp_ms, expiration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pair_id, source, timestamp_ms, expiration_ms) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var exp sql.NullInt64
		if e.Expiration != nil {
			exp = sql.NullInt64{Int64: *e.Expiration, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, e.PairID, e.Publisher, e.Source, e.Price, e.Timestamp, exp); err != nil {
			return fmt.Errorf("store: insert future entry: %w", err)
		}
	}
	return tx.Commit()
}

// InsertFundingRates implements bus.Sink.
func (s *Store) InsertFundingRates(ctx context.Context, obs []domain.FundingRateObservation) error {
	if len(obs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, serializableTx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, o := range obs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO funding_rates (pair_id, source, rate, timestamp_ms)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (pair_id, source, timestamp_ms) DO NOTHING`,
			o.Pair, o.Source, o.Rate, o.Timestamp); err != nil {
			return fmt.Errorf("store: insert funding rate: %w", err)
		}
	}
	return tx.Commit()
}

// InsertOpenInterest implements bus.Sink.
func (s *Store) InsertOpenInterest(ctx context.Context, obs []domain.OpenInterestObservation) error {
	if len(obs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, serializableTx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, o := range obs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO open_interest (pair_id, source, quantity, timestamp_ms)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (pair_id, source, timestamp_ms) DO NOTHING`,
			o.Pair, o.Source, o.OpenInterest, o.Timestamp); err != nil {
			return fmt.Errorf("store: insert open interest: %w", err)
		}
	}
	return tx.Commit()
}

// ReadRaw returns raw spot entries for pairID within [from, to], per
// spec.md §4.3's raw-query endpoint.
func (s *Store) ReadRaw(ctx context.Context, pairID string, from, to time.Time) ([]domain.SpotEntry, error) {
	var rows []struct {
		PairID      string          `db:"pair_id"`
		Publisher   string          `db:"publisher"`
		Source      string          `db:"source"`
		Price       decimal.Decimal `db:"price"`
		TimestampMs int64           `db:"timestamp_ms"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT pair_id, publisher, source, price, timestamp_ms
		FROM spot_entries
		WHERE pair_id = $1 AND timestamp_ms BETWEEN $2 AND $3
		ORDER BY timestamp_ms ASC`, pairID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: read raw: %w", err)
	}
	out := make([]domain.SpotEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.SpotEntry{
			PairID:    r.PairID,
			Publisher: r.Publisher,
			Source:    r.Source,
			Price:     r.Price,
			Timestamp: r.TimestampMs,
		})
	}
	return out, nil
}

// GetOptionPriceAtBlock implements the capability internal/optioncache
// falls back to on a cache miss, per spec.md §4.5.
func (s *Store) GetOptionPriceAtBlock(ctx context.Context, network domain.Network, block int64, instrument string) (*domain.OptionPrice, error) {
	var row struct {
		BaseCurrency   string          `db:"base_currency"`
		ExpirationDate string          `db:"expiration_date"`
		Strike         decimal.Decimal `db:"strike"`
		Kind           string          `db:"kind"`
		Price          decimal.Decimal `db:"price"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT base_currency, expiration_date, strike, kind, price
		FROM option_prices
		WHERE network = $1 AND block_number = $2 AND instrument = $3`, string(network), block, instrument)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get option price: %w", err)
	}
	return &domain.OptionPrice{
		Network:        network,
		BlockNumber:    block,
		BaseCurrency:   row.BaseCurrency,
		ExpirationDate: row.ExpirationDate,
		Strike:         row.Strike,
		Kind:           domain.OptionKind(row.Kind),
		Price:          row.Price,
	}, nil
}

// LatestFundingRate returns the most recent funding-rate observation for
// pair across all sources, per spec.md §6's node/funding_rate endpoint.
func (s *Store) LatestFundingRate(ctx context.Context, pair string) (*domain.FundingRateObservation, error) {
	var row struct {
		Source    string  `db:"source"`
		Rate      float64 `db:"rate"`
		Timestamp int64   `db:"timestamp_ms"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT source, rate, timestamp_ms FROM funding_rates
		WHERE pair_id = $1 ORDER BY timestamp_ms DESC LIMIT 1`, pair)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest funding rate: %w", err)
	}
	return &domain.FundingRateObservation{Pair: pair, Source: row.Source, Rate: row.Rate, Timestamp: row.Timestamp}, nil
}

// FundingRateHistory returns funding-rate observations for pair within
// [from, to].
func (s *Store) FundingRateHistory(ctx context.Context, pair string, from, to time.Time) ([]domain.FundingRateObservation, error) {
	var rows []struct {
		Source    string  `db:"source"`
		Rate      float64 `db:"rate"`
		Timestamp int64   `db:"timestamp_ms"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT source, rate, timestamp_ms FROM funding_rates
		WHERE pair_id = $1 AND timestamp_ms BETWEEN $2 AND $3
		ORDER BY timestamp_ms ASC`, pair, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: funding rate history: %w", err)
	}
	out := make([]domain.FundingRateObservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.FundingRateObservation{Pair: pair, Source: r.Source, Rate: r.Rate, Timestamp: r.Timestamp})
	}
	return out, nil
}

// FundingRateInstruments lists every pair with at least one funding-rate
// observation, per spec.md §6's /node/funding_rate/instruments endpoint.
func (s *Store) FundingRateInstruments(ctx context.Context) ([]string, error) {
	var pairs []string
	if err := s.db.SelectContext(ctx, &pairs, `SELECT DISTINCT pair_id FROM funding_rates ORDER BY pair_id`); err != nil {
		return nil, fmt.Errorf("store: funding rate instruments: %w", err)
	}
	return pairs, nil
}

// LatestOpenInterest returns the most recent open-interest observation for
// pair.
func (s *Store) LatestOpenInterest(ctx context.Context, pair string) (*domain.OpenInterestObservation, error) {
	var row struct {
		Source    string  `db:"source"`
		Quantity  float64 `db:"quantity"`
		Timestamp int64   `db:"timestamp_ms"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT source, quantity, timestamp_ms FROM open_interest
		WHERE pair_id = $1 ORDER BY timestamp_ms DESC LIMIT 1`, pair)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest open interest: %w", err)
	}
	return &domain.OpenInterestObservation{Pair: pair, Source: row.Source, OpenInterest: row.Quantity, Timestamp: row.Timestamp}, nil
}

// OpenInterestHistory returns open-interest observations for pair within
// [from, to].
func (s *Store) OpenInterestHistory(ctx context.Context, pair string, from, to time.Time) ([]domain.OpenInterestObservation, error) {
	var rows []struct {
		Source    string  `db:"source"`
		Quantity  float64 `db:"quantity"`
		Timestamp int64   `db:"timestamp_ms"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT source, quantity, timestamp_ms FROM open_interest
		WHERE pair_id = $1 AND timestamp_ms BETWEEN $2 AND $3
		ORDER BY timestamp_ms ASC`, pair, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: open interest history: %w", err)
	}
	out := make([]domain.OpenInterestObservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.OpenInterestObservation{Pair: pair, Source: r.Source, OpenInterest: r.Quantity, Timestamp: r.Timestamp})
	}
	return out, nil
}

// LatestBlock returns the highest block-number with priced options on
// record for network, the cadence source internal/realtime's Merkle-feed
// channel polls.
func (s *Store) LatestBlock(ctx context.Context, network domain.Network) (int64, error) {
	var block sql.NullInt64
	err := s.db.GetContext(ctx, &block, `
		SELECT MAX(block_number) FROM option_prices WHERE network = $1`, string(network))
	if err != nil {
		return 0, fmt.Errorf("store: latest block: %w", err)
	}
	if !block.Valid {
		return 0, nil
	}
	return block.Int64, nil
}

// ListOptionPricesAtBlock implements internal/merkle's OptionStore,
// reading every priced option instrument at one (network, block), per
// spec.md §4.4's construction step.
func (s *Store) ListOptionPricesAtBlock(ctx context.Context, network domain.Network, block int64) ([]domain.OptionPrice, error) {
	var rows []struct {
		BaseCurrency   string          `db:"base_currency"`
		ExpirationDate string          `db:"expiration_date"`
		Strike         decimal.Decimal `db:"strike"`
		Kind           string          `db:"kind"`
		Price          decimal.Decimal `db:"price"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT base_currency, expiration_date, strike, kind, price
		FROM option_prices
		WHERE network = $1 AND block_number = $2`, string(network), block)
	if err != nil {
		return nil, fmt.Errorf("store: list option prices: %w", err)
	}
	out := make([]domain.OptionPrice, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.OptionPrice{
			Network:        network,
			BlockNumber:    block,
			BaseCurrency:   r.BaseCurrency,
			ExpirationDate: r.ExpirationDate,
			Strike:         r.Strike,
			Kind:           domain.OptionKind(r.Kind),
			Price:          r.Price,
		})
	}
	return out, nil
}
