package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"starkcron/internal/model"
	"starkcron/internal/storage"
)

// data is TEXT rather than JSONB so extra fields keep their key order.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	block_number BIGINT,
	transaction_hash TEXT,
	name TEXT,
	timestamp BIGINT,
	data TEXT,
	created_at TIMESTAMPTZ DEFAULT now()
);
CREATE TABLE IF NOT EXISTS deliveries (
	event_id TEXT PRIMARY KEY,
	forwarded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS arrivals (
	event_id TEXT PRIMARY KEY,
	cycle_seq BIGINT NOT NULL,
	cycle_pos INTEGER NOT NULL
);
`

// Store provides Postgres persistence for feed events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Exists reports whether the event id is already stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE event_id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query event %s: %w", id, err)
	}
	return exists, nil
}

// Put inserts or replaces an event.
func (s *Store) Put(ctx context.Context, event model.Event, at storage.Arrival) error {
	if err := event.Validate(); err != nil {
		return err
	}
	block, err := storage.BlockNumber(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO events (event_id, block_number, transaction_hash, name, timestamp, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id)
		DO UPDATE SET
			block_number = EXCLUDED.block_number,
			transaction_hash = EXCLUDED.transaction_hash,
			name = EXCLUDED.name,
			timestamp = EXCLUDED.timestamp,
			data = EXCLUDED.data
	`,
		event.EventID,
		block,
		event.TransactionHash,
		event.Name,
		event.Timestamp,
		string(data),
	)
	batch.Queue(`
		INSERT INTO arrivals (event_id, cycle_seq, cycle_pos) VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET cycle_seq = EXCLUDED.cycle_seq, cycle_pos = EXCLUDED.cycle_pos
	`, event.EventID, at.Cycle, at.Position)

	// An implicit transaction covers the whole batch.
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("insert event %s: %w", event.EventID, err)
	}
	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("insert arrival %s: %w", event.EventID, err)
	}
	return br.Close()
}

// Get loads one event by id.
func (s *Store) Get(ctx context.Context, id string) (model.Event, bool, error) {
	var data string
	row := s.pool.QueryRow(ctx, `SELECT data FROM events WHERE event_id=$1`, id)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, false, nil
		}
		return model.Event{}, false, fmt.Errorf("query event %s: %w", id, err)
	}
	var event model.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return model.Event{}, false, fmt.Errorf("decode event %s: %w", id, err)
	}
	return event, true, nil
}

// MarkForwarded upserts delivery records for ids.
func (s *Store) MarkForwarded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`
			INSERT INTO deliveries (event_id, forwarded_at) VALUES ($1, now())
			ON CONFLICT (event_id) DO UPDATE SET forwarded_at = now()
		`, id)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, id := range ids {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("mark forwarded %s: %w", id, err)
		}
	}
	return nil
}

// Pending returns stored events that were never forwarded.
func (s *Store) Pending(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.event_id, e.data FROM events e
		LEFT JOIN deliveries d ON d.event_id = e.event_id
		LEFT JOIN arrivals a ON a.event_id = e.event_id
		WHERE d.event_id IS NULL
		ORDER BY e.block_number ASC, COALESCE(a.cycle_seq, 0) ASC, COALESCE(a.cycle_pos, 0) DESC, e.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		var event model.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", id, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
