package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"starkcron/internal/model"
	"starkcron/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	block_number INTEGER,
	transaction_hash TEXT,
	name TEXT,
	timestamp INTEGER,
	data TEXT
);
CREATE TABLE IF NOT EXISTS deliveries (
	event_id TEXT PRIMARY KEY,
	forwarded_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS arrivals (
	event_id TEXT PRIMARY KEY,
	cycle_seq INTEGER NOT NULL,
	cycle_pos INTEGER NOT NULL
);
`

// Store keeps events in a single-file SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is empty")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The poller is the only writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE event_id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query event %s: %w", id, err)
	}
	return true, nil
}

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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO events (event_id, block_number, transaction_hash, name, timestamp, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID,
		block,
		event.TransactionHash,
		event.Name,
		event.Timestamp,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.EventID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO arrivals (event_id, cycle_seq, cycle_pos) VALUES (?, ?, ?)`,
		event.EventID, at.Cycle, at.Position,
	)
	if err != nil {
		return fmt.Errorf("insert arrival %s: %w", event.EventID, err)
	}
	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, id string) (model.Event, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM events WHERE event_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, false, nil
	}
	if err != nil {
		return model.Event{}, false, fmt.Errorf("query event %s: %w", id, err)
	}

	var event model.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return model.Event{}, false, fmt.Errorf("decode event %s: %w", id, err)
	}
	return event, true, nil
}

func (s *Store) MarkForwarded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO deliveries (event_id, forwarded_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare delivery insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, now); err != nil {
			return fmt.Errorf("mark forwarded %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Pending(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.event_id, e.data FROM events e
		LEFT JOIN deliveries d ON d.event_id = e.event_id
		LEFT JOIN arrivals a ON a.event_id = e.event_id
		WHERE d.event_id IS NULL
		ORDER BY e.block_number ASC, COALESCE(a.cycle_seq, 0) ASC, COALESCE(a.cycle_pos, 0) DESC, e.rowid DESC`)
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

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
