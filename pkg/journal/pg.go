package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink persists journal events to PostgreSQL
type PGSink struct {
	pool *pgxpool.Pool
}

var _ Sink = (*PGSink)(nil)

// NewPGSink creates a PostgreSQL-backed journal sink
func NewPGSink(ctx context.Context, databaseURL string) (*PGSink, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pooling configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGSink{pool: pool}

	// Create tables if they don't exist
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// migrate creates the necessary database tables
func (s *PGSink) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		type TEXT NOT NULL,
		node TEXT,
		detail TEXT,
		version BIGINT,
		nodes INT
	);

	CREATE INDEX IF NOT EXISTS idx_journal_events_type ON journal_events(type);
	CREATE INDEX IF NOT EXISTS idx_journal_events_node ON journal_events(node);
	CREATE INDEX IF NOT EXISTS idx_journal_events_timestamp ON journal_events(timestamp);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Write stores a single event
func (s *PGSink) Write(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO journal_events (id, timestamp, type, node, detail, version, nodes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		event.Node,
		event.Detail,
		int64(event.Version),
		event.Nodes,
	)
	if err != nil {
		return fmt.Errorf("failed to write journal event: %w", err)
	}
	return nil
}

// Get retrieves a stored event by ID
func (s *PGSink) Get(ctx context.Context, id string) (*Event, error) {
	query := `
		SELECT id, timestamp, type, node, detail, version, nodes
		FROM journal_events
		WHERE id = $1
	`

	event := &Event{}
	var eventType string
	var version int64

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Timestamp,
		&eventType,
		&event.Node,
		&event.Detail,
		&version,
		&event.Nodes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("journal event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal event: %w", err)
	}

	event.Type = EventType(eventType)
	event.Version = uint64(version)
	return event, nil
}

// List retrieves stored events of the given type, newest first. An
// empty type returns everything up to limit.
func (s *PGSink) List(ctx context.Context, eventType EventType, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, timestamp, type, node, detail, version, nodes
		FROM journal_events
		WHERE ($1 = '' OR type = $1)
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0, limit)
	for rows.Next() {
		event := &Event{}
		var typ string
		var version int64
		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&typ,
			&event.Node,
			&event.Detail,
			&version,
			&event.Nodes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal event: %w", err)
		}
		event.Type = EventType(typ)
		event.Version = uint64(version)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal events: %w", err)
	}
	return events, nil
}

// Ping checks database connectivity
func (s *PGSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PGSink) Close() error {
	s.pool.Close()
	return nil
}
