package sink

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Pure-Go sqlite driver: no cgo toolchain required at build time.
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Sqlite is a Sink backed by an embedded sqlite database, grounded on the
// same two-table shape (peer_connections, messages) this proxy's data model
// requires: connection lifecycle rows and one row per observed message.
type Sqlite struct {
	db *sql.DB
}

// OpenSqlite opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func OpenSqlite(ctx context.Context, path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	// The modernc.org/sqlite driver does not support concurrent writers on a
	// single connection. Each connection handler writes from two forwarding
	// goroutines, and many handlers share this Sink, so cap the pool at one
	// connection to serialize all writes.
	db.SetMaxOpenConns(1)

	s := &Sqlite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sqlite) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS peer_connections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			connection_id INTEGER NOT NULL,
			client_addr TEXT NOT NULL,
			target_addr TEXT NOT NULL,
			connected_at TEXT NOT NULL,
			disconnected_at TEXT,
			bytes_inbound INTEGER,
			bytes_outbound INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			connection_id INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			direction TEXT NOT NULL,
			source_peer TEXT NOT NULL,
			destination_peer TEXT NOT NULL,
			message_type TEXT NOT NULL,
			payload_size INTEGER NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_connection_id ON messages(connection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_peer_connections_connection_id ON peer_connections(connection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_peer_connections_connected_at ON peer_connections(connected_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "run migration")
		}
	}
	return nil
}

// Shutdown releases the underlying database handle. Not part of the Sink
// interface: it shuts down the store itself, distinct from Sink.Close which
// records one connection's end.
func (s *Sqlite) Shutdown() error {
	return s.db.Close()
}

func (s *Sqlite) Open(ctx context.Context, record ConnectionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer_connections
			(connection_id, client_addr, target_addr, connected_at)
		VALUES (?, ?, ?, ?)
	`,
		record.ConnectionID, record.ClientAddr, record.TargetAddr,
		record.OpenedAt.Format(timeLayout))
	return errors.Wrap(err, "insert connection")
}

// Close updates only the still-open row for connectionID. connection_id is
// process-local (spec.md §9): across process restarts the same value can
// appear in multiple rows, one per run, so the disconnected_at IS NULL guard is
// what keeps this from reopening or overwriting a prior run's closed row.
func (s *Sqlite) Close(ctx context.Context, connectionID uint64, closedAt time.Time, bytesInbound, bytesOutbound uint64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE peer_connections
		SET disconnected_at = ?, bytes_inbound = ?, bytes_outbound = ?
		WHERE connection_id = ? AND disconnected_at IS NULL
	`,
		closedAt.Format(timeLayout), bytesInbound, bytesOutbound, connectionID)
	return errors.Wrap(err, "update connection on close")
}

func (s *Sqlite) RecordMessage(ctx context.Context, msg MessageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(connection_id, timestamp, direction, source_peer, destination_peer,
			 message_type, payload_size, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ConnectionID, msg.Timestamp.Format(timeLayout), string(msg.Direction),
		msg.SourcePeer, msg.DestinationPeer, msg.MessageType, msg.PayloadSize, msg.Description)
	return errors.Wrap(err, "insert message")
}

// Summary derives message counts for a connection from the messages table
// rather than any cached counter, per this proxy's resolution of how
// connection statistics should be computed. Since connection_id repeats
// across process restarts (spec.md §9), it reads the most recently opened
// row for connectionID rather than assuming a single match.
func (s *Sqlite) Summary(ctx context.Context, connectionID uint64) (ConnectionSummary, error) {
	var summary ConnectionSummary
	var closedAt sql.NullString
	var bytesInbound, bytesOutbound sql.NullInt64

	row := s.db.QueryRowContext(ctx, `
		SELECT connection_id, client_addr, target_addr, connected_at, disconnected_at,
		       bytes_inbound, bytes_outbound
		FROM peer_connections
		WHERE connection_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, connectionID)

	var openedAt string
	if err := row.Scan(&summary.ConnectionID, &summary.ClientAddr, &summary.TargetAddr,
		&openedAt, &closedAt, &bytesInbound, &bytesOutbound); err != nil {
		return ConnectionSummary{}, errors.Wrap(err, "query connection")
	}
	summary.BytesInbound = uint64(bytesInbound.Int64)
	summary.BytesOutbound = uint64(bytesOutbound.Int64)

	opened, err := time.Parse(timeLayout, openedAt)
	if err != nil {
		return ConnectionSummary{}, errors.Wrap(err, "parse opened_at")
	}
	summary.OpenedAt = opened

	if closedAt.Valid {
		closed, err := time.Parse(timeLayout, closedAt.String)
		if err != nil {
			return ConnectionSummary{}, errors.Wrap(err, "parse closed_at")
		}
		summary.ClosedAt = &closed
	}

	countRow := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN direction = 'inbound' THEN 1 END),
			COUNT(CASE WHEN direction = 'outbound' THEN 1 END)
		FROM messages
		WHERE connection_id = ?
	`, connectionID)

	if err := countRow.Scan(&summary.MessagesInbound, &summary.MessagesOutbound); err != nil {
		return ConnectionSummary{}, errors.Wrap(err, "query message counts")
	}

	return summary, nil
}
