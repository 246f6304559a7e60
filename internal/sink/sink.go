// Package sink defines the narrow interface through which the proxy's data
// plane persists what it observes, and provides two implementations: an
// in-memory store for tests and a sqlite-backed store for real deployments.
// Neither implementation is allowed to disrupt the data plane: any
// durability failure is logged and swallowed by the caller, never
// propagated as a reason to drop or stall a connection.
package sink

import (
	"context"
	"time"
)

// ConnectionRecord describes one proxied TCP connection's lifecycle.
type ConnectionRecord struct {
	ConnectionID  uint64
	ClientAddr    string
	TargetAddr    string
	OpenedAt      time.Time
	ClosedAt      *time.Time
	BytesInbound  uint64
	BytesOutbound uint64
}

// Direction identifies which way a message traveled relative to the
// proxied client.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// MessageRecord describes one decoded Bitcoin P2P frame observed on a
// connection.
type MessageRecord struct {
	ConnectionID    uint64
	Timestamp       time.Time
	Direction       Direction
	SourcePeer      string
	DestinationPeer string
	MessageType     string
	PayloadSize     uint64
	Description     string
}

// ConnectionSummary is a read-only view joining a connection's record with
// message counts derived from its MessageRecords, rather than cached
// counters that could drift from the underlying rows.
type ConnectionSummary struct {
	ConnectionRecord
	MessagesInbound  uint64
	MessagesOutbound uint64
}

// Sink is the full durability surface the data plane depends on: open a
// connection, close it, and record each message observed on it.
type Sink interface {
	// Open persists the start of a new connection.
	Open(ctx context.Context, record ConnectionRecord) error

	// Close persists the end of a connection along with its final byte
	// totals.
	Close(ctx context.Context, connectionID uint64, closedAt time.Time, bytesInbound, bytesOutbound uint64) error

	// RecordMessage persists one decoded frame.
	RecordMessage(ctx context.Context, msg MessageRecord) error
}
