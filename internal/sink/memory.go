package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrConnectionNotFound is returned by Memory when an operation references a
// connection_id that was never opened (or was already closed, for Close).
var ErrConnectionNotFound = errors.New("connection not found")

// Memory is an in-memory Sink, a stand-in for the sqlite-backed store in
// tests. It mirrors the sync.Map-plus-atomic-counters shape used elsewhere
// in this codebase for small concurrent lookup tables, rather than reaching
// for a full mutex-guarded map for what is, here, write-mostly data.
type Memory struct {
	connections sync.Map // connectionID -> *ConnectionRecord
	messages    sync.Map // connectionID -> *[]MessageRecord
	messagesMu  sync.Mutex

	openCount uint64
}

// NewMemory creates an empty in-memory Sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Open(ctx context.Context, record ConnectionRecord) error {
	stored := record
	m.connections.Store(record.ConnectionID, &stored)
	atomic.AddUint64(&m.openCount, 1)
	return nil
}

func (m *Memory) Close(ctx context.Context, connectionID uint64, closedAt time.Time, bytesInbound, bytesOutbound uint64) error {
	value, ok := m.connections.Load(connectionID)
	if !ok {
		return errors.Wrapf(ErrConnectionNotFound, "connection %d", connectionID)
	}

	record := value.(*ConnectionRecord)
	if record.ClosedAt != nil {
		return errors.Wrapf(ErrConnectionNotFound, "connection %d already closed", connectionID)
	}
	closed := closedAt
	record.ClosedAt = &closed
	record.BytesInbound = bytesInbound
	record.BytesOutbound = bytesOutbound
	return nil
}

func (m *Memory) RecordMessage(ctx context.Context, msg MessageRecord) error {
	if _, ok := m.connections.Load(msg.ConnectionID); !ok {
		return errors.Wrapf(ErrConnectionNotFound, "connection %d", msg.ConnectionID)
	}

	m.messagesMu.Lock()
	defer m.messagesMu.Unlock()

	var list []MessageRecord
	if existing, ok := m.messages.Load(msg.ConnectionID); ok {
		list = *existing.(*[]MessageRecord)
	}
	list = append(list, msg)
	m.messages.Store(msg.ConnectionID, &list)
	return nil
}

// Summary derives a ConnectionSummary by aggregating the stored
// MessageRecords for connectionID, the same derivation the sqlite Sink
// performs with SQL.
func (m *Memory) Summary(ctx context.Context, connectionID uint64) (ConnectionSummary, error) {
	value, ok := m.connections.Load(connectionID)
	if !ok {
		return ConnectionSummary{}, errors.Wrapf(ErrConnectionNotFound, "connection %d", connectionID)
	}
	record := *value.(*ConnectionRecord)

	summary := ConnectionSummary{ConnectionRecord: record}

	if existing, ok := m.messages.Load(connectionID); ok {
		for _, msg := range *existing.(*[]MessageRecord) {
			switch msg.Direction {
			case Inbound:
				summary.MessagesInbound++
			case Outbound:
				summary.MessagesOutbound++
			}
		}
	}

	return summary, nil
}

// OpenCount returns the number of connections ever opened, including closed
// ones. Used by tests.
func (m *Memory) OpenCount() uint64 {
	return atomic.LoadUint64(&m.openCount)
}
