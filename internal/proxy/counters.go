package proxy

import "sync"

// Counters tracks the running byte and message totals for one connection.
// A single instance is shared by both forwarding directions, so every
// access goes through the mutex.
type Counters struct {
	mu sync.Mutex

	bytesInbound     uint64
	bytesOutbound    uint64
	messagesInbound  uint64
	messagesOutbound uint64
}

func (c *Counters) addBytes(inbound bool, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inbound {
		c.bytesInbound += n
	} else {
		c.bytesOutbound += n
	}
}

func (c *Counters) addMessage(inbound bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inbound {
		c.messagesInbound++
	} else {
		c.messagesOutbound++
	}
}

// Snapshot is a point-in-time copy of Counters, safe to read without the
// mutex.
type Snapshot struct {
	BytesInbound     uint64
	BytesOutbound    uint64
	MessagesInbound  uint64
	MessagesOutbound uint64
}

func (c *Counters) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		BytesInbound:     c.bytesInbound,
		BytesOutbound:    c.bytesOutbound,
		MessagesInbound:  c.messagesInbound,
		MessagesOutbound: c.messagesOutbound,
	}
}
