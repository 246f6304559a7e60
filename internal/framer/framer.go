// Package framer turns a stream of raw bytes from a Bitcoin P2P connection
// into discrete messages. It never blocks: Feed consumes whatever bytes are
// available and returns immediately with however many complete messages it
// found, carrying any leftover partial frame forward to the next call.
package framer

import (
	"context"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
	"github.com/tokenized/logger"
)

// bufferClearCeiling is the point past which an unparseable buffer is
// discarded outright rather than grown further. MaxPayloadSize (32 MiB) is
// above this ceiling, so a frame longer than 10 MiB is decoded only when the
// Feed call that pushes the buffer past the ceiling also completes the frame;
// otherwise the partial frame is discarded with the rest of the buffer.
const bufferClearCeiling = 10 * 1024 * 1024

// Framer accumulates bytes for one direction of one connection and extracts
// frames addressed to a specific network. A Framer is not safe for
// concurrent use; callers run one per direction.
type Framer struct {
	network bitcoinmsg.Network
	magic   bitcoinmsg.Magic
	buf     []byte

	dropped uint64
}

// New creates a Framer that only accepts frames carrying network's magic.
func New(network bitcoinmsg.Network) (*Framer, error) {
	magic, err := bitcoinmsg.MagicFor(network)
	if err != nil {
		return nil, err
	}
	return &Framer{network: network, magic: magic}, nil
}

// Dropped returns the number of leading bytes discarded so far while
// resynchronizing after unparseable data. Exposed for tests and diagnostics,
// not part of any persisted record.
func (f *Framer) Dropped() uint64 {
	return f.dropped
}

// Feed appends chunk to the internal buffer and extracts as many complete
// messages as are now available. It never returns an error: anything that
// isn't a valid frame at the current offset is treated as noise, logged, and
// skipped one byte at a time until framing recovers.
func (f *Framer) Feed(ctx context.Context, chunk []byte) []Message {
	f.buf = append(f.buf, chunk...)

	var out []Message
	for {
		if len(f.buf) < HeaderSize {
			break
		}

		h := decodeHeader(f.buf)

		// Check the magic before trusting payload_length, so noise whose
		// stray length field is large never stalls the loop waiting for bytes.
		if h.magic != f.magic {
			if len(f.buf) > bufferClearCeiling {
				break // no frame here; the ceiling check below discards the buffer
			}
			f.resync(ctx, "magic mismatch")
			continue
		}

		if h.payloadLength > MaxPayloadSize {
			f.resync(ctx, "oversized payload_length")
			continue
		}

		total := HeaderSize + int(h.payloadLength)
		if len(f.buf) < total {
			break
		}

		payload := f.buf[HeaderSize:total]
		if !checksumMatches(h, payload) {
			f.resync(ctx, "checksum mismatch")
			continue
		}

		msgType := messageType(h.command)
		payloadCopy := append([]byte(nil), payload...)
		out = append(out, Message{
			Command:     h.command,
			Type:        msgType,
			Payload:     payloadCopy,
			Description: describe(msgType, payloadCopy),
		})

		f.buf = f.buf[total:]
	}

	if len(f.buf) > bufferClearCeiling {
		logger.Debug(ctx, "framer: clearing %d byte buffer, no frame found", len(f.buf))
		f.buf = nil
	}

	return out
}

// resync drops exactly one leading byte and keeps scanning from the new
// offset, the standard recovery for a stream that has drifted out of frame
// alignment.
func (f *Framer) resync(ctx context.Context, reason string) {
	logger.Debug(ctx, "framer: resync (%s), dropping 1 byte", reason)
	f.buf = f.buf[1:]
	f.dropped++
}
