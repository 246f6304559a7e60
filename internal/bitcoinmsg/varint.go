package bitcoinmsg

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned by the varint reader when fewer bytes are
// available than the encoding requires. Callers summarizing a payload for a
// log description treat this as "field unavailable" rather than a framing
// error, since descriptions are advisory.
var ErrShortBuffer = errors.New("short buffer")

// ReadVarInt reads a Bitcoin CompactSize integer from the front of b and
// returns its value plus the number of bytes consumed. It never reads past
// len(b); ErrShortBuffer signals there isn't enough data yet.
func ReadVarInt(b []byte) (value uint64, consumed int, err error) {
	if len(b) < 1 {
		return 0, 0, ErrShortBuffer
	}

	switch b[0] {
	case 0xff:
		if len(b) < 9 {
			return 0, 0, ErrShortBuffer
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, nil
	case 0xfe:
		if len(b) < 5 {
			return 0, 0, ErrShortBuffer
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), 5, nil
	case 0xfd:
		if len(b) < 3 {
			return 0, 0, ErrShortBuffer
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, nil
	default:
		return uint64(b[0]), 1, nil
	}
}
