package framer

import (
	"bytes"
	"encoding/binary"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
)

// HeaderSize is the fixed length of a Bitcoin P2P frame header: magic(4) +
// command(12) + payload length(4) + checksum(4).
const HeaderSize = 24

// MaxPayloadSize bounds a single frame's payload. A header claiming more is
// treated as noise rather than a real, merely-large message.
const MaxPayloadSize = 32 * 1024 * 1024

// header is the decoded, fixed-width portion of a frame.
type header struct {
	magic         bitcoinmsg.Magic
	command       string // NUL-trimmed
	payloadLength uint32
	checksum      [4]byte
}

// decodeHeader reads the 24-byte header from the front of b. The caller must
// ensure len(b) >= HeaderSize.
func decodeHeader(b []byte) header {
	var h header
	copy(h.magic[:], b[0:4])
	h.command = trimCommand(b[4:16])
	h.payloadLength = binary.LittleEndian.Uint32(b[16:20])
	copy(h.checksum[:], b[20:24])
	return h
}

// trimCommand strips the trailing NUL padding from a 12-byte command field.
func trimCommand(field []byte) string {
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		return string(field)
	}
	return string(field[:n])
}

// checksumMatches reports whether the header's checksum equals the first 4
// bytes of the double-SHA-256 of payload.
func checksumMatches(h header, payload []byte) bool {
	sum := bitcoinmsg.DoubleSha256(payload)
	return bytes.Equal(sum[0:4], h.checksum[:])
}
