package framer

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
)

func encodeFrame(t *testing.T, magic bitcoinmsg.Magic, command string, payload []byte) []byte {
	t.Helper()

	var cmd [12]byte
	copy(cmd[:], command)

	checksum := bitcoinmsg.DoubleSha256(payload)

	frame := make([]byte, 0, HeaderSize+len(payload))
	frame = append(frame, magic[:]...)
	frame = append(frame, cmd[:]...)

	var lengthBuf [4]byte
	binary.LittleEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	frame = append(frame, lengthBuf[:]...)
	frame = append(frame, checksum[0:4]...)
	frame = append(frame, payload...)
	return frame
}

func testnetMagic(t *testing.T) bitcoinmsg.Magic {
	t.Helper()
	magic, err := bitcoinmsg.MagicFor(bitcoinmsg.Testnet)
	require.NoError(t, err)
	return magic
}

func TestFramerSingleMessageWholeInOneFeed(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, 42)
	frame := encodeFrame(t, magic, "ping", payload)

	msgs := f.Feed(context.Background(), frame)
	require.Len(t, msgs, 1)
	require.Equal(t, CmdPing, msgs[0].Type)
	require.Equal(t, "ping: nonce=42", msgs[0].Description)
}

func TestFramerChunkedDelivery(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	frame := encodeFrame(t, magic, "verack", nil)

	ctx := context.Background()
	var msgs []Message
	for i := 0; i < len(frame); i++ {
		msgs = append(msgs, f.Feed(ctx, frame[i:i+1])...)
	}

	require.Len(t, msgs, 1)
	require.Equal(t, CmdVerAck, msgs[0].Type)
}

func TestFramerTwoMessagesInOneFeed(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	first := encodeFrame(t, magic, "verack", nil)
	second := encodeFrame(t, magic, "getaddr", nil)

	msgs := f.Feed(context.Background(), append(first, second...))
	require.Len(t, msgs, 2)
	require.Equal(t, CmdVerAck, msgs[0].Type)
	require.Equal(t, CmdGetAddr, msgs[1].Type)
}

func TestFramerResyncsPastGarbage(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	garbage := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	frame := encodeFrame(t, magic, "ping", make([]byte, 8))

	msgs := f.Feed(context.Background(), append(garbage, frame...))
	require.Len(t, msgs, 1)
	require.Equal(t, CmdPing, msgs[0].Type)
	require.Equal(t, uint64(len(garbage)), f.Dropped())
}

func TestFramerWrongMagicIsDroppedByteByByte(t *testing.T) {
	wrongMagic, err := bitcoinmsg.MagicFor(bitcoinmsg.Mainnet)
	require.NoError(t, err)

	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	frame := encodeFrame(t, wrongMagic, "ping", make([]byte, 8))
	msgs := f.Feed(context.Background(), frame)
	require.Empty(t, msgs)
	require.Positive(t, f.Dropped())
}

func TestFramerBadChecksumResyncs(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	frame := encodeFrame(t, magic, "ping", make([]byte, 8))
	frame[HeaderSize-1] ^= 0xff // corrupt the checksum field

	good := encodeFrame(t, magic, "pong", make([]byte, 8))

	msgs := f.Feed(context.Background(), append(frame, good...))
	require.Len(t, msgs, 1)
	require.Equal(t, CmdPong, msgs[0].Type)
}

func TestFramerOversizedPayloadLengthResyncs(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	var oversized [HeaderSize]byte
	copy(oversized[0:4], magic[:])
	copy(oversized[4:16], "ping")
	binary.LittleEndian.PutUint32(oversized[16:20], MaxPayloadSize+1)

	good := encodeFrame(t, magic, "verack", nil)

	msgs := f.Feed(context.Background(), append(oversized[:], good...))
	require.Len(t, msgs, 1)
	require.Equal(t, CmdVerAck, msgs[0].Type)
}

func TestFramerClearsBufferPastCeilingWithoutAFrame(t *testing.T) {
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	noise := make([]byte, bufferClearCeiling+1)
	for i := range noise {
		noise[i] = byte(i)
	}

	msgs := f.Feed(context.Background(), noise)
	require.Empty(t, msgs)

	// The oversized unparseable buffer was discarded, so a fresh valid frame
	// fed next starts from an empty buffer rather than appending forever.
	magic := testnetMagic(t)
	frame := encodeFrame(t, magic, "verack", nil)
	msgs = f.Feed(context.Background(), frame)
	require.Len(t, msgs, 1)
}

func TestFramerUnknownCommandIsRecordedVerbatim(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	frame := encodeFrame(t, magic, "xyzcustom", []byte("hello"))
	msgs := f.Feed(context.Background(), frame)
	require.Len(t, msgs, 1)
	require.Equal(t, Unknown, msgs[0].Type)
	require.Equal(t, "xyzcustom", msgs[0].Command)
}

func TestFramerZeroLengthPayload(t *testing.T) {
	magic := testnetMagic(t)
	f, err := New(bitcoinmsg.Testnet)
	require.NoError(t, err)

	frame := encodeFrame(t, magic, "mempool", nil)
	msgs := f.Feed(context.Background(), frame)
	require.Len(t, msgs, 1)
	require.Equal(t, CmdMemPool, msgs[0].Type)
}
