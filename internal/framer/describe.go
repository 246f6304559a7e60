package framer

import (
	"encoding/binary"
	"fmt"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
)

// describe builds the short, human-readable summary attached to every
// MessageRecord. Every recognized command gets a dedicated summary; a
// payload too short to hold its declared fields degrades to a byte count
// rather than failing the message.
func describe(msgType string, payload []byte) string {
	switch msgType {
	case CmdVersion:
		return describeVersion(payload)
	case CmdVerAck:
		return "verack"
	case CmdAddr:
		return describeCountedPayload("addr", payload)
	case CmdAddrV2:
		return describeCountedPayload("addrv2", payload)
	case CmdInv:
		return describeCountedPayload("inv", payload)
	case CmdGetData:
		return describeCountedPayload("getdata", payload)
	case CmdNotFound:
		return describeCountedPayload("notfound", payload)
	case CmdHeaders:
		return describeCountedPayload("headers", payload)
	case CmdGetBlocks:
		return describeLocator("getblocks", payload)
	case CmdGetHeaders:
		return describeLocator("getheaders", payload)
	case CmdTx:
		return describeHashed("tx", payload)
	case CmdBlock:
		return describeHashed("block", payload)
	case CmdGetAddr:
		return "getaddr"
	case CmdMemPool:
		return "mempool"
	case CmdPing:
		return describeNonce("ping", payload)
	case CmdPong:
		return describeNonce("pong", payload)
	case CmdSendHeaders:
		return "sendheaders"
	case CmdFeeFilter:
		return describeFeeFilter(payload)
	case CmdSendCmpct:
		return describeSendCmpct(payload)
	case CmdCmpctBlock:
		return describeHashed("cmpctblock", payload)
	case CmdGetBlockTxn:
		return describeHashed("getblocktxn", payload)
	case CmdBlockTxn:
		return describeHashed("blocktxn", payload)
	case CmdGetCFilters:
		return fmt.Sprintf("getcfilters: %d bytes", len(payload))
	case CmdCFilter:
		return fmt.Sprintf("cfilter: %d bytes", len(payload))
	case CmdGetCFHeader:
		return fmt.Sprintf("getcfheaders: %d bytes", len(payload))
	case CmdCFHeaders:
		return fmt.Sprintf("cfheaders: %d bytes", len(payload))
	case CmdGetCFCheckp:
		return fmt.Sprintf("getcfcheckpt: %d bytes", len(payload))
	case CmdCFCheckpt:
		return fmt.Sprintf("cfcheckpt: %d bytes", len(payload))
	case CmdSendAddrV2:
		return "sendaddrv2"
	case CmdWtxidRelay:
		return "wtxidrelay"
	case CmdFilterLoad:
		return fmt.Sprintf("filterload: %d bytes", len(payload))
	case CmdFilterAdd:
		return fmt.Sprintf("filteradd: %d bytes", len(payload))
	case CmdFilterClear:
		return "filterclear"
	case CmdMerkleBlock:
		return describeHashed("merkleblock", payload)
	case CmdReject:
		return describeReject(payload)
	case CmdAlert:
		return fmt.Sprintf("alert: %d bytes", len(payload))
	default:
		return fmt.Sprintf("unknown: %d bytes", len(payload))
	}
}

func describeVersion(payload []byte) string {
	if len(payload) < 4+8 {
		return fmt.Sprintf("version: %d bytes", len(payload))
	}
	protocolVersion := int32(binary.LittleEndian.Uint32(payload[0:4]))
	services := binary.LittleEndian.Uint64(payload[4:12])

	const fixedPrefix = 4 + 8 + 8 + 26 + 26 + 8 // version+services+timestamp+addr_recv+addr_from+nonce
	if len(payload) <= fixedPrefix {
		return fmt.Sprintf("version: protocol=%d services=%#x", protocolVersion, services)
	}

	agent, _, ok := readVarString(payload[fixedPrefix:])
	if !ok {
		return fmt.Sprintf("version: protocol=%d services=%#x", protocolVersion, services)
	}
	return fmt.Sprintf("version: protocol=%d services=%#x user_agent=%q", protocolVersion, services, agent)
}

func describeCountedPayload(name string, payload []byte) string {
	count, _, err := bitcoinmsg.ReadVarInt(payload)
	if err != nil {
		return fmt.Sprintf("%s: %d bytes", name, len(payload))
	}
	return fmt.Sprintf("%s: %d items", name, count)
}

func describeLocator(name string, payload []byte) string {
	if len(payload) < 4 {
		return fmt.Sprintf("%s: %d bytes", name, len(payload))
	}
	count, consumed, err := bitcoinmsg.ReadVarInt(payload[4:])
	if err != nil {
		return fmt.Sprintf("%s: %d bytes", name, len(payload))
	}
	_ = consumed
	return fmt.Sprintf("%s: %d locator hashes", name, count)
}

func describeHashed(name string, payload []byte) string {
	if len(payload) == 0 {
		return fmt.Sprintf("%s: empty payload", name)
	}
	hash := bitcoinmsg.DoubleSha256Hash32(payload)
	return fmt.Sprintf("%s: %s (%d bytes)", name, hash.String(), len(payload))
}

func describeNonce(name string, payload []byte) string {
	if len(payload) < 8 {
		return fmt.Sprintf("%s: %d bytes", name, len(payload))
	}
	nonce := binary.LittleEndian.Uint64(payload[0:8])
	return fmt.Sprintf("%s: nonce=%d", name, nonce)
}

func describeFeeFilter(payload []byte) string {
	if len(payload) < 8 {
		return fmt.Sprintf("feefilter: %d bytes", len(payload))
	}
	feeRate := binary.LittleEndian.Uint64(payload[0:8])
	return fmt.Sprintf("feefilter: %d sat/kb", feeRate)
}

func describeSendCmpct(payload []byte) string {
	if len(payload) < 9 {
		return fmt.Sprintf("sendcmpct: %d bytes", len(payload))
	}
	announce := payload[0] != 0
	version := binary.LittleEndian.Uint64(payload[1:9])
	return fmt.Sprintf("sendcmpct: announce=%t version=%d", announce, version)
}

func describeReject(payload []byte) string {
	message, rest, ok := readVarString(payload)
	if !ok || len(rest) < 1 {
		return fmt.Sprintf("reject: %d bytes", len(payload))
	}
	code := rest[0]
	reason, _, ok := readVarString(rest[1:])
	if !ok {
		return fmt.Sprintf("reject: message=%q code=%#x", message, code)
	}
	return fmt.Sprintf("reject: message=%q code=%#x reason=%q", message, code, reason)
}

// readVarString reads a Bitcoin varstr (varint length prefix + raw bytes)
// from the front of b, returning the string, the remaining bytes, and
// whether enough data was present.
func readVarString(b []byte) (value string, rest []byte, ok bool) {
	length, consumed, err := bitcoinmsg.ReadVarInt(b)
	if err != nil {
		return "", b, false
	}
	b = b[consumed:]
	if uint64(len(b)) < length {
		return "", b, false
	}
	return string(b[:length]), b[length:], true
}
