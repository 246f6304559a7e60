package framer

// Recognized lowercase Bitcoin P2P commands. Anything else is retained as
// message_type "unknown"; its raw command text is kept in Message.Command,
// and its description is only a byte count.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdAddr        = "addr"
	CmdInv         = "inv"
	CmdGetData     = "getdata"
	CmdNotFound    = "notfound"
	CmdGetBlocks   = "getblocks"
	CmdGetHeaders  = "getheaders"
	CmdTx          = "tx"
	CmdBlock       = "block"
	CmdHeaders     = "headers"
	CmdGetAddr     = "getaddr"
	CmdMemPool     = "mempool"
	CmdPing        = "ping"
	CmdPong        = "pong"
	CmdSendHeaders = "sendheaders"
	CmdFeeFilter   = "feefilter"
	CmdSendCmpct   = "sendcmpct"
	CmdCmpctBlock  = "cmpctblock"
	CmdGetBlockTxn = "getblocktxn"
	CmdBlockTxn    = "blocktxn"
	CmdGetCFilters = "getcfilters"
	CmdCFilter     = "cfilter"
	CmdGetCFHeader = "getcfheaders"
	CmdCFHeaders   = "cfheaders"
	CmdGetCFCheckp = "getcfcheckpt"
	CmdCFCheckpt   = "cfcheckpt"
	CmdAddrV2      = "addrv2"
	CmdSendAddrV2  = "sendaddrv2"
	CmdWtxidRelay  = "wtxidrelay"
	CmdFilterLoad  = "filterload"
	CmdFilterAdd   = "filteradd"
	CmdFilterClear = "filterclear"
	CmdMerkleBlock = "merkleblock"
	CmdReject      = "reject"
	CmdAlert       = "alert"

	// Unknown is the message_type recorded for any command outside the set
	// above.
	Unknown = "unknown"
)

var knownCommands = map[string]bool{
	CmdVersion:     true,
	CmdVerAck:      true,
	CmdAddr:        true,
	CmdInv:         true,
	CmdGetData:     true,
	CmdNotFound:    true,
	CmdGetBlocks:   true,
	CmdGetHeaders:  true,
	CmdTx:          true,
	CmdBlock:       true,
	CmdHeaders:     true,
	CmdGetAddr:     true,
	CmdMemPool:     true,
	CmdPing:        true,
	CmdPong:        true,
	CmdSendHeaders: true,
	CmdFeeFilter:   true,
	CmdSendCmpct:   true,
	CmdCmpctBlock:  true,
	CmdGetBlockTxn: true,
	CmdBlockTxn:    true,
	CmdGetCFilters: true,
	CmdCFilter:     true,
	CmdGetCFHeader: true,
	CmdCFHeaders:   true,
	CmdGetCFCheckp: true,
	CmdCFCheckpt:   true,
	CmdAddrV2:      true,
	CmdSendAddrV2:  true,
	CmdWtxidRelay:  true,
	CmdFilterLoad:  true,
	CmdFilterAdd:   true,
	CmdFilterClear: true,
	CmdMerkleBlock: true,
	CmdReject:      true,
	CmdAlert:       true,
}

// messageType maps a raw, NUL-trimmed command string to the message_type
// recorded on a MessageRecord.
func messageType(command string) string {
	if knownCommands[command] {
		return command
	}
	return Unknown
}
