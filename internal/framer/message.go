package framer

// Message is a single frame successfully decoded from the wire.
type Message struct {
	// Command is the raw, NUL-trimmed command string as it appeared on the
	// wire.
	Command string

	// Type is Command if it is one of the recognized commands, or "unknown"
	// otherwise.
	Type string

	// Payload is the frame's body. It is a copy, safe to retain after Feed
	// returns.
	Payload []byte

	// Description is a short, human-readable summary of the message derived
	// from its type and payload.
	Description string
}
