package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
	"github.com/nodescope/proxy/internal/framer"
	"github.com/nodescope/proxy/internal/sink"
	"github.com/tokenized/logger"
	"github.com/tokenized/threads"
)

// readBufferSize mirrors a typical TCP read buffer; bitcoin frames and
// stream chunking are independent of this choice since Framer.Feed handles
// partial and multi-message chunks either way.
const readBufferSize = 8192

// Handler forwards one proxied connection's traffic in both directions,
// parsing Bitcoin P2P frames as they pass through and persisting everything
// it observes to a Sink. Forwarding never alters the bytes on the wire.
type Handler struct {
	connectionID uint64
	clientAddr   string
	targetAddr   string
	network      bitcoinmsg.Network
	sink         sink.Sink

	counters Counters
}

// NewHandler creates a Handler for one accepted, already-dialed connection.
func NewHandler(connectionID uint64, clientAddr, targetAddr string, network bitcoinmsg.Network, store sink.Sink) *Handler {
	return &Handler{
		connectionID: connectionID,
		clientAddr:   clientAddr,
		targetAddr:   targetAddr,
		network:      network,
		sink:         store,
	}
}

// Run drives the connection to completion: opens the connection record,
// forwards both directions concurrently, and closes the record once either
// side ends. The first direction to finish (EOF or error) closes both
// sockets, which unblocks the other direction's pending read or write.
func (h *Handler) Run(ctx context.Context, client, target net.Conn) {
	ctx = logger.ContextWithLogTrace(ctx, fmt.Sprintf("conn:%d", h.connectionID))

	opened := time.Now()
	if err := h.sink.Open(ctx, sink.ConnectionRecord{
		ConnectionID: h.connectionID,
		ClientAddr:   h.clientAddr,
		TargetAddr:   h.targetAddr,
		OpenedAt:     opened,
	}); err != nil {
		logger.Error(ctx, "failed to record connection open: %s", err)
	}

	logger.Info(ctx, "established: %s <-> %s", h.clientAddr, h.targetAddr)

	inboundThread := threads.NewThreadWithoutStop("forward-inbound", func(ctx context.Context) error {
		return h.forward(ctx, client, target, sink.Inbound)
	})
	outboundThread := threads.NewThreadWithoutStop("forward-outbound", func(ctx context.Context) error {
		return h.forward(ctx, target, client, sink.Outbound)
	})

	inboundComplete := inboundThread.GetCompleteChannel()
	outboundComplete := outboundThread.GetCompleteChannel()

	inboundThread.Start(ctx)
	outboundThread.Start(ctx)

	select {
	case <-inboundComplete:
	case <-outboundComplete:
	}

	// Whichever direction finished first, closing both sockets unblocks the
	// other direction's pending read or write. Neither thread has a way to
	// be told to stop other than the underlying connection going away.
	client.Close()
	target.Close()

	<-inboundComplete
	<-outboundComplete

	if err := inboundThread.Error(); err != nil {
		logger.Debug(ctx, "inbound forwarding ended: %s", err)
	}
	if err := outboundThread.Error(); err != nil {
		logger.Debug(ctx, "outbound forwarding ended: %s", err)
	}

	snapshot := h.counters.snapshot()
	closedAt := time.Now()
	if err := h.sink.Close(ctx, h.connectionID, closedAt, snapshot.BytesInbound, snapshot.BytesOutbound); err != nil {
		logger.Error(ctx, "failed to record connection close: %s", err)
	}

	logger.Info(ctx, "closed: %d bytes in (%d msgs), %d bytes out (%d msgs)",
		snapshot.BytesInbound, snapshot.MessagesInbound,
		snapshot.BytesOutbound, snapshot.MessagesOutbound)
}

// forward copies bytes from reader to writer unmodified, identifying
// Bitcoin frames along the way for logging and persistence. It returns when
// the reader reaches EOF or either side errors.
func (h *Handler) forward(ctx context.Context, reader io.Reader, writer io.Writer, direction sink.Direction) error {
	frm, err := framer.New(h.network)
	if err != nil {
		return err
	}

	inbound := direction == sink.Inbound
	sourcePeer, destPeer := h.clientAddr, h.targetAddr
	if !inbound {
		sourcePeer, destPeer = h.targetAddr, h.clientAddr
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			data := buf[:n]
			h.counters.addBytes(inbound, uint64(n))

			for _, msg := range frm.Feed(ctx, data) {
				h.counters.addMessage(inbound)
				h.logAndRecordMessage(ctx, msg, direction, sourcePeer, destPeer)
			}

			if _, writeErr := writer.Write(data); writeErr != nil {
				return writeErr
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

func (h *Handler) logAndRecordMessage(ctx context.Context, msg framer.Message, direction sink.Direction, sourcePeer, destPeer string) {
	logger.Info(ctx, "%s %s (from %s to %s)", direction, msg.Description, sourcePeer, destPeer)

	if err := h.sink.RecordMessage(ctx, sink.MessageRecord{
		ConnectionID:    h.connectionID,
		Timestamp:       time.Now(),
		Direction:       direction,
		SourcePeer:      sourcePeer,
		DestinationPeer: destPeer,
		MessageType:     msg.Type,
		PayloadSize:     uint64(len(msg.Payload)),
		Description:     msg.Description,
	}); err != nil {
		logger.Warn(ctx, "failed to record message: %s", err)
	}
}
