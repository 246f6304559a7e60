package proxy

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/nodescope/proxy/internal/bitcoinmsg"
	"github.com/nodescope/proxy/internal/sink"
	"github.com/nodescope/proxy/internal/socks5"
	"github.com/tokenized/logger"
)

// dialTimeout bounds how long the listener waits to connect to a SOCKS5
// client's requested target before giving up.
const dialTimeout = 10 * time.Second

// Listener accepts proxy client connections, negotiates SOCKS5, dials the
// requested target, and hands the pair off to a Handler. Each accepted
// connection is assigned a monotonically increasing connection_id starting
// at 0.
type Listener struct {
	network bitcoinmsg.Network
	sink    sink.Sink

	nextID uint64
}

// NewListener creates a Listener that only accepts frames for network and
// persists everything it observes to store.
func NewListener(network bitcoinmsg.Network, store sink.Sink) *Listener {
	return &Listener{network: network, sink: store}
}

// Serve accepts connections from ln until it returns an error. If ctx has
// already been canceled when that happens, Serve treats it as a requested
// shutdown and returns nil; otherwise the accept error is logged and the
// loop continues, since a single bad accept should not take down the whole
// proxy.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "accept failed: %s", err)
			continue
		}

		connectionID := atomic.AddUint64(&l.nextID, 1) - 1
		go l.acceptConnection(ctx, conn, connectionID)
	}
}

// acceptConnection negotiates SOCKS5 and dials the requested target for one
// accepted connection. connectionID was already assigned at accept time, so
// it is consumed whether or not negotiation or dialing succeeds; only a
// successfully dialed connection produces a ConnectionRecord.
func (l *Listener) acceptConnection(ctx context.Context, client net.Conn, connectionID uint64) {
	targetAddr, err := socks5.Negotiate(client)
	if err != nil {
		logger.Debug(ctx, "socks5 negotiation failed from %s: %s", client.RemoteAddr(), err)
		client.Close()
		return
	}

	target, err := net.DialTimeout("tcp", targetAddr, dialTimeout)
	if err != nil {
		logger.Warn(ctx, "failed to dial target %s: %s", targetAddr, err)
		client.Close()
		return
	}

	handler := NewHandler(connectionID, client.RemoteAddr().String(), targetAddr, l.network, l.sink)
	handler.Run(ctx, client, target)
}
