package net

import (
	"context"
	"errors"
	"log"
	stdnet "net"

	"coinrush/internal/telemetry"
	"coinrush/server"
)

// ServeTCP accepts connections on ln and serves each one on hub until ctx is
// cancelled. The listener is closed on return.
func ServeTCP(ctx context.Context, ln stdnet.Listener, hub *server.Hub, logger telemetry.Logger) error {
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, stdnet.ErrClosed) {
				return nil
			}
			return err
		}
		if tcp, ok := conn.(*stdnet.TCPConn); ok {
			tcp.SetNoDelay(true)
		}
		go func() {
			if err := hub.Serve(ctx, conn); err != nil {
				logger.Printf("[tcp] connection %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
