// Package server accepts client connections over raw TCP (length-prefixed
// binary frames) and WebSocket (the same frames as binary messages) and
// pumps them into the hub.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/hub"
	"github.com/draftroom/draftroom/internal/protocol"
)

// tcpTransport frames payloads per the wire protocol over a net.Conn.
type tcpTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func (t *tcpTransport) ReadPayload() ([]byte, error) {
	return protocol.ReadFrame(t.r)
}

func (t *tcpTransport) WritePayload(payload []byte) error {
	return protocol.WriteFrame(t.conn, payload)
}

func (t *tcpTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *tcpTransport) Close() error { return t.conn.Close() }

func (t *tcpTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// TCPServer owns the primary listener.
type TCPServer struct {
	hub *hub.Hub
	log *zap.Logger
}

func NewTCPServer(h *hub.Hub, log *zap.Logger) *TCPServer {
	return &TCPServer{hub: h, log: log}
}

// Serve accepts connections until ctx is cancelled.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.log.Debug("accepted connection", zap.String("remote", netConn.RemoteAddr().String()))

		t := &tcpTransport{conn: netConn, r: bufio.NewReader(netConn)}
		newConn(t, s.hub, s.log.Named("conn")).start()
	}
}
