package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/hub"
	"github.com/draftroom/draftroom/internal/protocol"
)

// readTimeout closes connections with no inbound traffic; clients keep-alive
// roughly every 25 seconds.
const readTimeout = 90 * time.Second

// outboxHighWater bounds the per-connection write queue; a client that falls
// this far behind is dropped.
const outboxHighWater = 256

// transport is a framed byte pipe; implemented for raw TCP and WebSocket.
type transport interface {
	// ReadPayload blocks for one frame and returns its decoded payload.
	ReadPayload() ([]byte, error)
	WritePayload(payload []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// conn pumps envelopes between one transport and the hub. It implements
// room.Conn; Send never blocks.
type conn struct {
	t   transport
	hub *hub.Hub
	log *zap.Logger

	outbox chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	bytesIn  uint64
	bytesOut uint64
}

func newConn(t transport, h *hub.Hub, log *zap.Logger) *conn {
	return &conn{
		t:      t,
		hub:    h,
		log:    log,
		outbox: make(chan []byte, outboxHighWater),
		closed: make(chan struct{}),
	}
}

// start announces the connection to the hub and runs the pumps.
func (c *conn) start() {
	c.hub.Inbox() <- hub.Connected{Conn: c}
	go c.writeLoop()
	go c.readLoop()
}

func (c *conn) RemoteAddr() string { return c.t.RemoteAddr() }

// Send enqueues an envelope; a full outbox drops the connection.
func (c *conn) Send(env protocol.Envelope) {
	payload, err := env.Encode()
	if err != nil {
		c.log.Error("encode failed", zap.String("type", string(env.Type)), zap.Error(err))
		return
	}

	select {
	case c.outbox <- payload:
	case <-c.closed:
	default:
		c.log.Warn("outbox high-water mark exceeded, dropping connection",
			zap.String("remote", c.RemoteAddr()))
		c.Close()
	}
}

func (c *conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.t.Close()
	})
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.outbox:
			if err := c.t.WritePayload(payload); err != nil {
				c.log.Debug("write failed", zap.String("remote", c.RemoteAddr()), zap.Error(err))
				c.Close()
				return
			}
			c.mu.Lock()
			c.bytesOut += uint64(len(payload))
			c.mu.Unlock()
		}
	}
}

func (c *conn) readLoop() {
	defer func() {
		c.Close()
		c.hub.Inbox() <- hub.Disconnected{Conn: c}
		c.mu.Lock()
		in, out := c.bytesIn, c.bytesOut
		c.mu.Unlock()
		c.log.Info("connection closed",
			zap.String("remote", c.RemoteAddr()),
			zap.Uint64("bytes_in", in),
			zap.Uint64("bytes_out", out))
	}()

	for {
		if err := c.t.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		payload, err := c.t.ReadPayload()
		if err != nil {
			c.log.Debug("read failed", zap.String("remote", c.RemoteAddr()), zap.Error(err))
			return
		}
		c.mu.Lock()
		c.bytesIn += uint64(len(payload))
		c.mu.Unlock()

		env, err := protocol.DecodeEnvelope(payload)
		if err != nil {
			// Protocol error: surface nothing further, drop the peer.
			c.log.Warn("protocol error", zap.String("remote", c.RemoteAddr()), zap.Error(err))
			return
		}

		select {
		case c.hub.Inbox() <- hub.Inbound{Conn: c, Env: env}:
		case <-c.closed:
			return
		}
	}
}
