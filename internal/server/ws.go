package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/hub"
	"github.com/draftroom/draftroom/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsTransport carries the same binary frames as the TCP transport, one frame
// per WebSocket binary message.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadPayload() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return protocol.ReadFrame(bytes.NewReader(data))
	}
}

func (t *wsTransport) WritePayload(payload []byte) error {
	var buf bytes.Buffer
	if err := protocol.WriteFrame(&buf, payload); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *wsTransport) Close() error { return t.conn.Close() }

func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// WSHandler upgrades HTTP requests and attaches them to the hub.
func WSHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		log.Debug("accepted websocket connection", zap.String("remote", wsConn.RemoteAddr().String()))

		newConn(&wsTransport{conn: wsConn}, h, log.Named("conn")).start()
	}
}
