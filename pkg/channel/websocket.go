package channel

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/intervox/intervox/pkg/errorsx"
)

// WebSocketChannel adapts a gorilla websocket connection to ClientChannel.
// All writes are serialized through a mutex since gorilla connections allow
// at most one concurrent writer.
type WebSocketChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func NewWebSocket(conn *websocket.Conn, logger *slog.Logger) *WebSocketChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketChannel{conn: conn, logger: logger}
}

// ReadAudio blocks until the next binary frame arrives. Text frames from the
// client carry no meaning for the conversation and are skipped.
func (c *WebSocketChannel) ReadAudio() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WebSocketChannel) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

func (c *WebSocketChannel) SendAudio(chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return errorsx.Wrap(c.closeErr, errorsx.ReasonTransportClose)
}

// CloseWithCode refuses or ends the connection with an application close
// code (e.g. CloseNotFound for an unknown conversation id).
func (c *WebSocketChannel) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		werr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			c.logger.Debug("close frame write failed",
				slog.Int("code", code),
				slog.String("error", werr.Error()))
		}
		c.closeErr = c.conn.Close()
	})
	err = c.closeErr
	return errorsx.Wrap(err, errorsx.ReasonTransportClose)
}

var _ ClientChannel = (*WebSocketChannel)(nil)
