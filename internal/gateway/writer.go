package gateway

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
)

// Conn is the part of a *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// writer serializes every write to the socket. gorilla allows one
// concurrent writer only.
type writer struct {
	mu   sync.Mutex
	conn Conn
}

func (w *writer) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerializeFailed, err)
	}
	if err := w.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrWebSocketWriteError, err)
	}
	return nil
}

func (w *writer) ping() error {
	return w.write(websocket.PingMessage, nil)
}

func (w *writer) closeNormal() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return w.write(websocket.CloseMessage, msg)
}

func (w *writer) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(messageType, data)
}
