package mux

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/packetio"
)

var _ net.Conn = (*Endpoint)(nil)

// Endpoint is one logical stream of a Mux. It implements net.Conn: reads
// return whole packets selected by its MatchFunc, writes go to the
// underlying connection unchanged.
type Endpoint struct {
	id     int
	mux    *Mux
	match  MatchFunc
	buffer *packetio.Buffer

	closeOnce sync.Once
}

// ID returns the endpoint's registry id.
func (e *Endpoint) ID() int {
	return e.id
}

// Close unregisters the endpoint from the Mux and unblocks pending reads.
// Closing an endpoint twice is a no-op.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		_ = e.buffer.Close()
		e.mux.removeEndpoint(e)
	})
	return nil
}

// Read blocks until a packet is available or the endpoint is closed.
// A transport failure of the underlying connection is returned instead of
// io.EOF so callers can tell it apart from a local close.
func (e *Endpoint) Read(p []byte) (int, error) {
	n, err := e.buffer.Read(p)
	if err != nil && errors.Is(err, io.EOF) {
		if transportErr := e.mux.Err(); transportErr != nil {
			return n, transportErr
		}
	}
	return n, err
}

// Write sends p on the underlying connection.
func (e *Endpoint) Write(p []byte) (int, error) {
	if e.mux.isClosed() {
		return 0, ErrClosed
	}
	return e.mux.nextConn.Write(p)
}

// LocalAddr is the local address of the underlying connection.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.mux.nextConn.LocalAddr()
}

// RemoteAddr is the remote address of the underlying connection.
func (e *Endpoint) RemoteAddr() net.Addr {
	return e.mux.nextConn.RemoteAddr()
}

// SetDeadline sets the read deadline; writes have none.
func (e *Endpoint) SetDeadline(t time.Time) error {
	return e.buffer.SetReadDeadline(t)
}

// SetReadDeadline sets the deadline for pending and future reads.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return e.buffer.SetReadDeadline(t)
}

// SetWriteDeadline is a stub: writes are never buffered.
func (e *Endpoint) SetWriteDeadline(time.Time) error {
	return nil
}
