// Package adapter turns a datagram connection into the byte-oriented
// connection a DTLS record layer reads from and writes to.
package adapter

import (
	"net"
	"sync"
	"time"
)

// DefaultMTU bounds a single read.
const DefaultMTU = 1460

var (
	_ net.Conn       = (*Conn)(nil)
	_ net.PacketConn = (*Conn)(nil)
)

// Conn wraps a message-oriented net.Conn (usually a mux.Endpoint).
//
// Every Read fetches exactly one packet and copies as much of it as fits in
// the caller's buffer; the rest of the packet is discarded. Every Write is
// forwarded as one packet. Nothing is buffered, so there is nothing to flush.
type Conn struct {
	next net.Conn
	mtu  int

	readMu  sync.Mutex
	readBuf []byte
}

// New wraps next. An mtu <= 0 selects DefaultMTU.
func New(next net.Conn, mtu int) *Conn {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Conn{
		next:    next,
		mtu:     mtu,
		readBuf: make([]byte, mtu),
	}
}

// Read reads one packet into p.
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	n, err := c.next.Read(c.readBuf)
	if err != nil {
		return 0, err
	}
	return copy(p, c.readBuf[:n]), nil
}

// ReadFrom reads one packet into p. The address is always the remote
// address of the wrapped connection.
func (c *Conn) ReadFrom(p []byte) (int, net.Addr, error) {
	n, err := c.Read(p)
	return n, c.next.RemoteAddr(), err
}

// Write sends p as one packet.
func (c *Conn) Write(p []byte) (int, error) {
	return c.next.Write(p)
}

// WriteTo sends p as one packet; addr is ignored.
func (c *Conn) WriteTo(p []byte, _ net.Addr) (int, error) {
	return c.Write(p)
}

// Close closes the wrapped connection.
func (c *Conn) Close() error {
	return c.next.Close()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.next.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.next.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.next.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.next.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.next.SetWriteDeadline(t)
}

// MTU returns the maximum packet size a read accepts.
func (c *Conn) MTU() int {
	return c.mtu
}
