// Package mux splits one datagram connection into logical endpoints by
// sniffing the first byte of every inbound packet.
//
// Receives are demultiplexed; sends from any endpoint go straight to the
// underlying connection.
package mux

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/packetio"

	"github.com/mossy-p/webrtc-gateway/internal/observability"
)

const (
	// ReceiveMTU is the largest packet the read loop accepts.
	ReceiveMTU = 1460

	// maxBufferSize caps every endpoint's inbound buffer.
	maxBufferSize = 1000 * 1000
)

// ErrClosed is returned by endpoint writes after the Mux was closed.
var ErrClosed = errors.New("mux: closed")

// Config collects the arguments to NewMux.
type Config struct {
	// Conn is the underlying connection. Required.
	Conn net.Conn

	// BufferSize is the size of the read buffer. Defaults to ReceiveMTU.
	BufferSize int

	// LoggerFactory is used to create the mux logger.
	// If nil, logging.NewDefaultLoggerFactory() is used.
	LoggerFactory logging.LoggerFactory
}

// Mux owns the underlying connection and a registry of live endpoints.
// Every inbound packet goes to at most one endpoint: the first, in
// registration order, whose MatchFunc accepts it.
type Mux struct {
	nextConn   net.Conn
	bufferSize int
	log        logging.LeveledLogger

	lock      sync.Mutex
	endpoints []*Endpoint
	nextID    int
	err       error
	closed    bool

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewMux creates a Mux over config.Conn and starts its read loop.
func NewMux(config Config) *Mux {
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = ReceiveMTU
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	m := &Mux{
		nextConn:   config.Conn,
		bufferSize: bufferSize,
		log:        loggerFactory.NewLogger("mux"),
		doneCh:     make(chan struct{}),
	}

	go m.readLoop()

	return m
}

// NewEndpoint registers a new logical stream fed by f. It never blocks.
func (m *Mux) NewEndpoint(f MatchFunc) *Endpoint {
	e := &Endpoint{
		mux:    m,
		match:  f,
		buffer: packetio.NewBuffer(),
	}
	e.buffer.SetLimitSize(maxBufferSize)

	m.lock.Lock()
	e.id = m.nextID
	m.nextID++
	dead := m.closed || m.err != nil
	if !dead {
		m.endpoints = append(m.endpoints, e)
	}
	m.lock.Unlock()

	if dead {
		_ = e.buffer.Close()
	}

	return e
}

// Close stops the read loop, closes every endpoint and the underlying
// connection. It is safe to call more than once.
func (m *Mux) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.lock.Lock()
		m.closed = true
		endpoints := m.endpoints
		m.endpoints = nil
		m.lock.Unlock()

		for _, e := range endpoints {
			_ = e.buffer.Close()
		}

		err = m.nextConn.Close()
		<-m.doneCh
	})
	return err
}

// LocalAddr returns the local address of the underlying connection.
func (m *Mux) LocalAddr() net.Addr {
	return m.nextConn.LocalAddr()
}

// Err returns the transport error that stopped the read loop, if any.
func (m *Mux) Err() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.err
}

func (m *Mux) isClosed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closed
}

func (m *Mux) removeEndpoint(e *Endpoint) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for i, candidate := range m.endpoints {
		if candidate == e {
			m.endpoints = append(m.endpoints[:i], m.endpoints[i+1:]...)
			return
		}
	}
}

func (m *Mux) endpointCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.endpoints)
}

func (m *Mux) readLoop() {
	defer close(m.doneCh)

	buf := make([]byte, m.bufferSize)
	for {
		n, err := m.nextConn.Read(buf)
		if errors.Is(err, io.ErrShortBuffer) {
			// The underlying buffer already discarded the datagram.
			m.log.Warnf("mux: dropping packet larger than %d bytes", m.bufferSize)
			observability.MuxDroppedPacketsTotal.WithLabelValues("oversized").Inc()
			continue
		}
		if err != nil {
			m.fail(err)
			return
		}
		if n == 0 {
			continue
		}

		m.dispatch(buf[:n])
	}
}

// dispatch hands buf to the first matching endpoint. The registry lock is
// only held while choosing the endpoint; the buffer write copies buf.
func (m *Mux) dispatch(buf []byte) {
	var endpoint *Endpoint

	m.lock.Lock()
	for _, e := range m.endpoints {
		if e.match(buf) {
			endpoint = e
			break
		}
	}
	m.lock.Unlock()

	if endpoint == nil {
		if len(buf) > 0 {
			m.log.Warnf("warning: mux: no endpoint for packet starting with %d", buf[0])
		} else {
			m.log.Warnf("warning: mux: no endpoint for zero length packet")
		}
		observability.MuxDroppedPacketsTotal.WithLabelValues("unmatched").Inc()
		return
	}

	if _, err := endpoint.buffer.Write(buf); err != nil {
		if errors.Is(err, packetio.ErrFull) {
			m.log.Warnf("mux: endpoint %d buffer full, dropping packet", endpoint.id)
			observability.MuxDroppedPacketsTotal.WithLabelValues("buffer_full").Inc()
			return
		}
		m.log.Debugf("mux: endpoint %d rejected packet: %v", endpoint.id, err)
		observability.MuxDroppedPacketsTotal.WithLabelValues("endpoint_closed").Inc()
	}
}

// fail records a transport error and wakes every blocked reader.
func (m *Mux) fail(err error) {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return
	}
	if m.err == nil {
		m.err = fmt.Errorf("mux: transport: %w", err)
	}
	endpoints := append([]*Endpoint(nil), m.endpoints...)
	m.lock.Unlock()

	m.log.Debugf("mux: read loop stopped: %v", err)

	for _, e := range endpoints {
		_ = e.buffer.Close()
	}
}
