package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/webrtc-gateway/internal/dtls"
	"github.com/mossy-p/webrtc-gateway/internal/ice"
	"github.com/mossy-p/webrtc-gateway/internal/models"
)

const (
	testRemoteUfrag = "abcd"
	testRemotePwd   = "abcdefghijklmnopqrstuvwx"
	testLocalUfrag  = "localufrag"
	testLocalPwd    = "localpassword0123456789a"
)

var errFakeConnClosed = errors.New("fake conn closed")

// fakeConn is an in-memory signaling socket.
// frame is one inbound WebSocket message.
type frame struct {
	messageType int
	data        []byte
}

// binaryFrame makes send deliver its payload as a binary message.
type binaryFrame []byte

type fakeConn struct {
	in  chan frame
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Conn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan frame, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.in:
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	select {
	case <-c.closed:
		return errFakeConnClosed
	default:
	}
	select {
	case c.out <- append([]byte(nil), data...):
		return nil
	case <-c.closed:
		return errFakeConnClosed
	}
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64)               {}
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// send delivers a client message to the session.
func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()

	var data []byte
	switch v := v.(type) {
	case binaryFrame:
		c.in <- frame{messageType: websocket.BinaryMessage, data: v}
		return
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
	}
	c.in <- frame{messageType: websocket.TextMessage, data: data}
}

// expect returns the next message the session wrote.
func (c *fakeConn) expect(t *testing.T) models.SignalResponse {
	t.Helper()

	select {
	case data := <-c.out:
		var msg models.SignalResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		return msg
	case <-time.After(10 * time.Second):
		t.Fatal("no message from session")
		return models.SignalResponse{}
	}
}

func (c *fakeConn) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case data := <-c.out:
		t.Fatalf("unexpected message %s", data)
	case <-time.After(wait):
	}
}

// fakeAgent stands in for the ICE agent. Dial and Accept hand out conn.
type fakeAgent struct {
	events     chan ice.Event
	candidates []string
	complete   bool
	conn       net.Conn

	// connectLate makes Dial and Accept return conn only once ctx is done.
	connectLate bool

	mu       sync.Mutex
	remote   []string
	dialed   bool
	accepted bool
	closed   bool
}

var _ ICEAgent = (*fakeAgent)(nil)

func newFakeAgent(candidates ...string) *fakeAgent {
	return &fakeAgent{
		events:     make(chan ice.Event, 16),
		candidates: candidates,
		complete:   true,
	}
}

func (a *fakeAgent) Events() <-chan ice.Event { return a.events }

func (a *fakeAgent) GatherCandidates() error {
	for _, c := range a.candidates {
		a.events <- ice.Event{Kind: ice.EventCandidate, Candidate: c}
	}
	if a.complete {
		a.finishGathering()
	}
	return nil
}

func (a *fakeAgent) finishGathering() {
	a.events <- ice.Event{Kind: ice.EventGatheringComplete}
}

func (a *fakeAgent) LocalCredentials() (string, string, error) {
	return testLocalUfrag, testLocalPwd, nil
}

func (a *fakeAgent) AddRemoteCandidate(raw string) error {
	if !strings.Contains(raw, "typ") {
		return errors.New("malformed candidate")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remote = append(a.remote, raw)
	return nil
}

func (a *fakeAgent) Dial(ctx context.Context, _, _ string) (net.Conn, error) {
	a.mu.Lock()
	a.dialed = true
	a.mu.Unlock()
	return a.connect(ctx)
}

func (a *fakeAgent) Accept(ctx context.Context, _, _ string) (net.Conn, error) {
	a.mu.Lock()
	a.accepted = true
	a.mu.Unlock()
	return a.connect(ctx)
}

func (a *fakeAgent) connect(ctx context.Context) (net.Conn, error) {
	if a.connectLate {
		<-ctx.Done()
		return a.conn, nil
	}
	if a.conn != nil {
		return a.conn, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (a *fakeAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAgent) remoteCandidates() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.remote...)
}

func (a *fakeAgent) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func testOffer(setup, fingerprint string) string {
	lines := []string{
		"v=0",
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"a=group:BUNDLE 0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"c=IN IP4 0.0.0.0",
		"a=mid:0",
		"a=ice-ufrag:" + testRemoteUfrag,
		"a=ice-pwd:" + testRemotePwd,
		"a=fingerprint:sha-256 " + fingerprint,
		"a=setup:" + setup,
		"a=sendrecv",
		"a=rtpmap:111 opus/48000/2",
		"a=candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func testCertificate(t *testing.T) *dtls.Certificate {
	t.Helper()

	cert, err := dtls.GenerateCertificate()
	if err != nil {
		t.Fatalf("GenerateCertificate() error = %v", err)
	}
	return cert
}

type sessionHarness struct {
	session *Session
	conn    *fakeConn
	agent   *fakeAgent
	cert    *dtls.Certificate
	done    chan error
}

func startSession(t *testing.T, agent *fakeAgent, configure func(*SessionConfig)) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		conn:  newFakeConn(),
		agent: agent,
		cert:  testCertificate(t),
		done:  make(chan error, 1),
	}

	config := SessionConfig{
		Conn:        h.conn,
		Certificate: h.cert,
		NewAgent:    func() (ICEAgent, error) { return agent, nil },
	}
	if configure != nil {
		configure(&config)
	}

	session, err := NewSession(config)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	h.session = session

	go func() { h.done <- session.Run(context.Background()) }()
	t.Cleanup(func() {
		session.Stop()
		<-h.done
	})
	return h
}

func (h *sessionHarness) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func ptr(s string) *string { return &s }
