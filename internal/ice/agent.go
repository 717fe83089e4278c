// Package ice wraps a pion ICE agent configured the way the gateway needs
// it: one STUN server, UDP4 only, no mDNS. Agent callbacks are turned into
// events on a bounded channel so the session goroutine can select on them.
package ice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	pionice "github.com/pion/ice/v4"
	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// DefaultEventBuffer is the capacity of the event channel.
const DefaultEventBuffer = 64

// candidatePrefix starts every serialized candidate on the wire.
const candidatePrefix = "candidate:"

// ErrEmptyCandidate is returned for an empty remote candidate string.
var ErrEmptyCandidate = errors.New("ice: empty candidate")

// EventKind distinguishes agent events.
type EventKind int

const (
	// EventCandidate carries a newly gathered local candidate.
	EventCandidate EventKind = iota
	// EventGatheringComplete is sent once, after the last candidate.
	EventGatheringComplete
	// EventConnectionState reports an ICE connection state change.
	EventConnectionState
)

// Event is one notification from the agent.
type Event struct {
	Kind EventKind

	// Candidate is the serialized local candidate, "candidate:..." form.
	Candidate string

	State pionice.ConnectionState
}

// Config collects the arguments to NewAgent.
type Config struct {
	// STUNURL is the single STUN server, e.g. "stun:stun.l.google.com:19302".
	// Empty means host candidates only.
	STUNURL string

	// EventBuffer defaults to DefaultEventBuffer.
	EventBuffer int

	LoggerFactory logging.LoggerFactory
}

// Agent is one ICE agent and its event channel.
type Agent struct {
	agent  *pionice.Agent
	events chan Event
	log    logging.LeveledLogger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewAgent creates an agent. Gathering starts with GatherCandidates.
func NewAgent(config Config) (*Agent, error) {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	var urls []*stun.URI
	if config.STUNURL != "" {
		uri, err := stun.ParseURI(config.STUNURL)
		if err != nil {
			return nil, fmt.Errorf("ice: parse stun url %q: %w", config.STUNURL, err)
		}
		urls = append(urls, uri)
	}

	agent, err := pionice.NewAgent(&pionice.AgentConfig{
		Urls:             urls,
		NetworkTypes:     []pionice.NetworkType{pionice.NetworkTypeUDP4},
		MulticastDNSMode: pionice.MulticastDNSModeDisabled,
		LoggerFactory:    loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("ice: create agent: %w", err)
	}

	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	a := &Agent{
		agent:  agent,
		events: make(chan Event, buffer),
		log:    loggerFactory.NewLogger("ice"),
		closed: make(chan struct{}),
	}

	if err := agent.OnCandidate(a.onCandidate); err != nil {
		_ = agent.Close()
		return nil, fmt.Errorf("ice: register candidate handler: %w", err)
	}
	if err := agent.OnConnectionStateChange(a.onConnectionStateChange); err != nil {
		_ = agent.Close()
		return nil, fmt.Errorf("ice: register state handler: %w", err)
	}

	return a, nil
}

// Events delivers candidates in discovery order, then exactly one
// EventGatheringComplete, interleaved with connection state changes.
func (a *Agent) Events() <-chan Event {
	return a.events
}

func (a *Agent) onCandidate(c pionice.Candidate) {
	if c == nil {
		a.emit(Event{Kind: EventGatheringComplete})
		return
	}
	a.emit(Event{Kind: EventCandidate, Candidate: candidatePrefix + c.Marshal()})
}

func (a *Agent) onConnectionStateChange(state pionice.ConnectionState) {
	a.log.Infof("ICE connection state: %s", state)
	a.emit(Event{Kind: EventConnectionState, State: state})
}

// emit blocks while the channel is full so no candidate is lost, but
// gives up once the agent is closed.
func (a *Agent) emit(e Event) {
	select {
	case a.events <- e:
	case <-a.closed:
	}
}

// GatherCandidates starts asynchronous candidate gathering.
func (a *Agent) GatherCandidates() error {
	return a.agent.GatherCandidates()
}

// LocalCredentials returns the local ufrag and pwd.
func (a *Agent) LocalCredentials() (ufrag, pwd string, err error) {
	return a.agent.GetLocalUserCredentials()
}

// AddRemoteCandidate parses raw ("candidate:..." with or without the
// prefix) and hands it to the agent.
func (a *Agent) AddRemoteCandidate(raw string) error {
	value := strings.TrimPrefix(strings.TrimSpace(raw), "a=")
	value = strings.TrimPrefix(value, candidatePrefix)
	if value == "" {
		return ErrEmptyCandidate
	}

	c, err := pionice.UnmarshalCandidate(value)
	if err != nil {
		return fmt.Errorf("ice: parse candidate: %w", err)
	}
	return a.agent.AddRemoteCandidate(c)
}

// Dial connects as the controlling agent.
func (a *Agent) Dial(ctx context.Context, remoteUfrag, remotePwd string) (net.Conn, error) {
	conn, err := a.agent.Dial(ctx, remoteUfrag, remotePwd)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Accept connects as the controlled agent.
func (a *Agent) Accept(ctx context.Context, remoteUfrag, remotePwd string) (net.Conn, error) {
	conn, err := a.agent.Accept(ctx, remoteUfrag, remotePwd)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close stops the agent and releases a blocked event sender. It is safe to
// call more than once.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		err = a.agent.Close()
	})
	return err
}
