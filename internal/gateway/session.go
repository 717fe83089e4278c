// Package gateway runs the signaling state machine of one browser session:
// offer, trickled candidates, answer, then ICE, DTLS and the SRTP read loop
// over the negotiated connection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	pionsdp "github.com/pion/sdp/v3"

	"github.com/mossy-p/webrtc-gateway/internal/dtls"
	"github.com/mossy-p/webrtc-gateway/internal/ice"
	"github.com/mossy-p/webrtc-gateway/internal/media"
	"github.com/mossy-p/webrtc-gateway/internal/models"
	"github.com/mossy-p/webrtc-gateway/internal/mux"
	"github.com/mossy-p/webrtc-gateway/internal/sdp"
)

var (
	errMissingConn        = errors.New("gateway: no websocket connection configured")
	errMissingCertificate = errors.New("gateway: no certificate configured")
	errMissingAgent       = errors.New("gateway: no ice agent factory configured")
)

// SessionConfig collects the arguments to NewSession.
type SessionConfig struct {
	// ID defaults to a random UUID.
	ID string

	Conn        Conn
	Certificate *dtls.Certificate
	NewAgent    AgentFactory

	// PacketHandler receives every decrypted packet. Optional.
	PacketHandler media.PacketHandler

	// OnUpdate is called after every state transition. Optional.
	OnUpdate func(*models.SessionRecord)

	UserID string
	Node   string

	LoggerFactory logging.LoggerFactory
}

// Session owns one signaling WebSocket and everything negotiated over it.
// Signaling messages and agent events are handled by the Run goroutine only.
type Session struct {
	id        string
	conn      Conn
	w         *writer
	cert      *dtls.Certificate
	newAgent  AgentFactory
	handler   media.PacketHandler
	onUpdate  func(*models.SessionRecord)
	userID    string
	node      string
	createdAt time.Time

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	// Owned by Run.
	offer           *pionsdp.SessionDescription
	sdpConfig       *sdp.Config
	agent           ICEAgent
	localCandidates []string
	remoteDone      bool
	handshaking     bool
	pipelineDone    chan error

	mu           sync.Mutex
	messageState MessageState
	agentState   AgentState
	profileName  string
	updatedAt    time.Time
	mux          *mux.Mux

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewSession creates a session. Run drives it.
func NewSession(config SessionConfig) (*Session, error) {
	switch {
	case config.Conn == nil:
		return nil, errMissingConn
	case config.Certificate == nil:
		return nil, errMissingCertificate
	case config.NewAgent == nil:
		return nil, errMissingAgent
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	id := config.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	return &Session{
		id:            id,
		conn:          config.Conn,
		w:             &writer{conn: config.Conn},
		cert:          config.Certificate,
		newAgent:      config.NewAgent,
		handler:       config.PacketHandler,
		onUpdate:      config.OnUpdate,
		userID:        config.UserID,
		node:          config.Node,
		createdAt:     now,
		updatedAt:     now,
		loggerFactory: loggerFactory,
		log:           loggerFactory.NewLogger("gateway"),
		stopped:       make(chan struct{}),
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Stop ends Run. It is safe to call more than once and from any goroutine.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

type inbound struct {
	messageType int
	data        []byte
	err         error
}

// Run handles the session until the socket closes, Stop is called, ctx is
// done or a session-fatal error occurs. A closed socket or Stop returns nil.
// All resources are released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.release()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	messages := make(chan inbound)
	s.wg.Add(2)
	go s.readPump(ctx, messages)
	go s.pingLoop(ctx)

	s.notify()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopped:
			s.log.Infof("session %s stopped", s.id)
			_ = s.w.closeNormal()
			return nil

		case msg := <-messages:
			if msg.err != nil {
				if websocket.IsUnexpectedCloseError(msg.err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warnf("session %s: websocket error: %v", s.id, msg.err)
				}
				return nil
			}
			if err := s.handleFrame(ctx, msg); err != nil {
				countError(err)
				if !IsMessageError(err) {
					return err
				}
				s.log.Warnf("session %s: %v", s.id, err)
				if err := s.sendError(err); err != nil {
					countError(err)
					return err
				}
			}

		case e := <-s.agentEvents():
			if err := s.handleEvent(ctx, e); err != nil {
				countError(err)
				return err
			}

		case err := <-s.pipelineDone:
			countError(err)
			return err
		}
	}
}

func (s *Session) readPump(ctx context.Context, messages chan<- inbound) {
	defer s.wg.Done()

	for {
		messageType, data, err := s.conn.ReadMessage()
		select {
		case messages <- inbound{messageType: messageType, data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.w.ping(); err != nil {
				s.log.Debugf("session %s: ping: %v", s.id, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// agentEvents is nil, and so never ready, until an offer created the agent.
func (s *Session) agentEvents() <-chan ice.Event {
	if s.agent == nil {
		return nil
	}
	return s.agent.Events()
}

func (s *Session) handleFrame(ctx context.Context, msg inbound) error {
	if msg.messageType != websocket.TextMessage {
		return fmt.Errorf("%w: frame type %d, want text", ErrInvalidMessage, msg.messageType)
	}
	return s.handleMessage(ctx, msg.data)
}

func (s *Session) handleMessage(ctx context.Context, data []byte) error {
	switch s.state() {
	case MessageStateOffer:
		var req models.OfferRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		if req.SDP == nil {
			return fmt.Errorf("%w: expected an offer", ErrInvalidMessage)
		}
		return s.handleOffer(*req.SDP)

	case MessageStateCandidate:
		var req models.CandidateRequest
		if err := decode(data, &req); err != nil {
			return err
		}
		if req.Candidate == nil {
			return fmt.Errorf("%w: expected a candidate", ErrInvalidMessage)
		}
		return s.handleCandidate(ctx, *req.Candidate)

	default:
		s.log.Debugf("session %s: ignoring message after end of candidates", s.id)
		return nil
	}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}

func (s *Session) handleOffer(raw string) error {
	offer, err := sdp.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSDP, err)
	}
	config, err := sdp.ParseConfig(offer, s.cert.Fingerprint, s.log)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSDP, err)
	}

	agent, err := s.newAgent()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAgentConfig, err)
	}

	s.offer = offer
	s.sdpConfig = config
	s.agent = agent

	s.setMessageState(MessageStateCandidate)

	if err := agent.GatherCandidates(); err != nil {
		return fmt.Errorf("%w: %w", ErrGatheringError, err)
	}
	s.setAgentState(AgentStateGathering)

	s.log.Infof("session %s: offer accepted, setup %s", s.id, config.ActiveMode)
	return nil
}

func (s *Session) handleCandidate(ctx context.Context, raw string) error {
	if raw == "" {
		s.setMessageState(MessageStateCandidatesEnd)
		return s.handleEndOfCandidates(ctx)
	}

	if err := s.agent.AddRemoteCandidate(raw); err != nil {
		s.log.Warnf("session %s: dropping remote candidate %q: %v", s.id, raw, err)
		return nil
	}
	s.log.Debugf("session %s: added remote candidate %s", s.id, raw)
	return nil
}

// handleEndOfCandidates answers once local gathering is done too. A marker
// that arrives first is remembered and acted on at gathering completion.
func (s *Session) handleEndOfCandidates(ctx context.Context) error {
	if s.agentStateNow() != AgentStateIceReady {
		s.remoteDone = true
		s.log.Debugf("session %s: remote candidates done, waiting for local gathering", s.id)
		return nil
	}
	return s.startHandshake(ctx)
}

func (s *Session) handleEvent(ctx context.Context, e ice.Event) error {
	switch e.Kind {
	case ice.EventCandidate:
		s.localCandidates = append(s.localCandidates, e.Candidate)

	case ice.EventGatheringComplete:
		if s.agentStateNow() == AgentStateIceReady {
			return nil
		}
		s.setAgentState(AgentStateIceReady)

		for _, c := range s.localCandidates {
			err := s.w.writeJSON(models.SignalResponse{
				Kind:      models.SignalKindCandidate,
				Candidate: c,
			})
			if err != nil {
				return err
			}
		}
		s.log.Debugf("session %s: sent %d local candidates", s.id, len(s.localCandidates))
		s.localCandidates = nil

		if s.remoteDone {
			return s.startHandshake(ctx)
		}

	case ice.EventConnectionState:
		s.log.Debugf("session %s: ice %s", s.id, e.State)
	}
	return nil
}

// startHandshake sends the answer and starts the connect pipeline. It runs
// at most once per session.
func (s *Session) startHandshake(ctx context.Context) error {
	if s.handshaking {
		return nil
	}
	s.handshaking = true

	ufrag, pwd, err := s.agent.LocalCredentials()
	if err != nil {
		return fmt.Errorf("%w: local credentials: %w", ErrInternal, err)
	}

	answer := sdp.CreateAnswer(s.offer, sdp.AnswerParams{
		LocalUsername: ufrag,
		LocalPassword: pwd,
		ActiveMode:    s.sdpConfig.ActiveMode,
		Fingerprint:   s.cert.Fingerprint,
	})
	raw, err := answer.Marshal()
	if err != nil {
		return fmt.Errorf("%w: marshal answer: %w", ErrInternal, err)
	}

	if err := s.w.writeJSON(models.SignalResponse{
		Kind: models.SignalKindAnswer,
		SDP:  string(raw),
	}); err != nil {
		return err
	}
	s.log.Infof("session %s: answer sent", s.id)

	s.pipelineDone = make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pipelineDone <- s.runPipeline(ctx)
	}()
	return nil
}

func (s *Session) sendError(cause error) error {
	return s.w.writeJSON(models.SignalResponse{
		Kind:  models.SignalKindError,
		Error: cause.Error(),
	})
}

func (s *Session) closeMux() {
	s.mu.Lock()
	m := s.mux
	s.mu.Unlock()
	if m != nil {
		_ = m.Close()
	}
}

// release tears down everything the session owns and waits for its
// goroutines. ctx is already cancelled.
func (s *Session) release() {
	_ = s.conn.Close()

	s.closeMux()
	if s.agent != nil {
		if err := s.agent.Close(); err != nil {
			s.log.Debugf("session %s: close agent: %v", s.id, err)
		}
	}

	s.wg.Wait()
	// The pipeline may have registered a mux after the first close.
	s.closeMux()
	s.log.Infof("session %s closed", s.id)
}
