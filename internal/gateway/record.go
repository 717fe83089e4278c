package gateway

import (
	"time"

	"github.com/mossy-p/webrtc-gateway/internal/models"
	"github.com/mossy-p/webrtc-gateway/internal/mux"
	"github.com/mossy-p/webrtc-gateway/internal/observability"
)

func (s *Session) state() MessageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageState
}

func (s *Session) agentStateNow() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentState
}

func (s *Session) setMessageState(state MessageState) {
	s.mu.Lock()
	s.messageState = state
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setAgentState(state AgentState) {
	s.mu.Lock()
	s.agentState = state
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setProfile(name string) {
	s.mu.Lock()
	s.profileName = name
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setMux(m *mux.Mux) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mux = m
}

// Record returns a snapshot of the session for the registry.
func (s *Session) Record() *models.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &models.SessionRecord{
		ID:                s.id,
		State:             s.messageState.String(),
		AgentState:        s.agentState.String(),
		ProtectionProfile: s.profileName,
		UserID:            s.userID,
		Node:              s.node,
		CreatedAt:         s.createdAt,
		UpdatedAt:         s.updatedAt,
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		rec.RemoteAddr = addr.String()
	}
	if s.messageState != MessageStateOffer && s.sdpConfig != nil {
		rec.ActiveMode = s.sdpConfig.ActiveMode.String()
	}
	return rec
}

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate(s.Record())
	}
}

func countError(err error) {
	observability.SignalingErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
}
