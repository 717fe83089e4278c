package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/mossy-p/webrtc-gateway/internal/dtls"
	"github.com/mossy-p/webrtc-gateway/internal/media"
	"github.com/mossy-p/webrtc-gateway/internal/models"
	"github.com/mossy-p/webrtc-gateway/internal/observability"
)

const storeTimeout = 2 * time.Second

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("gateway: session not found")

// Store persists session records so other nodes and the REST API can see
// them. Implementations expire records on their own.
type Store interface {
	Save(ctx context.Context, rec *models.SessionRecord) error
	Get(ctx context.Context, id string) (*models.SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

// ManagerConfig collects the arguments to NewManager.
type ManagerConfig struct {
	Certificate *dtls.Certificate
	NewAgent    AgentFactory

	// Store is optional. Without it records live only in memory.
	Store Store

	PacketHandler media.PacketHandler

	// Node names this process in session records.
	Node string

	LoggerFactory logging.LoggerFactory
}

// Manager runs sessions and keeps the registry of live ones.
type Manager struct {
	config ManagerConfig
	log    logging.LeveledLogger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(config ManagerConfig) *Manager {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Manager{
		config:   config,
		log:      config.LoggerFactory.NewLogger("gateway"),
		sessions: make(map[string]*Session),
	}
}

// Serve runs one session over conn until it ends. userID may be empty.
func (m *Manager) Serve(ctx context.Context, conn Conn, userID string) error {
	session, err := NewSession(SessionConfig{
		Conn:          conn,
		Certificate:   m.config.Certificate,
		NewAgent:      m.config.NewAgent,
		PacketHandler: m.config.PacketHandler,
		OnUpdate:      m.save,
		UserID:        userID,
		Node:          m.config.Node,
		LoggerFactory: m.config.LoggerFactory,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}

	m.register(session)
	defer m.unregister(session)

	m.log.Infof("session %s started from %s", session.ID(), conn.RemoteAddr())
	err = session.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warnf("session %s ended: %v", session.ID(), err)
	}
	return err
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	observability.SessionsActive.Inc()
	observability.SessionsTotal.Inc()
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	observability.SessionsActive.Dec()

	if m.config.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.config.Store.Delete(ctx, s.ID()); err != nil {
		m.log.Warnf("session %s: delete record: %v", s.ID(), err)
	}
}

func (m *Manager) save(rec *models.SessionRecord) {
	if m.config.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.config.Store.Save(ctx, rec); err != nil {
		m.log.Warnf("session %s: save record: %v", rec.ID, err)
	}
}

// Get returns the record for id, looking in the store first so sessions on
// other nodes are visible.
func (m *Manager) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	if m.config.Store != nil {
		rec, err := m.config.Store.Get(ctx, id)
		switch {
		case err == nil:
			return rec, nil
		case !errors.Is(err, ErrSessionNotFound):
			m.log.Warnf("session %s: load record: %v", id, err)
		}
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Record(), nil
}

// List returns the live sessions of this node, oldest first.
func (m *Manager) List() []*models.SessionRecord {
	m.mu.RLock()
	records := make([]*models.SessionRecord, 0, len(m.sessions))
	for _, s := range m.sessions {
		records = append(records, s.Record())
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

// Stop ends the live session id. Sessions on other nodes cannot be stopped.
func (m *Manager) Stop(id string) error {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	return nil
}

// StopAll ends every live session. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.Stop()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
