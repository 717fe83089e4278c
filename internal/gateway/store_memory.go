package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/mossy-p/webrtc-gateway/internal/models"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for single-node deployments and
// tests. Records expire after the TTL like they do in redis.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	rec     models.SessionRecord
	expires time.Time
}

// NewMemoryStore creates a MemoryStore. A ttl of zero keeps records until
// they are deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]memoryRecord),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec *models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}
	s.records[rec.ID] = memoryRecord{rec: *rec, expires: expires}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !r.expires.IsZero() && s.now().After(r.expires) {
		delete(s.records, id)
		return nil, ErrSessionNotFound
	}
	rec := r.rec
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}
