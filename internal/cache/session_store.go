package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"stromboard/internal/logging"
	"stromboard/internal/model"
	"stromboard/internal/store"
)

// Backend is the key-value surface the session cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// SessionStore is a read-through cache in front of a store.SessionStore.
// Writes go to the inner store first, then invalidate the cached record.
// A fill that read the inner store before an invalidation is discarded.
type SessionStore struct {
	inner   store.SessionStore
	backend Backend
	ttl     time.Duration
	log     zerolog.Logger

	// mu orders cache fills against invalidations per process
	mu   sync.Mutex
	gens map[string]uint64
}

var _ store.SessionStore = (*SessionStore)(nil)

func NewSessionStore(inner store.SessionStore, backend Backend, ttl time.Duration) *SessionStore {
	return &SessionStore{
		inner:   inner,
		backend: backend,
		ttl:     ttl,
		log:     logging.Component("session-cache"),
		gens:    make(map[string]uint64),
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *SessionStore) CreateSession(ctx context.Context, name string) (*model.Session, error) {
	return s.inner.CreateSession(ctx, name)
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if raw, err := s.backend.Get(ctx, sessionKey(id)); err == nil {
		var cached model.Session
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		s.log.Warn().Str("session_id", id).Msg("dropping undecodable cache entry")
	} else if !errors.Is(err, ErrMiss) {
		s.log.Warn().Err(err).Str("session_id", id).Msg("cache read failed")
	}

	gen := s.generation(id)
	session, err := s.inner.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(session); err == nil {
		s.fill(ctx, id, gen, raw)
	}
	return session, nil
}

func (s *SessionStore) generation(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[id]
}

// fill caches raw unless the session was invalidated since gen was read.
func (s *SessionStore) fill(ctx context.Context, id string, gen uint64, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gens[id] != gen {
		s.log.Debug().Str("session_id", id).Msg("skipping stale cache fill")
		return
	}
	if err := s.backend.Set(ctx, sessionKey(id), raw, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("session_id", id).Msg("cache write failed")
	}
}

func (s *SessionStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	return s.inner.ListSessions(ctx)
}

func (s *SessionStore) UpdateDrawingData(ctx context.Context, id string, data model.DrawingData) error {
	if err := s.inner.UpdateDrawingData(ctx, id, data); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.inner.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *SessionStore) invalidate(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gens[id]++
	if err := s.backend.Del(ctx, sessionKey(id)); err != nil {
		s.log.Warn().Err(err).Str("session_id", id).Msg("cache invalidation failed")
	}
}
