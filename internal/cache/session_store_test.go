package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stromboard/internal/model"
	"stromboard/internal/store"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type countingStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	gets     int
}

func (c *countingStore) CreateSession(_ context.Context, name string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &model.Session{ID: name, SessionName: name, DrawingData: model.EmptyDrawingData()}
	c.sessions[s.ID] = s
	return s, nil
}

func (c *countingStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (c *countingStore) ListSessions(context.Context) ([]model.Session, error) {
	return nil, nil
}

func (c *countingStore) UpdateDrawingData(_ context.Context, id string, data model.DrawingData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return store.ErrSessionNotFound
	}
	s.DrawingData = data
	return nil
}

func (c *countingStore) DeleteSession(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return nil
}

func TestSessionStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{sessions: make(map[string]*model.Session)}
	backend := newMemBackend()
	cached := NewSessionStore(inner, backend, time.Minute)

	_, err := cached.CreateSession(ctx, "ROOM1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := cached.GetSession(ctx, "ROOM1")
		require.NoError(t, err)
		assert.Equal(t, "ROOM1", got.SessionName)
	}
	assert.Equal(t, 1, inner.gets)
}

func TestSessionStoreInvalidatesOnSave(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{sessions: make(map[string]*model.Session)}
	cached := NewSessionStore(inner, newMemBackend(), time.Minute)

	_, err := cached.CreateSession(ctx, "ROOM1")
	require.NoError(t, err)
	_, err = cached.GetSession(ctx, "ROOM1")
	require.NoError(t, err)

	payload := model.DrawingData(`[{"tool":"pen"}]`)
	require.NoError(t, cached.UpdateDrawingData(ctx, "ROOM1", payload))

	got, err := cached.GetSession(ctx, "ROOM1")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got.DrawingData))
}

func TestSessionStoreFallsBackWhenBackendFails(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{sessions: make(map[string]*model.Session)}
	backend := newMemBackend()
	backend.failGet = true
	cached := NewSessionStore(inner, backend, time.Minute)

	_, err := cached.CreateSession(ctx, "ROOM1")
	require.NoError(t, err)

	got, err := cached.GetSession(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, "ROOM1", got.ID)

	_, err = cached.GetSession(ctx, "missing")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

// pausingStore holds GetSession after the inner read until resume is closed.
type pausingStore struct {
	*countingStore
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s, err := p.countingStore.GetSession(ctx, id)
	close(p.read)
	<-p.resume
	return s, err
}

func TestSessionStoreSaveWinsOverConcurrentFill(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{sessions: make(map[string]*model.Session)}
	_, err := counting.CreateSession(ctx, "ROOM1")
	require.NoError(t, err)
	require.NoError(t, counting.UpdateDrawingData(ctx, "ROOM1", model.DrawingData(`[1]`)))

	inner := &pausingStore{countingStore: counting, read: make(chan struct{}), resume: make(chan struct{})}
	cached := NewSessionStore(inner, newMemBackend(), time.Minute)

	stale := make(chan *model.Session, 1)
	go func() {
		s, err := cached.GetSession(ctx, "ROOM1")
		assert.NoError(t, err)
		stale <- s
	}()

	<-inner.read
	require.NoError(t, cached.UpdateDrawingData(ctx, "ROOM1", model.DrawingData(`[2]`)))
	close(inner.resume)
	assert.JSONEq(t, `[1]`, string((<-stale).DrawingData))

	// 이후 조회는 캐시된 이전 스냅샷이 아니라 저장된 값을 돌려준다
	inner.read = make(chan struct{})
	got, err := cached.GetSession(ctx, "ROOM1")
	require.NoError(t, err)
	assert.JSONEq(t, `[2]`, string(got.DrawingData))
}
