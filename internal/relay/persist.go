package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stromboard/internal/logging"
	"stromboard/internal/metrics"
	"stromboard/internal/model"
)

// SnapshotStore is the storage side of the bridge.
type SnapshotStore interface {
	UpdateDrawingData(ctx context.Context, id string, data model.DrawingData) error
}

// Bridge writes snapshots on a worker goroutine.
//
// Pending snapshots are keyed by session: a newer save for a session that
// is still waiting replaces the older one, and sessions are written in the
// order they first became pending. At most maxPending sessions wait at once.
type Bridge struct {
	store      SnapshotStore
	timeout    time.Duration
	maxPending int
	log        zerolog.Logger

	mu      sync.Mutex
	pending map[string]model.DrawingData
	order   []string
	wake    chan struct{}
}

func NewBridge(store SnapshotStore, maxPending int, timeout time.Duration) *Bridge {
	if maxPending <= 0 {
		maxPending = 1
	}
	return &Bridge{
		store:      store,
		timeout:    timeout,
		maxPending: maxPending,
		log:        logging.Component("snapshot"),
		pending:    make(map[string]model.DrawingData),
		wake:       make(chan struct{}, 1),
	}
}

// Persist overwrites the session's drawing data synchronously.
func (b *Bridge) Persist(ctx context.Context, sessionID string, data model.DrawingData) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	err := b.store.UpdateDrawingData(ctx, sessionID, data)
	metrics.RecordSnapshotSave(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%w: save session %s: %w", ErrStorage, sessionID, err)
	}
	return nil
}

// Enqueue schedules a snapshot without blocking. It returns false when the
// queue is full.
func (b *Bridge) Enqueue(sessionID string, data model.DrawingData) bool {
	b.mu.Lock()
	if _, waiting := b.pending[sessionID]; waiting {
		b.pending[sessionID] = data
		b.mu.Unlock()
		metrics.SnapshotSaves.WithLabelValues("superseded").Inc()
		return true
	}
	if len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		metrics.SnapshotSaves.WithLabelValues("dropped").Inc()
		return false
	}
	b.pending[sessionID] = data
	b.order = append(b.order, sessionID)
	depth := len(b.pending)
	b.mu.Unlock()

	metrics.SnapshotQueueDepth.Set(float64(depth))
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// Run drains the queue until ctx is cancelled. Snapshots still pending at
// that point are written with a fresh context before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info().Msg("snapshot worker started")
	for {
		select {
		case <-ctx.Done():
			b.drain(context.Background())
			b.log.Info().Msg("snapshot worker stopped")
			return ctx.Err()
		case <-b.wake:
			b.drain(ctx)
		}
	}
}

func (b *Bridge) drain(ctx context.Context) {
	for {
		sessionID, data, ok := b.next()
		if !ok {
			return
		}
		if err := b.Persist(ctx, sessionID, data); err != nil {
			b.log.Error().Err(err).Str("session", sessionID).Msg("snapshot save failed")
			continue
		}
		b.log.Debug().Str("session", sessionID).Int("bytes", len(data)).Msg("snapshot saved")
	}
}

func (b *Bridge) next() (string, model.DrawingData, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 {
		return "", nil, false
	}
	sessionID := b.order[0]
	b.order = b.order[1:]
	data := b.pending[sessionID]
	delete(b.pending, sessionID)
	metrics.SnapshotQueueDepth.Set(float64(len(b.pending)))
	return sessionID, data, true
}
