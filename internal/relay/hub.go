package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"stromboard/internal/auth"
	"stromboard/internal/connection"
	"stromboard/internal/logging"
	"stromboard/internal/metrics"
	"stromboard/internal/model"
)

// =============================================================================
// Hub - 단일 이벤트 루프
// =============================================================================

// Persister accepts snapshots for asynchronous storage.
type Persister interface {
	Enqueue(sessionID string, data model.DrawingData) bool
}

// Hub owns every live connection. Run executes all directory mutations and
// fan-outs on one goroutine, in the order commands were submitted.
type Hub struct {
	dir       *Directory
	verifier  auth.Verifier
	persister Persister
	log       zerolog.Logger
	now       func() time.Time

	cmds     chan command
	stopping chan struct{}
	stopped  chan struct{}
	members  map[string]*member // loop 전용

	// submitMu 종료 후 cmds로 새 명령이 들어오지 않도록 보장
	submitMu sync.RWMutex
	closed   bool

	connections atomic.Int64
}

type member struct {
	conn *connection.Connection
	peer Peer
}

type op int

const (
	opAttach op = iota
	opInbound
	opDetach
)

type command struct {
	op     op
	connID string
	member *member
	event  Event
	err    error
}

type handlerFunc func(h *Hub, m *member, ev Event)

// dispatch routes every inbound kind. Kinds without an entry are rejected.
var dispatch = map[Kind]handlerFunc{
	KindJoin:   (*Hub).handleJoin,
	KindDraw:   (*Hub).handleRelay,
	KindClear:  (*Hub).handleRelay,
	KindCursor: (*Hub).handleRelay,
	KindText:   (*Hub).handleRelay,
	KindShape:  (*Hub).handleRelay,
	KindImage:  (*Hub).handleRelay,
	KindUndo:   (*Hub).handleRelay,
	KindRedo:   (*Hub).handleRelay,
	KindSave:   (*Hub).handleSave,
}

// NewHub creates a hub. verifier and persister may be nil, in which case
// every connection is anonymous and snapshots are discarded.
func NewHub(dir *Directory, verifier auth.Verifier, persister Persister, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	// 이벤트 종류별 카운터를 0으로 노출
	for _, k := range AllKinds() {
		metrics.RelayEventsReceived.WithLabelValues(k.String())
	}
	return &Hub{
		dir:       dir,
		verifier:  verifier,
		persister: persister,
		log:       logging.Component("relay"),
		now:       time.Now,
		cmds:      make(chan command, bufferSize),
		stopping:  make(chan struct{}),
		stopped:   make(chan struct{}),
		members:   make(map[string]*member),
	}
}

// Directory exposes the session directory for read-only callers.
func (h *Hub) Directory() *Directory {
	return h.dir
}

// Connections is the number of attached connections.
func (h *Hub) Connections() int {
	return int(h.connections.Load())
}

// Run processes commands until ctx is cancelled, then closes every peer.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	h.log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case cmd := <-h.cmds:
			h.apply(cmd)
		}
	}
}

// submit blocks until the loop accepts cmd or is shutting down. A command
// accepted here is either applied by the loop or released by shutdown.
func (h *Hub) submit(cmd command) bool {
	h.submitMu.RLock()
	defer h.submitMu.RUnlock()
	if h.closed {
		return false
	}
	select {
	case h.cmds <- cmd:
		return true
	case <-h.stopping:
		return false
	}
}

// Dispatch decodes one inbound frame from connID and hands it to the loop.
// Calls for one connection must come from a single goroutine to keep that
// sender's events in order.
func (h *Hub) Dispatch(connID string, frame []byte) {
	ev, err := Decode(frame)
	h.submit(command{op: opInbound, connID: connID, event: ev, err: err})
}

func (h *Hub) apply(cmd command) {
	switch cmd.op {
	case opAttach:
		h.attach(cmd.member)
	case opDetach:
		h.detach(cmd.connID)
	case opInbound:
		m, ok := h.members[cmd.connID]
		if !ok {
			return
		}
		if cmd.err != nil {
			h.reject(m, cmd.err)
			return
		}
		handle, ok := dispatch[cmd.event.Kind]
		if !ok {
			h.reject(m, ErrUnknownEvent)
			return
		}
		metrics.RelayEventsReceived.WithLabelValues(cmd.event.Kind.String()).Inc()
		handle(h, m, cmd.event)
	}
}

func (h *Hub) shutdown() {
	// 대기 중인 submit을 깨운 뒤 더 이상 명령을 받지 않는다
	close(h.stopping)
	h.submitMu.Lock()
	h.closed = true
	h.submitMu.Unlock()

drain:
	for {
		select {
		case cmd := <-h.cmds:
			h.release(cmd)
		default:
			break drain
		}
	}

	for id, m := range h.members {
		if sessionID, first := m.conn.Close(); first && sessionID != "" {
			h.dir.Unregister(sessionID, id)
		}
		m.peer.Close()
		delete(h.members, id)
	}
	h.connections.Store(0)
	metrics.RelayConnections.Set(0)
	metrics.RelaySessions.Set(float64(h.dir.Len()))
	h.log.Info().Msg("hub stopped")
}

// release handles a command that arrived too late for the loop. Attaches are
// closed so their transport does not outlive the hub.
func (h *Hub) release(cmd command) {
	if cmd.op != opAttach {
		return
	}
	cmd.member.conn.Close()
	cmd.member.peer.Close()
}

// =============================================================================
// Event Relay
// =============================================================================

func (h *Hub) handleRelay(m *member, ev Event) {
	sessionID, joined := m.conn.SessionID()
	if !joined {
		h.reject(m, ErrNotJoined)
		return
	}
	if scope := ev.Scope(); scope != "" && scope != sessionID {
		h.reject(m, ErrSessionMismatch)
		return
	}
	h.relay(m.conn.ID, sessionID, ev)
}

// relay delivers ev to every participant of sessionID except the sender.
func (h *Hub) relay(senderID, sessionID string, ev Event) {
	fields, err := relayFields(ev, sessionID, senderID)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Kind.String()).Msg("encode relay payload")
		return
	}
	frame, err := Encode(ev.Kind.String(), fields)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Kind.String()).Msg("encode relay frame")
		return
	}

	for _, p := range h.dir.RosterOf(sessionID) {
		if p.ConnectionID == senderID {
			continue
		}
		h.deliver(p.ConnectionID, ev.Kind.String(), frame)
	}
}

// broadcastRoster sends the full roster to every participant in it.
func (h *Hub) broadcastRoster(sessionID string, roster []Participant) {
	if len(roster) == 0 {
		return
	}
	frame, err := rosterFrame(roster)
	if err != nil {
		h.log.Error().Err(err).Str("session", sessionID).Msg("encode roster")
		return
	}
	for _, p := range roster {
		h.deliver(p.ConnectionID, EventUsersUpdate, frame)
	}
}

func (h *Hub) deliver(connID, event string, frame []byte) {
	m, ok := h.members[connID]
	if !ok {
		return
	}
	queued := m.peer.Send(frame)
	metrics.RecordDelivery(event, queued)
	if !queued {
		h.log.Warn().Str("connection", connID).Str("event", event).Msg("peer queue full, frame dropped")
	}
}

func (h *Hub) reject(m *member, err error) {
	code := errorCode(err)
	metrics.RelayEventsRejected.WithLabelValues(code).Inc()
	h.log.Debug().Err(err).Str("connection", m.conn.ID).Msg("event dropped")

	frame, encErr := errorFrame(err)
	if encErr != nil {
		return
	}
	h.deliver(m.conn.ID, EventError, frame)
}

// =============================================================================
// Snapshot
// =============================================================================

func (h *Hub) handleSave(m *member, ev Event) {
	save := ev.Payload.(*SavePayload)

	sessionID, joined := m.conn.SessionID()
	if !joined {
		h.reject(m, ErrNotJoined)
		return
	}
	if save.SessionID != sessionID {
		h.reject(m, ErrSessionMismatch)
		return
	}
	if h.persister == nil {
		return
	}
	if !h.persister.Enqueue(sessionID, save.Snapshot) {
		h.log.Warn().Str("session", sessionID).Msg("snapshot queue full, save dropped")
	}
}
