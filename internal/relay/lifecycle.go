package relay

import (
	"errors"

	"stromboard/internal/auth"
	"stromboard/internal/connection"
	"stromboard/internal/metrics"
)

const guestName = "Guest"

// Attach registers a new connection with the hub. A present but invalid
// token is logged and the connection continues anonymously. If the hub has
// stopped the peer is closed and the returned connection is already
// disconnected.
func (h *Hub) Attach(peer Peer, token string) *connection.Connection {
	conn := connection.New("")

	if token != "" && h.verifier != nil {
		identity, err := h.verifier.Verify(token)
		switch {
		case err != nil:
			metrics.RelayInvalidTokens.Inc()
			h.log.Warn().
				Err(err).
				Str("connection", conn.ID).
				Bool("expired", errors.Is(err, auth.ErrExpiredToken)).
				Msg("invalid token, continuing unauthenticated")
		default:
			_ = conn.Authenticate(identity)
		}
	}

	if !h.submit(command{op: opAttach, member: &member{conn: conn, peer: peer}}) {
		conn.Close()
		peer.Close()
	}
	return conn
}

// Detach tears down a connection. Repeated calls are no-ops.
func (h *Hub) Detach(connID string) {
	h.submit(command{op: opDetach, connID: connID})
}

func (h *Hub) attach(m *member) {
	h.members[m.conn.ID] = m
	h.connections.Add(1)
	metrics.RelayConnections.Inc()

	ev := h.log.Info().Str("connection", m.conn.ID)
	if id := m.conn.Identity(); id != nil {
		ev = ev.Str("user", id.UserID)
	}
	ev.Msg("connected")
}

func (h *Hub) detach(connID string) {
	m, ok := h.members[connID]
	if !ok {
		return
	}
	delete(h.members, connID)
	h.connections.Add(-1)
	metrics.RelayConnections.Dec()

	if sessionID, first := m.conn.Close(); first && sessionID != "" {
		h.leave(sessionID, connID)
	}
	m.peer.Close()

	h.log.Info().
		Str("connection", connID).
		Dur("duration", m.conn.Duration()).
		Msg("disconnected")
}

// leave removes connID from sessionID and tells the remaining participants.
func (h *Hub) leave(sessionID, connID string) {
	remaining, becameEmpty := h.dir.Unregister(sessionID, connID)
	metrics.RelaySessions.Set(float64(h.dir.Len()))
	if becameEmpty {
		h.log.Debug().Str("session", sessionID).Msg("session roster emptied")
		return
	}
	h.broadcastRoster(sessionID, remaining)
}

func (h *Hub) handleJoin(m *member, ev Event) {
	join := ev.Payload.(*JoinPayload)

	previous, err := m.conn.Join(join.SessionID)
	if err != nil {
		h.reject(m, err)
		return
	}
	if previous != "" && previous != join.SessionID {
		h.leave(previous, m.conn.ID)
	}

	h.dir.Register(join.SessionID, Participant{
		ConnectionID: m.conn.ID,
		Name:         displayName(join.UserName, m.conn.Identity()),
		Avatar:       join.UserAvatar,
		JoinedAt:     h.now(),
		Identity:     m.conn.Identity(),
	})
	metrics.RelaySessions.Set(float64(h.dir.Len()))

	h.log.Info().
		Str("connection", m.conn.ID).
		Str("session", join.SessionID).
		Str("previous", previous).
		Msg("joined session")

	h.broadcastRoster(join.SessionID, h.dir.RosterOf(join.SessionID))
}

func displayName(userName string, identity *auth.Identity) string {
	if userName != "" {
		return userName
	}
	if identity != nil && identity.Name != "" {
		return identity.Name
	}
	return guestName
}
