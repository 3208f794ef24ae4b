package relay

import (
	"sort"
	"sync"
	"time"

	"stromboard/internal/auth"
)

// Participant is one connection's presence in a session.
type Participant struct {
	ConnectionID string
	Name         string
	Avatar       string
	JoinedAt     time.Time
	Identity     *auth.Identity
}

// Directory maps sessions to their live rosters.
//
// A connection appears in at most one roster, and a session with an empty
// roster is removed from the directory. Mutations come from the hub loop;
// the lock lets REST handlers read rosters concurrently.
type Directory struct {
	mu        sync.RWMutex
	rosters   map[string]map[string]Participant
	sessionOf map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		rosters:   make(map[string]map[string]Participant),
		sessionOf: make(map[string]string),
	}
}

// Register inserts or overwrites p in the session's roster, creating the
// session if needed. A connection registered elsewhere is moved.
func (d *Directory) Register(sessionID string, p Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.sessionOf[p.ConnectionID]; ok && prev != sessionID {
		d.removeLocked(prev, p.ConnectionID)
	}

	roster, ok := d.rosters[sessionID]
	if !ok {
		roster = make(map[string]Participant)
		d.rosters[sessionID] = roster
	}
	roster[p.ConnectionID] = p
	d.sessionOf[p.ConnectionID] = sessionID
}

// Unregister removes the connection from the session and returns what is
// left. becameEmpty reports that this call removed the last participant.
// Removing an absent participant is a no-op.
func (d *Directory) Unregister(sessionID, connectionID string) (remaining []Participant, becameEmpty bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roster, ok := d.rosters[sessionID]
	if !ok {
		return nil, false
	}
	if _, ok := roster[connectionID]; !ok {
		return sortedRoster(roster), false
	}

	becameEmpty = d.removeLocked(sessionID, connectionID)
	if becameEmpty {
		return nil, true
	}
	return sortedRoster(d.rosters[sessionID]), false
}

func (d *Directory) removeLocked(sessionID, connectionID string) (becameEmpty bool) {
	roster := d.rosters[sessionID]
	delete(roster, connectionID)
	if d.sessionOf[connectionID] == sessionID {
		delete(d.sessionOf, connectionID)
	}
	if len(roster) == 0 {
		delete(d.rosters, sessionID)
		return true
	}
	return false
}

// RosterOf returns a copy of the session's roster ordered by join time.
func (d *Directory) RosterOf(sessionID string) []Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedRoster(d.rosters[sessionID])
}

// CurrentSessionOf returns the session the connection is registered in.
func (d *Directory) CurrentSessionOf(connectionID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sid, ok := d.sessionOf[connectionID]
	return sid, ok
}

// Len is the number of live sessions.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rosters)
}

func sortedRoster(roster map[string]Participant) []Participant {
	out := make([]Participant, 0, len(roster))
	for _, p := range roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}
