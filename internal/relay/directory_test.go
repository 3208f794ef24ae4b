package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func participant(id string, offset time.Duration) Participant {
	return Participant{ConnectionID: id, Name: id, JoinedAt: epoch.Add(offset)}
}

func ids(roster []Participant) []string {
	out := make([]string, 0, len(roster))
	for _, p := range roster {
		out = append(out, p.ConnectionID)
	}
	return out
}

func TestDirectoryRegister(t *testing.T) {
	d := NewDirectory()
	d.Register("ROOM1", participant("b", time.Second))
	d.Register("ROOM1", participant("a", 2*time.Second))
	d.Register("ROOM1", participant("c", time.Second))

	assert.Equal(t, []string{"b", "c", "a"}, ids(d.RosterOf("ROOM1")))
	assert.Equal(t, 1, d.Len())

	// overwrite keeps a single entry
	updated := participant("a", 2*time.Second)
	updated.Name = "Ada"
	d.Register("ROOM1", updated)
	roster := d.RosterOf("ROOM1")
	require.Len(t, roster, 3)
	assert.Equal(t, "Ada", roster[2].Name)

	sid, ok := d.CurrentSessionOf("a")
	assert.True(t, ok)
	assert.Equal(t, "ROOM1", sid)
}

func TestDirectoryRegisterMovesConnection(t *testing.T) {
	d := NewDirectory()
	d.Register("ROOM1", participant("a", 0))
	d.Register("ROOM2", participant("a", time.Second))

	assert.Empty(t, d.RosterOf("ROOM1"))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, []string{"a"}, ids(d.RosterOf("ROOM2")))
}

func TestDirectoryUnregister(t *testing.T) {
	d := NewDirectory()
	d.Register("ROOM1", participant("a", 0))
	d.Register("ROOM1", participant("b", time.Second))

	remaining, empty := d.Unregister("ROOM1", "a")
	assert.False(t, empty)
	assert.Equal(t, []string{"b"}, ids(remaining))

	_, ok := d.CurrentSessionOf("a")
	assert.False(t, ok)

	// absent participant is a no-op
	remaining, empty = d.Unregister("ROOM1", "a")
	assert.False(t, empty)
	assert.Equal(t, []string{"b"}, ids(remaining))

	remaining, empty = d.Unregister("ROOM1", "b")
	assert.True(t, empty)
	assert.Empty(t, remaining)
	assert.Equal(t, 0, d.Len())

	remaining, empty = d.Unregister("ROOM1", "b")
	assert.False(t, empty)
	assert.Nil(t, remaining)
}

func TestDirectoryRosterIsCopy(t *testing.T) {
	d := NewDirectory()
	d.Register("ROOM1", participant("a", 0))

	roster := d.RosterOf("ROOM1")
	roster[0].Name = "mutated"

	assert.Equal(t, "a", d.RosterOf("ROOM1")[0].Name)
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	d := NewDirectory()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			room := fmt.Sprintf("ROOM%d", i%4)
			d.Register(room, participant(id, time.Duration(i)))
			_ = d.RosterOf(room)
			_, _ = d.CurrentSessionOf(id)
			d.Unregister(room, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, d.Len())
}
