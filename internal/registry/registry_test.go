package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/matheus3301/hive/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	id, user string
}

func (s *stubTransport) ID() string                { return s.id }
func (s *stubTransport) UserID() string            { return s.user }
func (s *stubTransport) Send(protocol.Frame) error { return nil }
func (s *stubTransport) Close(string)              {}

func TestRegisterReplaces(t *testing.T) {
	r := New()
	t1 := &stubTransport{"t1", "alice"}
	t2 := &stubTransport{"t2", "alice"}

	prev, replaced := r.Register("alice", t1)
	assert.False(t, replaced)
	assert.Nil(t, prev)

	prev, replaced = r.Register("alice", t2)
	assert.True(t, replaced)
	assert.Equal(t, t1, prev)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "t2", got.ID())
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterIfIgnoresSuperseded(t *testing.T) {
	r := New()
	old := &stubTransport{"t1", "alice"}
	cur := &stubTransport{"t2", "alice"}
	r.Register("alice", old)
	r.Register("alice", cur)

	assert.False(t, r.UnregisterIf("alice", old), "superseded transport must not remove its successor")
	_, ok := r.Lookup("alice")
	assert.True(t, ok)

	assert.True(t, r.UnregisterIf("alice", cur))
	assert.False(t, r.UnregisterIf("alice", cur), "second removal is a no-op")
	r.Unregister("alice")
}

func TestSnapshotSorted(t *testing.T) {
	r := New()
	for _, id := range []string{"carol", "alice", "bob"} {
		r.Register(id, &stubTransport{"t-" + id, id})
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Snapshot())
	assert.Len(t, r.Transports(), 3)
}

func TestConcurrentRegisterKeepsOneEntry(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := &stubTransport{fmt.Sprintf("t%d", i), "alice"}
			r.Register("alice", tr)
			r.UnregisterIf("alice", tr)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 1)
}

func TestRooms(t *testing.T) {
	rooms := NewRooms()
	a := &stubTransport{"ta", "alice"}
	b := &stubTransport{"tb", "bob"}

	rooms.Join("conversation:c1", a)
	rooms.Join("conversation:c1", b)
	rooms.Join("conversation:c1", b)
	rooms.Join("post:p1", a)

	members := rooms.Members("conversation:c1")
	require.Len(t, members, 2)
	assert.Equal(t, "ta", members[0].ID())

	rooms.Leave("conversation:c1", b)
	assert.Len(t, rooms.Members("conversation:c1"), 1)

	left := rooms.LeaveAll(a)
	assert.Equal(t, []string{"conversation:c1", "post:p1"}, left)
	assert.Empty(t, rooms.Members("post:p1"))
	assert.Equal(t, 0, rooms.Count())
	assert.Empty(t, rooms.LeaveAll(a))
}
