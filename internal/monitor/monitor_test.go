package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/hive/internal/admin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	status *admin.Status
	online []admin.OnlineUser
	err    error
	kicked []string
}

func (f *fakeSource) Status(context.Context) (*admin.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeSource) ListOnline(context.Context) ([]admin.OnlineUser, error) {
	return f.online, f.err
}

func (f *fakeSource) Kick(_ context.Context, userID, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, u := range f.online {
		if u.UserID == userID {
			f.kicked = append(f.kicked, userID)
			return true, nil
		}
	}
	return false, nil
}

func TestRefreshKeepsLastSnapshotOnError(t *testing.T) {
	src := &fakeSource{
		status: &admin.Status{Node: "n1", Connections: 1},
		online: []admin.OnlineUser{{UserID: "u1", Presence: "online"}},
	}
	vm := NewViewModel(src)
	require.NoError(t, vm.Refresh(context.Background()))
	assert.Equal(t, "n1", vm.Status().Node)
	assert.False(t, vm.Refreshed().IsZero())

	src.err = errors.New("connection refused")
	assert.Error(t, vm.Refresh(context.Background()))
	assert.Equal(t, "n1", vm.Status().Node, "old snapshot survives a failed poll")
	assert.EqualError(t, vm.Err(), "connection refused")

	src.err = nil
	require.NoError(t, vm.Refresh(context.Background()))
	assert.NoError(t, vm.Err())
}

func TestOnlineReturnsCopy(t *testing.T) {
	vm := NewViewModel(&fakeSource{status: &admin.Status{}, online: []admin.OnlineUser{{UserID: "u1"}}})
	require.NoError(t, vm.Refresh(context.Background()))
	got := vm.Online()
	got[0].UserID = "changed"
	assert.Equal(t, "u1", vm.Online()[0].UserID)
}

func TestKickFlashes(t *testing.T) {
	src := &fakeSource{online: []admin.OnlineUser{{UserID: "u1"}}}
	vm := NewViewModel(src)

	require.NoError(t, vm.Kick(context.Background(), "u1"))
	assert.Equal(t, "kicked u1", vm.Flash.Get())
	assert.Equal(t, []string{"u1"}, src.kicked)

	require.NoError(t, vm.Kick(context.Background(), "ghost"))
	assert.Equal(t, "ghost is not connected", vm.Flash.Get())

	src.err = errors.New("boom")
	assert.Error(t, vm.Kick(context.Background(), "u1"))
	assert.True(t, strings.HasPrefix(vm.Flash.Get(), "kick failed"))
}

func TestFlashExpires(t *testing.T) {
	var f Flash
	f.Set("hello", 20*time.Millisecond)
	assert.Equal(t, "hello", f.Get())
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, f.Get())
}

func TestBindings(t *testing.T) {
	var b Bindings
	var hit string
	b.Add(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Handler: func() { hit = "quit" }})
	b.Add(&Action{Key: tcell.KeyEscape, Handler: func() { hit = "esc" }})

	assert.True(t, b.Handle(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)))
	assert.Equal(t, "quit", hit)
	assert.True(t, b.Handle(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
	assert.Equal(t, "esc", hit)
	assert.False(t, b.Handle(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)))
	assert.Equal(t, []string{"q:quit"}, b.Hints())
}

func TestRenderStats(t *testing.T) {
	assert.Contains(t, renderStats(nil), "waiting")

	out := renderStats(&admin.Status{
		Node:        "node-a",
		UptimeMs:    61_500,
		Connections: 3,
		Outbox:      map[string]int64{"sent": 9, "queued": 2},
	})
	assert.Contains(t, out, "node-a")
	assert.Contains(t, out, "1m1s")
	assert.Less(t, strings.Index(out, "outbox queued"), strings.Index(out, "outbox sent"))
}

func TestOnlineTableKeepsSelection(t *testing.T) {
	table := NewOnlineTable()
	table.Update([]admin.OnlineUser{{UserID: "a", Presence: "online"}, {UserID: "b", Presence: "away"}})
	table.Select(2, 0)
	assert.Equal(t, "b", table.Selected())

	table.Update([]admin.OnlineUser{{UserID: "0", Presence: "online"}, {UserID: "a"}, {UserID: "b"}})
	assert.Equal(t, "b", table.Selected())

	table.Update(nil)
	assert.Equal(t, "", table.Selected())
}

func TestStatusLine(t *testing.T) {
	line := statusLine("/tmp/d.sock", time.Time{}, errors.New("down"), []string{"q:quit"}, "kicked u1")
	assert.Contains(t, line, "/tmp/d.sock")
	assert.Contains(t, line, "down")
	assert.Contains(t, line, "--:--:--")
	assert.Contains(t, line, "kicked u1")
}
