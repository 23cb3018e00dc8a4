package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/presence"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/registry/registrytest"
	"github.com/matheus3301/hive/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	h := newHarness(t, 0, 0)
	ctx := context.Background()

	id, err := h.sessions.Authenticate(ctx, Credentials{Token: h.token(t, "alice")})
	require.NoError(t, err)
	assert.Equal(t, "alice", id.ID)

	_, err = h.sessions.Authenticate(ctx, Credentials{})
	assert.True(t, fault.Is(err, fault.KindAuth, fault.MissingToken))

	_, err = h.sessions.Authenticate(ctx, Credentials{Token: "garbage"})
	assert.True(t, fault.Is(err, fault.KindAuth, fault.InvalidToken))
}

func TestAuthenticateFromFirstFrame(t *testing.T) {
	h := newHarness(t, 0, 0)
	tok := h.token(t, "alice")

	id, err := h.sessions.Authenticate(context.Background(), Credentials{
		ReadToken: func(context.Context) (string, error) { return tok, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", id.ID)
}

func TestAuthenticateHandshakeTimeout(t *testing.T) {
	h := newHarness(t, 0, 0)

	start := time.Now()
	_, err := h.sessions.Authenticate(context.Background(), Credentials{
		ReadToken: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	assert.True(t, fault.Is(err, fault.KindAuth, fault.HandshakeTimeout), "err = %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAuthenticateFailureCreatesNoState(t *testing.T) {
	h := newHarness(t, 0, 0)
	_, err := h.sessions.Authenticate(context.Background(), Credentials{
		ReadToken: func(context.Context) (string, error) { return "", errors.New("peer went away") },
	})
	assert.True(t, fault.Is(err, fault.KindAuth, fault.MissingToken))
	assert.Empty(t, h.sessions.Online())
	n, _ := h.db.UserCount(context.Background())
	assert.EqualValues(t, 0, n)
}

func TestConnectAnnouncesPresence(t *testing.T) {
	h := newHarness(t, 0, 0)
	ctx := context.Background()

	bob := h.connect(t, "tb", "bob")
	alice := h.connect(t, "ta", "alice")

	online := alice.Events(protocol.EventOnlineUsers)
	require.Len(t, online, 1)
	assert.Equal(t, []string{"alice", "bob"}, online[0].Data)

	changes := bob.Events(protocol.EventUserStatusChanged)
	require.Len(t, changes, 1)
	status := changes[0].Data.(protocol.UserStatus)
	assert.Equal(t, "alice", status.UserID)
	assert.Equal(t, "online", status.Status)
	assert.Empty(t, alice.Events(protocol.EventUserStatusChanged), "a user is not told about their own connect")

	u, err := h.db.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.PresenceOnline, u.Presence)
	assert.Equal(t, "@alice", u.Handle)
}

func TestConnectSupersedesPreviousSession(t *testing.T) {
	h := newHarness(t, 0, 0)
	bob := h.connect(t, "tb", "bob")

	first := h.connect(t, "t1", "alice")
	second := h.connect(t, "t2", "alice")

	closed, reason := first.Closed()
	assert.True(t, closed)
	assert.Equal(t, ReasonSuperseded, reason)
	require.Len(t, first.Events(protocol.EventForceDisconnect), 1)

	live, ok := h.conns.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "t2", live.ID())
	closed, _ = second.Closed()
	assert.False(t, closed)

	// The old transport's late disconnect must not evict the new one.
	h.sessions.Disconnect(context.Background(), auth.Identity{ID: "alice"}, first)
	live, ok = h.conns.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "t2", live.ID())
	assert.Equal(t, presence.Online, h.sessions.Presence("alice"))

	// Bob saw alice come online once; the supersede is invisible to him.
	assert.Len(t, bob.Events(protocol.EventUserStatusChanged), 1)
}

func TestManyConnectsLeaveOneSession(t *testing.T) {
	h := newHarness(t, 0, 0)

	const n = 20
	transports := make([]*registrytest.Transport, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		transports[i] = registrytest.New(fmt.Sprintf("t%02d", i), "alice")
		wg.Add(1)
		go func(tr *registrytest.Transport) {
			defer wg.Done()
			assert.NoError(t, h.sessions.Connect(context.Background(), auth.Identity{ID: "alice"}, tr))
		}(transports[i])
	}
	wg.Wait()

	assert.Equal(t, 1, h.conns.Len())
	live, ok := h.conns.Lookup("alice")
	require.True(t, ok)

	open := 0
	for _, tr := range transports {
		if closed, _ := tr.Closed(); !closed {
			open++
			assert.Equal(t, live.ID(), tr.ID(), "the only open transport is the registered one")
		}
	}
	assert.Equal(t, 1, open)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, 0, 0)
	ctx := context.Background()
	bob := h.connect(t, "tb", "bob")
	alice := h.connect(t, "ta", "alice")
	h.rooms.Join(protocol.ConversationRoom("c1"), alice)

	id := auth.Identity{ID: "alice"}
	h.sessions.Disconnect(ctx, id, alice)
	h.sessions.Disconnect(ctx, id, alice)

	_, ok := h.conns.Lookup("alice")
	assert.False(t, ok)
	assert.Empty(t, h.rooms.Members(protocol.ConversationRoom("c1")))

	offline := 0
	for _, f := range bob.Events(protocol.EventUserStatusChanged) {
		if f.Data.(protocol.UserStatus).Status == "offline" {
			offline++
		}
	}
	assert.Equal(t, 1, offline)

	u, err := h.db.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.PresenceOffline, u.Presence)
	assert.NotZero(t, u.LastSeen)
}

func TestSetPresenceAway(t *testing.T) {
	h := newHarness(t, 0, 0)
	ctx := context.Background()
	bob := h.connect(t, "tb", "bob")
	h.connect(t, "ta", "alice")

	require.NoError(t, h.sessions.SetPresence(ctx, "alice", "away"))
	assert.Equal(t, presence.Away, h.sessions.Presence("alice"))

	changes := bob.Events(protocol.EventUserStatusChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, "away", changes[1].Data.(protocol.UserStatus).Status)

	err := h.sessions.SetPresence(ctx, "alice", "offline")
	assert.True(t, fault.Is(err, fault.KindValidation, fault.InvalidPresence))
	err = h.sessions.SetPresence(ctx, "carol", "away")
	assert.True(t, fault.Is(err, fault.KindValidation, fault.UserNotFound))
}

func TestKick(t *testing.T) {
	h := newHarness(t, 0, 0)
	alice := h.connect(t, "ta", "alice")

	assert.True(t, h.sessions.Kick("alice", ""))
	closed, reason := alice.Closed()
	assert.True(t, closed)
	assert.Equal(t, ReasonKicked, reason)
	assert.False(t, h.sessions.Kick("nobody", ""))
}
