package relay

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/conversation"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/notify"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/registry"
	"github.com/matheus3301/hive/internal/registry/registrytest"
	"github.com/matheus3301/hive/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingRecord makes persistence fail deterministically.
type failingRecord struct {
	*conversation.Gateway
}

func (failingRecord) Record(context.Context, *store.Message) error {
	return fault.Persistence("record message", errors.New("disk I/O error"))
}

// stuckRecord blocks until the send deadline fires.
type stuckRecord struct {
	*conversation.Gateway
}

func (stuckRecord) Record(ctx context.Context, _ *store.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

type fixture struct {
	db      *store.DB
	gateway *conversation.Gateway
	conns   *registry.Registry
	rooms   *registry.Rooms
	fan     *fanout.Fanout
	bus     *bus.Bus
	relay   *Relay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, db.UpsertUser(ctx, id, "@"+id))
	}

	f := &fixture{
		db:      db,
		gateway: conversation.NewGateway(db),
		conns:   registry.New(),
		rooms:   registry.NewRooms(),
		bus:     bus.New(),
	}
	f.fan = fanout.New(f.conns, f.rooms, nil, zap.NewNop())
	f.relay = f.build(f.gateway)
	return f
}

func (f *fixture) build(convs Conversations) *Relay {
	return f.buildWithTimeout(convs, 0)
}

func (f *fixture) buildWithTimeout(convs Conversations, sendTimeout time.Duration) *Relay {
	d := notify.NewDispatcher(f.db, f.fan, f.bus, nil, zap.NewNop(), 2)
	return New(convs, f.db, d, f.fan, f.bus, nil, zap.NewNop(), sendTimeout)
}

func (f *fixture) connect(user string) *registrytest.Transport {
	tr := registrytest.New("t-"+user, user)
	f.conns.Register(user, tr)
	return tr
}

func TestSendBothOnline(t *testing.T) {
	f := newFixture(t)
	a := f.connect("alice")
	b := f.connect("bob")

	msg, err := f.relay.Send(context.Background(), "alice", Input{ReceiverID: "bob", Text: "hi"})
	require.NoError(t, err)

	for _, tr := range []*registrytest.Transport{a, b} {
		frames := tr.Events(protocol.EventNewMessage)
		require.Len(t, frames, 1, tr.UserID())
		assert.Equal(t, msg.ID, frames[0].Data.(protocol.Message).ID)
	}

	notes := b.Events(protocol.EventNewNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, notify.TypeMessage, notes[0].Data.(protocol.Notification).Type)
	assert.Empty(t, a.Events(protocol.EventNewNotification))
}

func TestSendToOfflineReceiverPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect("alice")

	msg, err := f.relay.Send(ctx, "alice", Input{ReceiverID: "bob", Text: "you there?"})
	require.NoError(t, err)
	assert.Len(t, a.Events(protocol.EventNewMessage), 1)

	msgs, err := f.db.ListMessages(ctx, msg.ConversationID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	n, err := f.db.CountNotifications(ctx, "bob", notify.TypeMessage)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSendRoomSubscriberGetsMessageOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect("alice")
	b := f.connect("bob")

	conv, err := f.gateway.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	f.rooms.Join(protocol.ConversationRoom(conv.ID), a)
	f.rooms.Join(protocol.ConversationRoom(conv.ID), b)

	_, err = f.relay.Send(ctx, "alice", Input{ReceiverID: "bob", Text: "hi", ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Len(t, a.Events(protocol.EventNewMessage), 1)
	assert.Len(t, b.Events(protocol.EventNewMessage), 1)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		in     Input
		reason string
	}{
		{"missing receiver", Input{Text: "hi"}, fault.MissingReceiver},
		{"self", Input{ReceiverID: "alice", Text: "hi"}, fault.SelfMessage},
		{"empty", Input{ReceiverID: "bob", Text: "  "}, fault.EmptyMessage},
		{"unknown type", Input{ReceiverID: "bob", Text: "hi", Type: "sticker"}, fault.UnknownMessageType},
		{"unknown receiver", Input{ReceiverID: "zed", Text: "hi"}, fault.UserNotFound},
		{"mismatched conversation", Input{ReceiverID: "bob", Text: "hi", ConversationID: "other"}, fault.ConversationMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.relay.Send(ctx, "alice", tt.in)
			assert.True(t, fault.Is(err, fault.KindValidation, tt.reason), "err = %v", err)
		})
	}
	n, _ := f.db.MessageCount(ctx)
	assert.EqualValues(t, 0, n)
}

func TestSendAttachmentSetsType(t *testing.T) {
	f := newFixture(t)
	msg, err := f.relay.Send(context.Background(), "alice", Input{
		ReceiverID: "bob",
		Attachment: &protocol.Attachment{Kind: "voice", URL: "https://cdn/v.ogg"},
	})
	require.NoError(t, err)
	assert.Equal(t, TypeVoice, msg.Type)
	assert.Equal(t, "https://cdn/v.ogg", msg.AttachmentURL)
}

func TestSystemMessageSkipsNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.connect("bob")

	_, err := f.relay.Send(ctx, "alice", Input{ReceiverID: "bob", Text: "call ended", Type: TypeSystem})
	require.NoError(t, err)
	assert.Len(t, b.Events(protocol.EventNewMessage), 1)
	assert.Empty(t, b.Events(protocol.EventNewNotification))
}

func TestPersistenceFailureDeliversNothing(t *testing.T) {
	f := newFixture(t)
	r := f.build(failingRecord{f.gateway})
	a := f.connect("alice")
	b := f.connect("bob")

	_, err := r.Send(context.Background(), "alice", Input{ReceiverID: "bob", Text: "hi"})
	assert.Equal(t, fault.KindPersistence, fault.KindOf(err))
	assert.Empty(t, a.Frames())
	assert.Empty(t, b.Frames())

	n, _ := f.db.NotificationCount(context.Background())
	assert.EqualValues(t, 0, n)
}

func TestSendTimeoutBoundsPersistence(t *testing.T) {
	f := newFixture(t)
	r := f.buildWithTimeout(stuckRecord{f.gateway}, 50*time.Millisecond)
	a := f.connect("alice")
	b := f.connect("bob")

	start := time.Now()
	_, err := r.Send(context.Background(), "alice", Input{ReceiverID: "bob", Text: "hi"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, fault.KindPersistence, fault.KindOf(err))
	assert.Less(t, elapsed, 2*time.Second, "send must give up at its deadline")
	assert.Empty(t, a.Frames())
	assert.Empty(t, b.Frames())

	n, _ := f.db.NotificationCount(context.Background())
	assert.EqualValues(t, 0, n)
}

func TestDeliveryFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	a := f.connect("alice")
	b := f.connect("bob")
	b.FailWith(errors.New("send queue full"))

	msg, err := f.relay.Send(context.Background(), "alice", Input{ReceiverID: "bob", Text: "hi"})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Len(t, a.Events(protocol.EventNewMessage), 1)
}

func TestUnreadAccountingThenMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect("alice")

	var convID string
	for i := 0; i < 3; i++ {
		msg, err := f.relay.Send(ctx, "alice", Input{ReceiverID: "bob", Text: "ping"})
		require.NoError(t, err)
		convID = msg.ConversationID
	}
	n, _ := f.gateway.Unread(ctx, convID, "bob")
	assert.Equal(t, 3, n)

	// Alice writes back once so she has a counter of her own.
	_, err := f.relay.Send(ctx, "bob", Input{ReceiverID: "alice", Text: "pong"})
	require.NoError(t, err)

	require.NoError(t, f.relay.MarkRead(ctx, "bob", convID))
	n, _ = f.gateway.Unread(ctx, convID, "bob")
	assert.Equal(t, 0, n)
	n, _ = f.gateway.Unread(ctx, convID, "alice")
	assert.Equal(t, 1, n)

	reads := a.Events(protocol.EventMessagesRead)
	require.Len(t, reads, 1)
	assert.Equal(t, "bob", reads[0].Data.(protocol.MessagesRead).ReaderID)
}

func TestMarkReadRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.gateway.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	err = f.relay.MarkRead(ctx, "carol", conv.ID)
	assert.True(t, fault.Is(err, fault.KindValidation, fault.NotParticipant))
	err = f.relay.MarkRead(ctx, "carol", "missing")
	assert.True(t, fault.Is(err, fault.KindValidation, fault.ConversationNotFound))
}

func TestTypingReachesOtherRoomMembersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect("alice")
	b := f.connect("bob")
	conv, err := f.gateway.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	f.rooms.Join(protocol.ConversationRoom(conv.ID), a)
	f.rooms.Join(protocol.ConversationRoom(conv.ID), b)

	require.NoError(t, f.relay.Typing(ctx, "alice", conv.ID, true, a.ID()))
	assert.Empty(t, a.Frames())
	frames := b.Events(protocol.EventTyping)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Data.(protocol.TypingStatus).IsTyping)
}

func TestTypingRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.connect("bob")
	c := f.connect("carol")
	conv, err := f.gateway.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	f.rooms.Join(protocol.ConversationRoom(conv.ID), b)

	err = f.relay.Typing(ctx, "carol", conv.ID, true, c.ID())
	assert.True(t, fault.Is(err, fault.KindValidation, fault.NotParticipant))
	assert.Empty(t, b.Events(protocol.EventTyping))

	err = f.relay.Typing(ctx, "bob", "missing", true, b.ID())
	assert.True(t, fault.Is(err, fault.KindValidation, fault.ConversationNotFound))
	err = f.relay.Typing(ctx, "bob", "", true, b.ID())
	assert.True(t, fault.Is(err, fault.KindValidation, fault.ConversationNotFound))
}

func TestConcurrentFirstMessagesShareConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		wg.Add(1)
		go func(i int, from, to string) {
			defer wg.Done()
			msg, err := f.relay.Send(ctx, from, Input{ReceiverID: to, Text: "first"})
			if assert.NoError(t, err) {
				ids[i] = msg.ConversationID
			}
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	assert.Equal(t, ids[0], ids[1])
	n, _ := f.db.ConversationCount(ctx)
	assert.EqualValues(t, 1, n)
}
