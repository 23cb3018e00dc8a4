package realtime

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/conversation"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/notify"
	"github.com/matheus3301/hive/internal/presence"
	"github.com/matheus3301/hive/internal/registry"
	"github.com/matheus3301/hive/internal/registry/registrytest"
	"github.com/matheus3301/hive/internal/relay"
	"github.com/matheus3301/hive/internal/social"
	"github.com/matheus3301/hive/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type harness struct {
	db       *store.DB
	bus      *bus.Bus
	conns    *registry.Registry
	rooms    *registry.Rooms
	verifier *auth.Verifier
	sessions *Sessions
	router   *Router
}

func newHarness(t *testing.T, eventsPerSecond float64, burst int) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	m := metrics.New()
	b := bus.New()
	conns := registry.New()
	rooms := registry.NewRooms()
	fan := fanout.New(conns, rooms, m, logger)
	verifier := auth.NewVerifier(testSecret, "hive")
	sessions := NewSessions(verifier, conns, rooms, presence.NewTracker(b), db, fan, m, logger, 200*time.Millisecond)
	d := notify.NewDispatcher(db, fan, b, m, logger, 4)
	rl := relay.New(conversation.NewGateway(db), db, d, fan, b, m, logger, 2*time.Second)
	sm := social.New(db, d, fan, b, logger)
	router := NewRouter(sessions, rl, sm, rooms, fan, m, logger, eventsPerSecond, burst)

	return &harness{db: db, bus: b, conns: conns, rooms: rooms, verifier: verifier, sessions: sessions, router: router}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := h.verifier.Issue(userID, "@"+userID, time.Hour)
	require.NoError(t, err)
	return tok
}

// connect runs a full handshake for userID over a recording transport.
func (h *harness) connect(t *testing.T, transportID, userID string) *registrytest.Transport {
	t.Helper()
	tr := registrytest.New(transportID, userID)
	require.NoError(t, h.sessions.Connect(context.Background(), auth.Identity{ID: userID, Handle: "@" + userID}, tr))
	return tr
}
