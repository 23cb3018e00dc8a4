package realtime

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/presence"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/registry"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
)

const lockStripes = 64

// Reasons sent with forceDisconnect.
const (
	ReasonSuperseded = "superseded"
	ReasonKicked     = "kicked"
	ReasonShutdown   = "shutdown"
)

// Credentials is what a handshake offers. Token comes from the upgrade
// request; when it is empty ReadToken is asked for an authenticate frame.
type Credentials struct {
	Token     string
	ReadToken func(ctx context.Context) (string, error)
}

// Sessions owns the connect and disconnect transitions and keeps one live
// connection per identity.
type Sessions struct {
	verifier         *auth.Verifier
	conns            *registry.Registry
	rooms            *registry.Rooms
	presence         *presence.Tracker
	db               *store.DB
	fan              *fanout.Fanout
	metrics          *metrics.Metrics
	logger           *zap.Logger
	handshakeTimeout time.Duration

	locks [lockStripes]sync.Mutex
}

// NewSessions creates the session manager.
func NewSessions(
	verifier *auth.Verifier,
	conns *registry.Registry,
	rooms *registry.Rooms,
	tracker *presence.Tracker,
	db *store.DB,
	fan *fanout.Fanout,
	m *metrics.Metrics,
	logger *zap.Logger,
	handshakeTimeout time.Duration,
) *Sessions {
	return &Sessions{
		verifier:         verifier,
		conns:            conns,
		rooms:            rooms,
		presence:         tracker,
		db:               db,
		fan:              fan,
		metrics:          m,
		logger:           logger,
		handshakeTimeout: handshakeTimeout,
	}
}

// lockFor serialises connect and disconnect of one identity.
func (s *Sessions) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Authenticate resolves the handshake credentials to an identity. A missing
// token is waited for no longer than the handshake timeout.
func (s *Sessions) Authenticate(ctx context.Context, creds Credentials) (auth.Identity, error) {
	token := creds.Token
	if token == "" && creds.ReadToken != nil {
		if s.handshakeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.handshakeTimeout)
			defer cancel()
		}
		tok, err := creds.ReadToken(ctx)
		switch {
		case err == nil:
			token = tok
		case fault.KindOf(err) == fault.KindAuth:
			return auth.Identity{}, s.authFailed(err)
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return auth.Identity{}, s.authFailed(fault.AuthCause(fault.HandshakeTimeout, err))
		default:
			return auth.Identity{}, s.authFailed(fault.AuthCause(fault.MissingToken, err))
		}
	}

	id, err := s.verifier.Verify(token)
	if err != nil {
		return auth.Identity{}, s.authFailed(err)
	}
	return id, nil
}

func (s *Sessions) authFailed(err error) error {
	reason := fault.ReasonOf(err)
	s.metrics.AuthFailed(reason)
	s.logger.Info("handshake rejected", zap.String("reason", reason), zap.Error(err))
	return err
}

// Connect registers t as id's only live connection. A previous connection is
// told it was superseded and closed. Presence goes online and the rest of
// the live users hear about it.
func (s *Sessions) Connect(ctx context.Context, id auth.Identity, t registry.Transport) error {
	mu := s.lockFor(id.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.db.UpsertUser(ctx, id.ID, id.Handle); err != nil {
		return fault.Persistence("upsert user", err)
	}

	prev, replaced := s.conns.Register(id.ID, t)
	if replaced && prev.ID() != t.ID() {
		_ = prev.Send(protocol.ForceDisconnect(ReasonSuperseded))
		prev.Close(ReasonSuperseded)
		s.rooms.LeaveAll(prev)
		s.metrics.SessionSuperseded()
		s.logger.Info("session superseded",
			zap.String("user_id", id.ID),
			zap.String("old_transport", prev.ID()),
			zap.String("new_transport", t.ID()))
	}
	if !replaced {
		s.metrics.ConnectionOpened()
	}

	change, err := s.presence.Transition(id.ID, presence.Online)
	if err != nil {
		s.logger.Warn("presence transition rejected", zap.String("user_id", id.ID), zap.Error(err))
	}
	now := time.Now().UnixMilli()
	if err := s.db.SetPresence(ctx, id.ID, string(presence.Online), now); err != nil {
		s.logger.Error("persist presence failed", zap.String("user_id", id.ID), zap.Error(err))
	}

	_ = s.fan.To(t, protocol.Frame{Event: protocol.EventConnected, Data: protocol.Connected{UserID: id.ID, Handle: id.Handle}})
	_ = s.fan.To(t, protocol.OnlineUsers(s.conns.Snapshot()))
	if change.Changed() {
		s.fan.Broadcast(protocol.UserStatusChanged(id.ID, string(presence.Online), now), id.ID)
	}

	s.logger.Info("connected", zap.String("user_id", id.ID), zap.String("transport_id", t.ID()))
	return nil
}

// Disconnect tears down t. It is idempotent, and a no-op for the registry
// and presence when t was already superseded.
func (s *Sessions) Disconnect(ctx context.Context, id auth.Identity, t registry.Transport) {
	mu := s.lockFor(id.ID)
	mu.Lock()
	defer mu.Unlock()

	s.rooms.LeaveAll(t)
	if !s.conns.UnregisterIf(id.ID, t) {
		return
	}
	s.metrics.ConnectionClosed()

	if _, err := s.presence.Transition(id.ID, presence.Offline); err != nil {
		s.logger.Warn("presence transition rejected", zap.String("user_id", id.ID), zap.Error(err))
	}
	now := time.Now().UnixMilli()
	if err := s.db.SetPresence(ctx, id.ID, string(presence.Offline), now); err != nil {
		s.logger.Error("persist presence failed", zap.String("user_id", id.ID), zap.Error(err))
	}
	s.fan.Broadcast(protocol.UserStatusChanged(id.ID, string(presence.Offline), now), id.ID)
	s.logger.Info("disconnected", zap.String("user_id", id.ID), zap.String("transport_id", t.ID()))
}

// SetPresence switches a connected user between online and away. Going
// offline happens only through Disconnect.
func (s *Sessions) SetPresence(ctx context.Context, userID, state string) error {
	to, err := presence.Parse(state)
	if err != nil {
		return err
	}
	if to == presence.Offline {
		return fault.Validation(fault.InvalidPresence)
	}

	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if _, ok := s.conns.Lookup(userID); !ok {
		return fault.Validation(fault.UserNotFound)
	}
	change, err := s.presence.Transition(userID, to)
	if err != nil {
		return err
	}
	if !change.Changed() {
		return nil
	}
	now := time.Now().UnixMilli()
	if err := s.db.SetPresence(ctx, userID, string(to), now); err != nil {
		return fault.Persistence("set presence", err)
	}
	s.fan.Broadcast(protocol.UserStatusChanged(userID, string(to), now), userID)
	return nil
}

// Online returns the identities with a live connection.
func (s *Sessions) Online() []string {
	return s.conns.Snapshot()
}

// Presence returns userID's current presence.
func (s *Sessions) Presence(userID string) presence.State {
	return s.presence.Current(userID)
}

// Kick force-closes userID's connection. The connection's own teardown runs
// Disconnect. Returns false when the user is not connected.
func (s *Sessions) Kick(userID, reason string) bool {
	t, ok := s.conns.Lookup(userID)
	if !ok {
		return false
	}
	if reason == "" {
		reason = ReasonKicked
	}
	_ = t.Send(protocol.ForceDisconnect(reason))
	t.Close(reason)
	s.logger.Info("session kicked", zap.String("user_id", userID), zap.String("reason", reason))
	return true
}

// CloseAll closes every live connection, used on shutdown.
func (s *Sessions) CloseAll() int {
	ts := s.conns.Transports()
	for _, t := range ts {
		_ = t.Send(protocol.ForceDisconnect(ReasonShutdown))
		t.Close(ReasonShutdown)
	}
	return len(ts)
}
