package admin

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/presence"
	"github.com/matheus3301/hive/internal/registry"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Sessions is the part of the session manager the admin surface drives.
type Sessions interface {
	Online() []string
	Presence(userID string) presence.State
	Kick(userID, reason string) bool
}

// Service implements hive.admin.v1.Admin.
type Service struct {
	node      string
	startedAt time.Time
	sessions  Sessions
	rooms     *registry.Rooms
	db        *store.DB
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewService creates the admin service. rooms, db and b may be nil; the
// matching status fields are then reported as zero.
func NewService(node string, sessions Sessions, rooms *registry.Rooms, db *store.DB, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		node:      node,
		startedAt: time.Now(),
		sessions:  sessions,
		rooms:     rooms,
		db:        db,
		bus:       b,
		logger:    logger,
	}
}

func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	online := s.sessions.Online()
	away := 0
	for _, id := range online {
		if s.sessions.Presence(id) == presence.Away {
			away++
		}
	}

	fields := map[string]any{
		"node":        s.node,
		"uptimeMs":    time.Since(s.startedAt).Milliseconds(),
		"connections": len(online),
		"away":        away,
	}
	if s.rooms != nil {
		fields["rooms"] = s.rooms.Count()
	}
	if s.bus != nil {
		fields["busDropped"] = float64(s.bus.Dropped())
	}
	if s.db != nil {
		counts := map[string]func(context.Context) (int64, error){
			"users":         s.db.UserCount,
			"conversations": s.db.ConversationCount,
			"messages":      s.db.MessageCount,
			"notifications": s.db.NotificationCount,
		}
		for name, count := range counts {
			n, err := count(ctx)
			if err != nil {
				return nil, grpcstatus.Errorf(codes.Unavailable, "count %s: %v", name, err)
			}
			fields[name] = n
		}
		events, err := s.db.EventCounts(ctx)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Unavailable, "count events: %v", err)
		}
		outbox := map[string]any{}
		for status, n := range events {
			outbox[status] = n
		}
		fields["outbox"] = outbox
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

func (s *Service) ListOnline(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	online := s.sessions.Online()
	users := make([]any, 0, len(online))
	for _, id := range online {
		users = append(users, map[string]any{
			"userId":   id,
			"presence": string(s.sessions.Presence(id)),
		})
	}
	out, err := structpb.NewStruct(map[string]any{"users": users})
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode online: %v", err)
	}
	return out, nil
}

func (s *Service) Kick(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := strings.TrimSpace(req.GetFields()["userId"].GetStringValue())
	if userID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "userId is required")
	}
	reason := req.GetFields()["reason"].GetStringValue()

	kicked := s.sessions.Kick(userID, reason)
	s.logger.Info("admin kick", zap.String("user_id", userID), zap.Bool("kicked", kicked))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kicked": structpb.NewBoolValue(kicked),
	}}, nil
}
