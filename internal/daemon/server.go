package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/matheus3301/hive/internal/admin"
	"github.com/matheus3301/hive/internal/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AdminServer serves the admin gRPC service on a unix domain socket.
type AdminServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewAdminServer binds the admin socket. The socket is created 0600 so only
// the daemon's user can drive it.
func NewAdminServer(cfg *config.Config, logger *zap.Logger, svc *admin.Service) (*AdminServer, error) {
	socketPath := cfg.Admin.SocketPath
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	admin.Register(srv, svc)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(admin.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &AdminServer{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Serve blocks until the server stops.
func (s *AdminServer) Serve() error {
	s.logger.Info("admin server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop marks the service not serving, drains in-flight calls and removes
// the socket file.
func (s *AdminServer) Stop(_ context.Context) {
	s.logger.Info("admin server stopping")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
