package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/protocol"
	"go.uber.org/zap"
)

// HandlerConfig sizes each connection.
type HandlerConfig struct {
	AllowedOrigins []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Handler upgrades HTTP requests to websocket sessions.
type Handler struct {
	sessions *Sessions
	router   *Router
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates the /ws handler.
func NewHandler(sessions *Sessions, router *Router, cfg HandlerConfig, logger *zap.Logger) *Handler {
	h := &Handler{sessions: sessions, router: router, cfg: cfg, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, h.cfg.SendBuffer, h.cfg.WriteTimeout, h.cfg.PingInterval, h.logger)
	defer c.wait()

	ctx := r.Context()
	id, err := h.sessions.Authenticate(ctx, Credentials{Token: token, ReadToken: c.readToken})
	if err != nil {
		h.reject(c, err)
		return
	}
	c.bind(id.ID)

	if err := h.sessions.Connect(ctx, id, c); err != nil {
		h.logger.Error("connect failed", zap.String("user_id", id.ID), zap.Error(err))
		h.reject(c, err)
		return
	}
	defer h.sessions.Disconnect(context.WithoutCancel(ctx), id, c)
	defer c.Close("read closed")

	limiter := h.router.NewLimiter()
	c.readLoop(func(raw []byte) {
		h.router.Handle(ctx, id, c, limiter, raw)
	})
}

func (h *Handler) reject(c *Conn, err error) {
	_ = c.Send(protocol.ErrorFrame(protocol.EventConnectError, err))
	c.Close("auth")
}
