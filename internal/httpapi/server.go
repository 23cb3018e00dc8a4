package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/social"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
)

const (
	defaultPage = 50
	maxPage     = 200
)

type ctxKey struct{}

// Server exposes the REST reads, the websocket endpoint and the ops probes
// on one gorilla/mux router.
type Server struct {
	db       *store.DB
	verifier *auth.Verifier
	social   *social.Mutator
	ws       http.Handler
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates the HTTP surface. ws serves /ws.
func New(db *store.DB, verifier *auth.Verifier, sm *social.Mutator, ws http.Handler, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{db: db, verifier: verifier, social: sm, ws: ws, metrics: m, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.ws != nil {
		r.Handle("/ws", s.ws).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/notifications", s.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read", s.markNotificationsRead).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.createPost).Methods(http.MethodPost)
	return r
}

// authenticate resolves the bearer token and makes sure the caller has a
// users row, the same as a websocket connect would.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.verifier.Verify(auth.TokenFromRequest(r))
		if err != nil {
			s.metrics.AuthFailed(fault.ReasonOf(err))
			writeError(w, err)
			return
		}
		if err := s.db.UpsertUser(r.Context(), id.ID, id.Handle); err != nil {
			writeError(w, fault.Persistence("upsert user", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func identity(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(ctxKey{}).(auth.Identity)
	return id
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, before, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := s.db.ListNotifications(r.Context(), identity(r).ID, before, limit)
	if err != nil {
		writeError(w, fault.Persistence("list notifications", err))
		return
	}
	out := make([]protocol.Notification, 0, len(items))
	for i := range items {
		out = append(out, protocol.NotificationOf(&items[i], ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fault.Validation(fault.BadPayload))
			return
		}
	}
	n, err := s.db.MarkNotificationsRead(r.Context(), identity(r).ID, req.IDs)
	if err != nil {
		writeError(w, fault.Persistence("mark notifications read", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

type conversationView struct {
	ID            string    `json:"id"`
	Participants  [2]string `json:"participants"`
	OtherUserID   string    `json:"otherUserId"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	Unread        int       `json:"unread"`
	UpdatedAt     int64     `json:"updatedAt"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	limit, _, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	me := identity(r).ID
	items, err := s.db.ListConversations(r.Context(), me, limit)
	if err != nil {
		writeError(w, fault.Persistence("list conversations", err))
		return
	}
	out := make([]conversationView, 0, len(items))
	for _, c := range items {
		out = append(out, conversationView{
			ID:            c.ID,
			Participants:  c.Participants(),
			OtherUserID:   c.Other(me),
			LastMessageID: c.LastMessageID,
			Unread:        c.Unread,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, before, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	convID := mux.Vars(r)["id"]
	conv, err := s.db.GetConversation(r.Context(), convID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, fault.Validation(fault.ConversationNotFound))
		return
	case err != nil:
		writeError(w, fault.Persistence("get conversation", err))
		return
	}
	if !conv.Has(identity(r).ID) {
		writeError(w, fault.Validation(fault.NotParticipant))
		return
	}
	msgs, err := s.db.ListMessages(r.Context(), convID, before, limit)
	if err != nil {
		writeError(w, fault.Persistence("list messages", err))
		return
	}
	out := make([]protocol.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, protocol.MessageOf(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversationId": convID, "messages": out})
}

type createPostRequest struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Caption string `json:"caption"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.Validation(fault.BadPayload))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	notified, err := s.social.AnnouncePost(r.Context(), identity(r).ID, social.PostSummary{
		ID: req.ID, Kind: req.Kind, Caption: req.Caption,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID, "notified": notified})
}

func paging(r *http.Request) (limit int, before int64, err error) {
	q := r.URL.Query()
	limit = defaultPage
	if v := q.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 {
			return 0, 0, fault.Validation(fault.BadPayload)
		}
		limit = min(n, maxPage)
	}
	if v := q.Get("before"); v != "" {
		before, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, fault.Validation(fault.BadPayload)
		}
	}
	return limit, before, nil
}

func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.KindAuth:
		return http.StatusUnauthorized
	case fault.KindValidation:
		switch fault.ReasonOf(err) {
		case fault.ConversationNotFound, fault.PostNotFound, fault.UserNotFound:
			return http.StatusNotFound
		case fault.NotParticipant:
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	case fault.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), protocol.ErrorBody{Error: fault.Public(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
