package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"signalhub/internal/constants"
	"signalhub/internal/errors"
	"signalhub/internal/middleware"
	"signalhub/internal/models"
	"signalhub/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	cfg        *models.Config
	msgService service.MessageService
	registry   service.SubscriberRegistry
	listener   *service.StreamListener
	server     *http.Server
}

func NewServer(cfg *models.Config, msgService service.MessageService, registry service.SubscriberRegistry, listener *service.StreamListener, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		msgService: msgService,
		registry:   registry,
		listener:   listener,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	// Health and metrics are reachable without credentials so probes work.
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware())

	api.HandleFunc("/send", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}", s.handleGetMessage()).Methods(http.MethodGet)
	api.HandleFunc("/conversations", s.handleListConversations()).Methods(http.MethodGet)
	api.HandleFunc("/groups", s.handleListGroups()).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats()).Methods(http.MethodGet)

	webhooks := api.PathPrefix("/webhooks").Subrouter()
	webhooks.HandleFunc("/subscribe", s.handleSubscribe()).Methods(http.MethodPost)
	webhooks.HandleFunc("/unsubscribe", s.handleUnsubscribe()).Methods(http.MethodPost)
	webhooks.HandleFunc("/subscribers", s.handleListSubscribers()).Methods(http.MethodGet)
	webhooks.HandleFunc("/test", s.handleTestDelivery()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port <= 0 {
		port = constants.DefaultServerPort
	}

	readTimeout := time.Duration(s.cfg.Server.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"stream": s.listener.State().String(),
		})
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	type sendRequest struct {
		Recipient   string   `json:"recipient"`
		Message     string   `json:"message"`
		Attachments []string `json:"attachments,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := s.msgService.SendMessage(r.Context(), req.Recipient, req.Message, req.Attachments)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := models.MessageQuery{
			Limit:  parseIntParam(r, "limit", constants.DefaultQueryLimit),
			Offset: parseIntParam(r, "offset", 0),
			Sender: r.URL.Query().Get("sender"),
			Group:  r.URL.Query().Get("group"),
		}
		if query.Limit > constants.MaxQueryLimit {
			query.Limit = constants.MaxQueryLimit
		}

		messages, err := s.msgService.ListMessages(r.Context(), query)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages": messages,
			"count":    len(messages),
		})
	}
}

func (s *Server) handleGetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid message id")
			return
		}

		message, err := s.msgService.GetMessage(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message)
	}
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversations, err := s.msgService.ListConversations(r.Context())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversations": conversations,
			"count":         len(conversations),
		})
	}
}

func (s *Server) handleListGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversations, err := s.msgService.ListConversations(r.Context())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}

		groups := make([]models.Conversation, 0, len(conversations))
		for _, conversation := range conversations {
			if conversation.IsGroup {
				groups = append(groups, conversation)
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"groups": groups,
			"count":  len(groups),
		})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.msgService.GetStatistics(r.Context())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleSubscribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.CallbackURL == "" {
			writeError(w, http.StatusBadRequest, "callback_url is required")
			return
		}

		resp, err := s.registry.Subscribe(r.Context(), req)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) handleUnsubscribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.UnsubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		if err := s.registry.Unsubscribe(r.Context(), req); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
	}
}

func (s *Server) handleListSubscribers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscribers, err := s.registry.ListAll(r.Context())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"subscribers": subscribers,
			"count":       len(subscribers),
		})
	}
}

func (s *Server) handleTestDelivery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		resp, err := s.registry.TestDelivery(r.Context(), req.SubscriberID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeAppError maps internal error codes onto HTTP statuses without
// leaking internals to the caller.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidEnvelope, errors.ErrCodeChallengeFailed:
		status = http.StatusBadRequest
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeAuthentication, errors.ErrCodeAuthorization:
		status = http.StatusUnauthorized
	case errors.ErrCodeDisallowedURL:
		status = http.StatusForbidden
	case errors.ErrCodeDatabaseQuery, errors.ErrCodeStoreFailure:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	writeError(w, status, errors.GetUserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
