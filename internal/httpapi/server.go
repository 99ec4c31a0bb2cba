package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/scenegen/internal/auth"
	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/config"
	"github.com/antoniostano/scenegen/internal/conversation"
	"github.com/antoniostano/scenegen/internal/memory"
	"github.com/antoniostano/scenegen/internal/observability"
)

type Server struct {
	cfg        config.Config
	svc        *conversation.Service
	auth       *auth.Service
	reconciler *memory.Reconciler
	metrics    *observability.Metrics
	limiter    *userLimiter
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, svc *conversation.Service, authSvc *auth.Service, reconciler *memory.Reconciler, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		svc:        svc,
		auth:       authSvc,
		reconciler: reconciler,
		metrics:    metrics,
		limiter:    newUserLimiter(cfg.GeneratePerMinute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/auth/signup", s.handleSignup)
	r.Post("/v1/auth/login", s.handleLogin)

	r.Handle("/videos/*", http.StripPrefix("/videos/", http.FileServer(http.Dir(s.cfg.VideosDir))))

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/v1/sessions", s.handleCreateSession)
		r.Get("/v1/sessions", s.handleListSessions)
		r.Delete("/v1/sessions/{id}", s.handleDeleteSession)
		r.Get("/v1/sessions/{id}/history", s.handleHistory)
		r.Post("/v1/sessions/{id}/clear", s.handleClearSession)
		r.Post("/v1/sessions/{id}/generate", s.handleGenerate)
		r.Get("/v1/sessions/{id}/generate/ws", s.handleGenerateWS)
		r.Post("/v1/sync", s.handleTriggerSync)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u, err := s.auth.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondDomainError(w, "signup", err)
		return
	}
	s.countRequest("signup", http.StatusCreated)
	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	token, u, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
			return
		}
		s.respondDomainError(w, "login", err)
		return
	}
	s.countRequest("login", http.StatusOK)
	respondJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"user_id":  u.ID,
		"username": u.Username,
	})
}

type createSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session name cannot be empty")
		return
	}

	sess, err := s.svc.CreateSession(r.Context(), auth.UserID(r.Context()), strings.TrimSpace(req.Name))
	if err != nil {
		s.respondDomainError(w, "create_session", err)
		return
	}
	s.countRequest("create_session", http.StatusCreated)
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.ListSessions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondDomainError(w, "list_sessions", err)
		return
	}
	s.countRequest("list_sessions", http.StatusOK)
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.DeleteSession(r.Context(), id, auth.UserID(r.Context())); err != nil {
		s.respondDomainError(w, "delete_session", err)
		return
	}
	s.countRequest("delete_session", http.StatusOK)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.svc.History(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		s.respondDomainError(w, "history", err)
		return
	}
	s.countRequest("history", http.StatusOK)
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "turns": turns})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.ClearSession(r.Context(), id, auth.UserID(r.Context())); err != nil {
		s.respondDomainError(w, "clear_session", err)
		return
	}
	s.countRequest("clear_session", http.StatusOK)
	respondJSON(w, http.StatusOK, map[string]any{"cleared": id})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Script     string `json:"script"`
	Scene      string `json:"scene"`
	VideoURL   string `json:"video_url,omitempty"`
	Attempts   int    `json:"attempts"`
	Success    bool   `json:"success"`
	FinalError string `json:"final_error,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if !s.limiter.allow(userID) {
		respondError(w, http.StatusTooManyRequests, "rate_limited", "too many generation requests")
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "prompt cannot be empty")
		return
	}

	id := chi.URLParam(r, "id")
	res, err := s.svc.Generate(r.Context(), id, userID, req.Prompt, nil)
	if err != nil {
		s.respondDomainError(w, "generate", err)
		return
	}

	status := http.StatusOK
	if !res.Success {
		// Exhaustion is a structured failure, not a hard fault.
		status = http.StatusUnprocessableEntity
	}
	s.countRequest("generate", status)
	respondJSON(w, status, generateResponse{
		Script:     res.Script,
		Scene:      res.Scene,
		VideoURL:   videoURL(res.Scene, res.Success),
		Attempts:   res.Attempts,
		Success:    res.Success,
		FinalError: res.FinalError(),
	})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := s.reconciler.TriggerNow(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "sync_failed", err.Error())
		return
	}
	s.countRequest("sync", http.StatusOK)
	respondJSON(w, http.StatusOK, map[string]any{"synced": true})
}

func videoURL(scene string, success bool) string {
	if !success || scene == "" {
		return ""
	}
	return "/videos/" + scene + ".mp4"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) respondDomainError(w http.ResponseWriter, route string, err error) {
	status, code := domainErrorStatus(err)
	s.countRequest(route, status)
	respondError(w, status, code, err.Error())
}

func domainErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrOwnership):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, chat.ErrQuotaExceeded):
		return http.StatusBadRequest, "quota_exceeded"
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, chat.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func domainErrorCode(err error) string {
	_, code := domainErrorStatus(err)
	return code
}

func (s *Server) countRequest(route string, status int) {
	if s.metrics == nil {
		return
	}
	class := strconv.Itoa(status/100) + "xx"
	s.metrics.HTTPRequests.WithLabelValues(route, class).Inc()
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
