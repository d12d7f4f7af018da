package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caic-labs/caic/internal/config"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/caic-labs/caic/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Directory     port.AccountDirectory
	History       port.HistoryLog
	Store         port.RealtimeStore
	Tokens        port.TokenIssuer
	Presence      *service.PresenceService
	Chat          *service.ChatService
	Notifications *service.NotificationService
	Config        config.Config
}

type Handler struct {
	dir      port.AccountDirectory
	history  port.HistoryLog
	store    port.RealtimeStore
	tokens   port.TokenIssuer
	presence *service.PresenceService
	chat     *service.ChatService
	notify   *service.NotificationService

	sessions  *sessionTokens
	uploadDir string
	maxUpload int64
	tokenTTL  time.Duration
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		dir:       deps.Directory,
		history:   deps.History,
		store:     deps.Store,
		tokens:    deps.Tokens,
		presence:  deps.Presence,
		chat:      deps.Chat,
		notify:    deps.Notifications,
		sessions:  newSessionTokens(deps.Config.JWTSecret, deps.Config.SessionTTL),
		uploadDir: deps.Config.UploadDir,
		maxUpload: deps.Config.MaxUploadBytes,
		tokenTTL:  deps.Config.TokenTTL,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/auth/logout", h.handleLogout)
			r.Get("/auth/profile", h.handleProfile)
			r.Put("/auth/profile", h.handleUpdateProfile)

			r.Post("/calls/log", h.handleLogCall)
			r.Get("/calls", h.handleCallHistory)

			r.Post("/zego/token", h.handleRoomToken)
			r.Post("/upload", h.handleUpload)
		})
	})

	r.With(h.requireAuth).Get("/ws", h.ServeWS)

	uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.uploadDir)))
	r.Handle("/uploads/*", uploads)

	return r
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

var errMissingFields = errors.New("missing required fields")
