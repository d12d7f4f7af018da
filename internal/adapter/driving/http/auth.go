package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const sessionCookie = "caic_session"

type sessionClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

type sessionTokens struct {
	secret []byte
	ttl    time.Duration
}

func newSessionTokens(secret string, ttl time.Duration) *sessionTokens {
	return &sessionTokens{secret: []byte(secret), ttl: ttl}
}

func (s *sessionTokens) sign(account domain.Account) (string, error) {
	claims := sessionClaims{
		AccountID: account.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *sessionTokens) parse(token string) (domain.AccountID, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return domain.AccountID{}, err
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return domain.AccountID{}, errors.New("invalid session token")
	}
	return domain.ParseAccountID(claims.AccountID)
}

type contextKey struct{}

var accountKey contextKey

func accountFrom(ctx context.Context) (domain.Account, bool) {
	account, ok := ctx.Value(accountKey).(domain.Account)
	return account, ok
}

// requireAuth resolves the session cookie to an account and stores it
// on the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		accountID, err := h.sessions.parse(cookie.Value)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		account, err := h.dir.ResolveAccount(r.Context(), accountID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unknown account")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, account)))
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.dir.Create(r.Context(), domain.NewAccountRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, port.ErrEmailTaken), errors.Is(err, port.ErrUsernameTaken):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile := domain.ChatProfile{
		Username:  account.Username,
		Email:     account.Email,
		UID:       account.ChatID,
		AccountID: account.ID,
		Status:    domain.PresenceOffline,
	}
	if err := h.presence.Publish(r.Context(), profile); err != nil {
		log.Error().Err(err).Str("uid", account.ChatID.String()).Msg("Failed to publish chat profile")
	}

	respondJSON(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.dir.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := h.sessions.sign(account)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.ttl / time.Second),
	})
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if account, ok := accountFrom(r.Context()); ok {
		if err := h.presence.SetOffline(r.Context(), account.ChatID); err != nil {
			log.Error().Err(err).Msg("Failed to set presence offline at logout")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	account, _ := accountFrom(r.Context())
	respondJSON(w, http.StatusOK, account)
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	account, _ := accountFrom(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.dir.UpdateProfile(r.Context(), account.ID, req.Username, req.Email)
	switch {
	case errors.Is(err, port.ErrEmailTaken), errors.Is(err, port.ErrUsernameTaken):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Keep the realtime mirror in sync so peers resolve current names.
	fields := map[string]any{"username": updated.Username, "email": updated.Email}
	if err := h.store.Update(r.Context(), "ChatUsers/Users/"+updated.ChatID.String(), fields); err != nil {
		log.Error().Err(err).Msg("Failed to sync chat profile after update")
	}

	respondJSON(w, http.StatusOK, updated)
}
