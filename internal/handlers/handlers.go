package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budget-tracker/internal/auth"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	sessionTTL   time.Duration
	secureCookie bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, sessionTTL time.Duration, secureCookie bool) *Handlers {
	return &Handlers{db: db, sessionTTL: sessionTTL, secureCookie: secureCookie}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// sessionUser validates the request's session cookie and returns the user.
// It also implements rolling sessions: a session past the halfway point of
// its lifetime is renewed, cookie included.
func (h *Handlers) sessionUser(w http.ResponseWriter, r *http.Request) (*models.User, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, storage.ErrNotFound
	}

	info, err := h.db.ValidateSessionWithInfo(cookie.Value)
	if err != nil {
		return nil, err
	}

	if time.Until(info.ExpiresAt) < h.sessionTTL/2 {
		newExpiresAt := time.Now().Add(h.sessionTTL)
		if err := h.db.RenewSession(cookie.Value, newExpiresAt); err == nil {
			h.setSessionCookie(w, cookie.Value)
		}
		// If renewal fails, continue with the current session.
	}

	return info.User, nil
}

// RequireAuth gates form-driven routes: requests without a valid session are
// redirected to the login page.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.sessionUser(w, r)
		if err != nil {
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthAPI gates API routes: failures are machine-readable JSON, not
// redirects.
func (h *Handlers) RequireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.sessionUser(w, r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RegisterForm responds to the registration page request. There is no HTML
// surface; a pending notice from a prior redirect is echoed as JSON.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	writeNotice(w, r)
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithNotice(w, r, "/register", "invalid-form")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		redirectWithNotice(w, r, "/register", "missing-credentials")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		applog.FromContext(r.Context()).Error("hash password", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user, err := h.db.CreateUser(username, hash)
	if errors.Is(err, storage.ErrDuplicateUsername) {
		redirectWithNotice(w, r, "/register", "username-taken")
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).Error("create user", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	applog.FromContext(r.Context()).Info("user registered", applog.FieldUser, user.Username)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LoginForm responds to the login page request. An already authenticated
// user is sent straight to the index.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.db.ValidateSession(cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}
	writeNotice(w, r)
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithNotice(w, r, "/login", "invalid-form")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	// Any failure, unknown username included, reads the same to the client.
	user, err := h.db.Authenticate(username, password)
	if err != nil {
		redirectWithNotice(w, r, "/login", "invalid-credentials")
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		applog.FromContext(r.Context()).Error("generate session token", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.db.CreateSession(token, user.ID, time.Now().Add(h.sessionTTL)); err != nil {
		applog.FromContext(r.Context()).Error("create session", applog.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session. It is idempotent: without a session it still
// redirects to the login page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.db.DeleteSession(cookie.Value); err != nil {
			applog.FromContext(r.Context()).Error("delete session", applog.FieldError, err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectWithNotice sends the client back to path carrying a short
// machine-friendly notice code in the query string.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(notice), http.StatusFound)
}

// writeNotice answers a form page request, echoing any pending notice code.
func writeNotice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"error": r.URL.Query().Get("error")})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out if encoding fails; nothing useful to do.
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
