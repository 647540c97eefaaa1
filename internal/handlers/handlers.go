package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"finance-tracker/internal/auth"
	applog "finance-tracker/internal/log"
	"finance-tracker/internal/models"
	"finance-tracker/internal/stats"
	"finance-tracker/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// FlashCookieName carries one advisory message across a redirect.
	FlashCookieName = "flash"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
)

const msgGenericError = "An error occurred. Please try again."

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db              *storage.DB
	stats           *stats.Aggregator
	templateDir     string
	secureCookie    bool
	sessionDuration time.Duration
	now             func() time.Time
}

// Option configures Handlers.
type Option func(*Handlers)

// WithSessionDuration overrides SessionDuration.
func WithSessionDuration(d time.Duration) Option {
	return func(h *Handlers) {
		if d > 0 {
			h.sessionDuration = d
		}
	}
}

// WithClock sets the clock used for statistics windows.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, templateDir string, secureCookie bool, opts ...Option) *Handlers {
	h := &Handlers{
		db:              db,
		templateDir:     templateDir,
		secureCookie:    secureCookie,
		sessionDuration: SessionDuration,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.stats = stats.NewAggregator(db, h.now)
	return h
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Protected pages must not be cached.
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		sessionInfo, err := h.db.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				applog.FromContext(r.Context()).Error("Failed to validate session", applog.FieldError, err)
			}
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			h.redirectToLogin(w, r)
			return
		}

		// Rolling session: renew if past halfway point
		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < h.sessionDuration/2 {
			newExpiresAt := now.Add(h.sessionDuration)
			if err := h.db.RenewSession(r.Context(), cookie.Value, newExpiresAt); err == nil {
				h.setSessionCookie(w, cookie.Value)
			} else {
				applog.FromContext(r.Context()).Warn("Failed to renew session", applog.FieldError, err)
			}
		}

		ctx := context.WithValue(r.Context(), UserContextKey, sessionInfo.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	setFlash(w, FlashWarning, "Please log in to access this page.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// currentUser returns the user of a still valid session cookie, if any.
func (h *Handlers) currentUser(r *http.Request) *models.User {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	user, err := h.db.ValidateSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return user
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Flash    *Flash
	Error    string
	Username string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, "login.html", LoginViewModel{Flash: popFlash(w, r)})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	logger := applog.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.render(w, r, "login.html", LoginViewModel{Error: auth.ErrMissingFields.Error(), Username: username})
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), username)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Spend the same bcrypt time as a real check.
		auth.CheckPassword(password, dummyHash())
		h.render(w, r, "login.html", LoginViewModel{Error: auth.ErrInvalidCredentials.Error(), Username: username})
		return
	case err != nil:
		logger.Error("Failed to look up user", applog.FieldError, err)
		h.render(w, r, "login.html", LoginViewModel{Error: msgGenericError, Username: username})
		return
	case !auth.CheckPassword(password, user.PasswordHash):
		h.render(w, r, "login.html", LoginViewModel{Error: auth.ErrInvalidCredentials.Error(), Username: username})
		return
	}

	if removed, err := h.db.CleanExpiredSessions(r.Context()); err != nil {
		logger.Warn("Failed to clean expired sessions", applog.FieldError, err)
	} else if removed > 0 {
		logger.Debug("Removed expired sessions", "count", removed)
	}

	// Generate session token
	token, err := auth.GenerateSessionToken()
	if err != nil {
		logger.Error("Failed to generate session token", applog.FieldError, err)
		h.render(w, r, "login.html", LoginViewModel{Error: msgGenericError})
		return
	}

	if err := h.db.CreateSession(r.Context(), token, user.ID, time.Now().Add(h.sessionDuration)); err != nil {
		logger.Error("Failed to create session", applog.FieldError, err)
		h.render(w, r, "login.html", LoginViewModel{Error: msgGenericError})
		return
	}

	h.setSessionCookie(w, token)
	setFlash(w, FlashSuccess, "Welcome back, "+user.Username+"!")
	logger.Info("User logged in", applog.FieldUserID, user.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Flash    *Flash
	Error    string
	Username string
	Email    string
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, "register.html", RegisterViewModel{Flash: popFlash(w, r)})
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	logger := applog.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.render(w, r, "register.html", RegisterViewModel{Error: "Invalid form submission"})
		return
	}

	reg := auth.Registration{
		Username:        r.FormValue("username"),
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}
	reg.Normalize()
	fail := func(msg string) {
		h.render(w, r, "register.html", RegisterViewModel{Error: msg, Username: reg.Username, Email: reg.Email})
	}

	if err := reg.Validate(); err != nil {
		fail(err.Error())
		return
	}

	if err := h.checkAvailable(r.Context(), reg); err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) || errors.Is(err, auth.ErrEmailTaken) {
			fail(err.Error())
			return
		}
		logger.Error("Failed to check user uniqueness", applog.FieldError, err)
		fail(msgGenericError)
		return
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		logger.Error("Failed to hash password", applog.FieldError, err)
		fail(msgGenericError)
		return
	}

	user, err := h.db.CreateUser(r.Context(), reg.Username, reg.Email, hash)
	if err != nil {
		logger.Error("Failed to create user", applog.FieldError, err)
		fail(msgGenericError)
		return
	}

	logger.Info("User registered", applog.FieldUserID, user.ID)
	setFlash(w, FlashSuccess, "Registration successful! Please log in.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) checkAvailable(ctx context.Context, reg auth.Registration) error {
	taken, err := h.db.UsernameExists(ctx, reg.Username)
	if err != nil {
		return err
	}
	if taken {
		return auth.ErrUsernameTaken
	}
	taken, err = h.db.EmailExists(ctx, reg.Email)
	if err != nil {
		return err
	}
	if taken {
		return auth.ErrEmailTaken
	}
	return nil
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(r.Context(), cookie.Value); err != nil {
			applog.FromContext(r.Context()).Error("Failed to delete session", applog.FieldError, err)
		}
	}
	h.clearSessionCookie(w)
	setFlash(w, FlashInfo, "You have been logged out.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionDuration.Seconds()),
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

var (
	dummyHashOnce  sync.Once
	dummyHashValue string
)

func dummyHash() string {
	dummyHashOnce.Do(func() {
		dummyHashValue, _ = auth.HashPassword("not-a-real-password")
	})
	return dummyHashValue
}

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Flash is an advisory message shown once after a redirect.
type Flash struct {
	Kind    string
	Message string
}

func setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    url.QueryEscape(kind + ":" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash message, if any, and clears it.
func popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: FlashCookieName, Value: "", Path: "/", MaxAge: -1})

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(raw, ":")
	if !ok || message == "" {
		return nil
	}
	return &Flash{Kind: kind, Message: message}
}

var templateFuncs = template.FuncMap{
	"currency": formatCurrency,
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	logger := applog.FromContext(r.Context())
	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFiles(
		filepath.Join(h.templateDir, "base.html"),
		filepath.Join(h.templateDir, viewName),
	)
	if err != nil {
		logger.Error("Template error", "template", viewName, applog.FieldError, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		logger.Error("Template execution error", "template", viewName, applog.FieldError, err)
	}
}

// Health reports whether the database answers.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		applog.FromContext(r.Context()).Error("Health check failed", applog.FieldError, err)
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v before committing the status so an unencodable
// value becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		applog.FromContext(r.Context()).Error("JSON encoding error", applog.FieldError, err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
