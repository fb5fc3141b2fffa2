package login

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httputil "github.com/neffi/trustgate/internal/http"
	"github.com/neffi/trustgate/internal/keycloak"
	"github.com/neffi/trustgate/internal/models"
	"github.com/neffi/trustgate/internal/store"
	"github.com/neffi/trustgate/internal/telemetry"
)

var (
	ErrInvalidSession = errors.New("invalid session")
)

// Mode selects how authentication is performed. Bypass is an explicit
// configuration choice, never an implicit fallback, so it cannot ship
// active by accident.
type Mode int

const (
	// ModeProvider authenticates against the configured identity
	// provider via the authorization-code flow.
	ModeProvider Mode = iota
	// ModeBypass skips the provider entirely and lazily provisions a
	// fixed development identity. Development only.
	ModeBypass
)

const (
	sessionCookieName = "_session"
	stateCookieName   = "oauth_state"

	// State cookies live just long enough to complete the round trip
	// through the identity provider.
	stateTTL = 5 * time.Minute
)

type contextKey string

const userContextKey contextKey = "user"

// DevUser is the fixed identity injected in bypass mode.
var DevUser = models.User{
	ID:        "dev-user-001",
	Username:  "dev.user",
	Email:     "dev@trustgate.local",
	FirstName: "Dev",
	LastName:  "User",
	Roles:     []string{"admin", "user"},
}

// Config assembles the dependencies of the auth HTTP surface.
type Config struct {
	Mode Mode

	// Provider is required in ModeProvider and unused in ModeBypass.
	Provider *keycloak.Provider

	// PublicConfig is surfaced on /api/auth/keycloak-config so the
	// frontend knows which realm it is talking to.
	PublicConfig keycloak.PublicConfig

	Sessions store.SessionStore

	// CookieSecret signs the session cookie value; the cookie carries
	// only the opaque session ID plus an HMAC over it.
	CookieSecret []byte

	SessionTTL    time.Duration
	SecureCookies bool
}

// Handlers owns the /api/auth/* surface and the auth gate middleware.
type Handlers struct {
	mode          Mode
	provider      *keycloak.Provider
	publicConfig  keycloak.PublicConfig
	sessions      store.SessionStore
	cookieSecret  []byte
	sessionTTL    time.Duration
	secureCookies bool
}

// New validates the configuration and builds the auth handlers.
func New(cfg Config) (*Handlers, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(cfg.CookieSecret) < 32 {
		return nil, fmt.Errorf("cookie secret must be at least 32 bytes")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}
	if cfg.Mode == ModeProvider && cfg.Provider == nil {
		return nil, fmt.Errorf("identity provider is required unless bypass mode is active")
	}

	return &Handlers{
		mode:          cfg.Mode,
		provider:      cfg.Provider,
		publicConfig:  cfg.PublicConfig,
		sessions:      cfg.Sessions,
		cookieSecret:  cfg.CookieSecret,
		sessionTTL:    cfg.SessionTTL,
		secureCookies: cfg.SecureCookies,
	}, nil
}

// BypassActive reports whether the development bypass is configured.
func (h *Handlers) BypassActive() bool {
	return h.mode == ModeBypass
}

// signSessionID returns the cookie value for a session ID: the ID plus an
// HMAC-SHA256 signature so a forged cookie fails before a store lookup.
func (h *Handlers) signSessionID(sessionID uuid.UUID) string {
	mac := hmac.New(sha256.New, h.cookieSecret)
	mac.Write([]byte(sessionID.String()))
	return sessionID.String() + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// parseSessionCookie validates the cookie signature (constant-time) and
// returns the session ID.
func (h *Handlers) parseSessionCookie(r *http.Request) (uuid.UUID, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	idPart, sigPart, ok := strings.Cut(cookie.Value, ".")
	if !ok {
		return uuid.Nil, ErrInvalidSession
	}

	receivedSig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	mac := hmac.New(sha256.New, h.cookieSecret)
	mac.Write([]byte(idPart))
	if !hmac.Equal(receivedSig, mac.Sum(nil)) {
		log.Debug().Msg("session cookie HMAC validation failed")
		return uuid.Nil, ErrInvalidSession
	}

	sessionID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	return sessionID, nil
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, sessionID uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    h.signSessionID(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// sessionFromRequest resolves the request's session from its cookie.
func (h *Handlers) sessionFromRequest(r *http.Request) (*models.Session, error) {
	sessionID, err := h.parseSessionCookie(r)
	if err != nil {
		return nil, err
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// createSession persists a new session and sets the cookie.
func (h *Handlers) createSession(ctx context.Context, w http.ResponseWriter, user *models.User, tokens *keycloak.Tokens, r *http.Request) (*models.Session, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		SessionID: sessionID,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(h.sessionTTL),
		UserAgent: r.UserAgent(),
		IPAddress: httputil.ClientIPFromContext(ctx),
	}
	if tokens != nil {
		session.AccessToken = tokens.AccessToken
		session.RefreshToken = tokens.RefreshToken
		session.IDToken = tokens.IDToken
	}

	if err := h.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	telemetry.GetMetrics().SessionsActive.Add(ctx, 1)
	h.setSessionCookie(w, sessionID)
	return session, nil
}

func (h *Handlers) createDevSession(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	user := DevUser
	return h.createSession(r.Context(), w, &user, nil, r)
}

func (h *Handlers) saveState(w http.ResponseWriter) string {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	return state
}

func (h *Handlers) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// redirectURI computes the callback URI from the request's effective
// origin. It must match at initiation and exchange; providers reject
// mismatches.
func redirectURI(r *http.Request) string {
	return httputil.RequestOrigin(r) + "/api/auth/callback"
}

// LoginHandler initiates the login flow: a redirect to the provider's
// authorization endpoint, or a direct dev session in bypass mode.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if h.mode == ModeBypass {
		if _, err := h.createDevSession(w, r); err != nil {
			log.Error().Err(err).Msg("failed to create bypass session")
			http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
			return
		}
		log.Info().Str("user", DevUser.Username).Msg("bypass login")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	telemetry.GetMetrics().LoginsStartedTotal.Add(r.Context(), 1)

	state := h.saveState(w)
	http.Redirect(w, r, h.provider.AuthCodeURL(redirectURI(r), state), http.StatusFound)
}

// loginFailed redirects back to the application root with a query-string
// error marker. Nothing is retried; the user re-initiates login.
func (h *Handlers) loginFailed(w http.ResponseWriter, r *http.Request, marker string) {
	telemetry.GetMetrics().LoginFailuresTotal.Add(r.Context(), 1)
	http.Redirect(w, r, "/?error="+marker, http.StatusFound)
}

// CallbackHandler terminates the authorization-code flow. Every failure
// degrades to a redirect back to the application root with an error
// marker.
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if h.mode == ModeBypass {
		if _, err := h.createDevSession(w, r); err != nil {
			log.Error().Err(err).Msg("failed to create bypass session")
			h.loginFailed(w, r, "auth_failed")
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		log.Warn().Msg("callback missing authorization code")
		h.loginFailed(w, r, "no_code")
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || r.FormValue("state") != stateCookie.Value {
		log.Warn().Msg("callback state mismatch")
		h.loginFailed(w, r, "invalid_state")
		return
	}
	h.clearStateCookie(w)

	tokens, err := h.provider.Exchange(r.Context(), code, redirectURI(r))
	if err != nil {
		log.Warn().Err(err).Msg("token exchange failed")
		h.loginFailed(w, r, "token_exchange_failed")
		return
	}

	info, err := h.provider.UserInfo(r.Context(), tokens.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch user info")
		h.loginFailed(w, r, "userinfo_failed")
		return
	}

	// A verification failure downgrades to zero roles rather than
	// failing the login.
	roles, err := h.provider.ExtractRoles(r.Context(), tokens.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("failed to extract token roles")
		roles = nil
	}

	username := info.PreferredUsername
	if username == "" {
		username = info.Sub
	}

	user := &models.User{
		ID:        info.Sub,
		Username:  username,
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
		Roles:     roles,
	}

	if _, err := h.createSession(r.Context(), w, user, tokens, r); err != nil {
		log.Error().Err(err).Msg("failed to create session")
		h.loginFailed(w, r, "auth_failed")
		return
	}

	telemetry.GetMetrics().LoginsTotal.Add(r.Context(), 1)
	log.Info().Str("user", user.Username).Msg("user logged in")
	http.Redirect(w, r, "/", http.StatusFound)
}

type meResponse struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *models.User `json:"user"`
}

// MeHandler reports the current session state. In bypass mode a missing
// session is lazily provisioned with the fixed development identity.
func (h *Handlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionFromRequest(r)
	if err == nil && session.IsAuthenticated() {
		// Rolling expiry: reading the session extends its window.
		if err := h.sessions.Touch(r.Context(), session.SessionID, h.sessionTTL); err != nil {
			log.Debug().Err(err).Msg("failed to touch session")
		}
		writeJSON(w, http.StatusOK, meResponse{IsAuthenticated: true, User: session.User})
		return
	}

	if h.mode == ModeBypass {
		session, err := h.createDevSession(w, r)
		if err != nil {
			log.Error().Err(err).Msg("failed to create bypass session")
			writeJSON(w, http.StatusOK, meResponse{})
			return
		}
		writeJSON(w, http.StatusOK, meResponse{IsAuthenticated: true, User: session.User})
		return
	}

	writeJSON(w, http.StatusOK, meResponse{})
}

type logoutResponse struct {
	LogoutURL string `json:"logoutUrl"`
}

// LogoutHandler destroys the server-side session unconditionally and
// returns the URL the browser should navigate to: the provider's
// end-session endpoint when an identity token was held, otherwise the
// application root.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var idToken string

	if sessionID, err := h.parseSessionCookie(r); err == nil {
		if session, err := h.sessions.Get(r.Context(), sessionID); err == nil {
			idToken = session.IDToken
		}
		// Destroy errors are logged, never surfaced; the response
		// still reports a successful logout.
		if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
			log.Warn().Err(err).Msg("failed to destroy session on logout")
		} else {
			telemetry.GetMetrics().SessionsActive.Add(r.Context(), -1)
		}
	}

	telemetry.GetMetrics().LogoutsTotal.Add(r.Context(), 1)

	h.clearSessionCookie(w)

	logoutURL := "/"
	if h.mode == ModeProvider && idToken != "" {
		logoutURL = h.provider.EndSessionURL(idToken, httputil.RequestOrigin(r))
	}

	writeJSON(w, http.StatusOK, logoutResponse{LogoutURL: logoutURL})
}

type providerConfigResponse struct {
	URL          string `json:"url"`
	Realm        string `json:"realm"`
	ClientID     string `json:"clientId"`
	BypassActive bool   `json:"bypassActive"`
}

// ConfigHandler exposes the non-secret identity provider configuration to
// the frontend.
func (h *Handlers) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providerConfigResponse{
		URL:          h.publicConfig.URL,
		Realm:        h.publicConfig.Realm,
		ClientID:     h.publicConfig.ClientID,
		BypassActive: h.mode == ModeBypass,
	})
}

// DevUserHandler returns the static development user. Registered only
// when bypass mode is active.
func (h *Handlers) DevUserHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DevUser)
}

// RequireAuth protects API routes. A session with a user proceeds; bypass
// mode synthesizes the development identity; anything else is a 401 with
// a structured body. Synchronous, no external calls.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.sessionFromRequest(r)
		if err == nil && session.IsAuthenticated() {
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), session.User)))
			return
		}

		if h.mode == ModeBypass {
			session, err := h.createDevSession(w, r)
			if err != nil {
				log.Error().Err(err).Msg("failed to create bypass session")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "session unavailable"})
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), session.User)))
			return
		}

		log.Debug().Str("path", r.URL.Path).Msg("unauthenticated request rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not authenticated"})
	})
}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the authenticated user from the request
// context. This should be called from handlers protected by RequireAuth.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
