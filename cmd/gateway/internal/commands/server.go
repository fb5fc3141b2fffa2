package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"

	httpmiddleware "github.com/neffi/trustgate/internal/http"
	"github.com/neffi/trustgate/internal/keycloak"
	"github.com/neffi/trustgate/internal/logger"
	"github.com/neffi/trustgate/internal/login"
	"github.com/neffi/trustgate/internal/proxy"
	"github.com/neffi/trustgate/internal/screening"
	"github.com/neffi/trustgate/internal/spa"
	"github.com/neffi/trustgate/internal/store"
	memorystore "github.com/neffi/trustgate/internal/store/memory"
	redisstore "github.com/neffi/trustgate/internal/store/redis"
	"github.com/neffi/trustgate/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Port        int      `help:"HTTP server listen port" default:"5010" env:"PORT"`
	Production  bool     `help:"production mode - secure cookies, no dev conveniences" default:"false" env:"TRUSTGATE_PRODUCTION"`
	SPADir      string   `help:"directory holding the built frontend" default:"client/dist" env:"TRUSTGATE_SPA_DIR"`
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:5010" env:"TRUSTGATE_CORS_ORIGINS"`

	// Keycloak configuration
	KeycloakURL          string `help:"Keycloak base URL" default:"http://localhost:8080" env:"KEYCLOAK_URL"`
	KeycloakRealm        string `help:"Keycloak realm" default:"neffitrust" env:"KEYCLOAK_REALM"`
	KeycloakClientID     string `help:"Keycloak client ID" default:"neffilaft" env:"KEYCLOAK_CLIENT_ID"`
	KeycloakClientSecret string `help:"Keycloak client secret" default:"" env:"KEYCLOAK_CLIENT_SECRET"`

	// Session configuration
	SessionSecret string        `help:"secret used to sign session cookies" default:"" env:"SESSION_SECRET"`
	SessionTTL    time.Duration `help:"session TTL" default:"24h" env:"TRUSTGATE_SESSION_TTL"`
	SessionSweep  time.Duration `help:"interval between expired-session sweeps" default:"15m" env:"TRUSTGATE_SESSION_SWEEP"`

	// Development and operational modes
	AuthBypass bool `help:"skip the identity provider and use a fixed dev identity (development only)" default:"false" env:"AUTH_BYPASS"`
	Tracing    bool `help:"enable tracing" default:"false" env:"TRUSTGATE_TRACING"`

	// Upstream application server
	SpringBootURL string `help:"upstream application server URL" default:"http://localhost:8080" env:"SPRING_BOOT_URL"`

	// Store configuration
	StoreType string `help:"session store type (memory or redis)" default:"memory" env:"TRUSTGATE_STORE_TYPE" enum:"memory,redis"`
	RedisURL  string `help:"Redis connection URL" default:"" env:"REDIS_URL"`
}

func (c *ServerCmd) Validate() error {
	if !c.AuthBypass {
		if len(c.SessionSecret) < 32 {
			return errors.New("session secret must be at least 32 bytes (--session-secret or SESSION_SECRET)")
		}
		if c.KeycloakClientSecret == "" {
			return errors.New("Keycloak client secret is required unless bypass mode is active (--keycloak-client-secret or KEYCLOAK_CLIENT_SECRET)")
		}
	}
	if c.StoreType == "redis" && c.RedisURL == "" {
		return errors.New("Redis URL is required for the redis store (--redis-url or REDIS_URL)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting gateway")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "trustgate", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Session store
	var sessionStore store.SessionStore
	switch c.StoreType {
	case "redis":
		rs, err := redisstore.NewSessionStore(ctx, c.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() {
			if err := rs.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Redis session store")
			}
		}()
		sessionStore = rs
		log.Info().Msg("Using Redis session store")

	default:
		sessionStore = memorystore.NewSessionStore()
		log.Info().Msg("Using in-memory session store")
	}

	// Expired sessions are also dropped on read; the sweep reclaims
	// sessions whose cookies never come back.
	go func() {
		ticker := time.NewTicker(c.SessionSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := sessionStore.DeleteExpired(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Failed to sweep expired sessions")
					continue
				}
				if n > 0 {
					log.Info().Int("count", n).Msg("Swept expired sessions")
				}
			}
		}
	}()

	// Identity provider
	mode := login.ModeProvider
	var provider *keycloak.Provider
	if c.AuthBypass {
		mode = login.ModeBypass
		log.Warn().Msg("AUTH_BYPASS is active; all requests use the fixed development identity. Development only!")
	} else {
		var err error
		provider, err = keycloak.New(c.KeycloakURL, c.KeycloakRealm, c.KeycloakClientID, c.KeycloakClientSecret)
		if err != nil {
			return fmt.Errorf("failed to configure Keycloak provider: %w", err)
		}
	}

	secret := c.SessionSecret
	if c.AuthBypass && len(secret) < 32 {
		secret = "dev-mode-secret-key-minimum-32-characters-long"
	}

	auth, err := login.New(login.Config{
		Mode:     mode,
		Provider: provider,
		PublicConfig: keycloak.PublicConfig{
			URL:      c.KeycloakURL,
			Realm:    c.KeycloakRealm,
			ClientID: c.KeycloakClientID,
		},
		Sessions:      sessionStore,
		CookieSecret:  []byte(secret),
		SessionTTL:    c.SessionTTL,
		SecureCookies: c.Production,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth handlers: %w", err)
	}

	apiProxy, err := proxy.New(c.SpringBootURL)
	if err != nil {
		return fmt.Errorf("failed to configure API proxy: %w", err)
	}

	mux := http.NewServeMux()

	// Auth surface, handled locally and never proxied
	mux.HandleFunc("GET /api/auth/login", auth.LoginHandler)
	mux.HandleFunc("GET /api/auth/callback", auth.CallbackHandler)
	mux.HandleFunc("GET /api/auth/me", auth.MeHandler)
	mux.HandleFunc("POST /api/auth/logout", auth.LogoutHandler)
	mux.HandleFunc("GET /api/auth/keycloak-config", auth.ConfigHandler)
	if auth.BypassActive() {
		mux.HandleFunc("GET /api/auth/user", auth.DevUserHandler)
	}

	// Third-party screening routes, handled locally behind the auth gate
	mux.Handle("POST /api/third-party/search", auth.RequireAuth(http.HandlerFunc(screening.SearchHandler)))
	mux.Handle("POST /api/third-party/upload", auth.RequireAuth(http.HandlerFunc(screening.UploadHandler)))

	// Everything else under /api/ forwards to the application server
	mux.Handle("/api/", auth.RequireAuth(apiProxy))

	// SPA shell and static assets for all non-API paths
	mux.Handle("/", spa.New(c.SPADir))

	// API routes get CORS, HTML routes get CSRF
	protection := csrf.New()
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   c.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			corsMiddleware.Handler(mux).ServeHTTP(w, r)
		} else {
			protection.Handler(mux).ServeHTTP(w, r)
		}
	})

	clientIPMiddleware := httpmiddleware.ClientIPMiddleware()
	requestLogging := logger.NewHTTPRequests(log)

	addr := fmt.Sprintf("0.0.0.0:%d", c.Port)
	srv := configureHTTPServer(addr, requestLogging(clientIPMiddleware(handler)))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("upstream", c.SpringBootURL).Bool("bypass", auth.BypassActive()).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
