// Package driverauth provides the authentication and session subsystem of
// the driver analytics application as an embeddable library.
//
// Setup:
//
//	users, sessions, limits := memory.NewUserStore(), memory.NewSessionStore(), memory.NewRateLimitStore()
//
//	svc, err := driverauth.New(driverauth.Config{
//	    Users:      users,
//	    Sessions:   sessions,
//	    RateLimits: limits,
//	    JWTSecret:  "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Bootstrap(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	http.ListenAndServe(":8080", svc.Router())
//
// Any of the pkg/store backends (postgres, bolt, memory) can supply the
// three stores.
package driverauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalhttp "github.com/psantos/driverauth/internal/http"
	"github.com/psantos/driverauth/internal/http/middleware"
	"github.com/psantos/driverauth/internal/httputil"
	"github.com/psantos/driverauth/pkg/auth"
	"github.com/psantos/driverauth/pkg/store"
)

// Config holds the configuration for the library.
type Config struct {
	// Users, Sessions and RateLimits are the storage backends (required).
	Users      store.UserStore
	Sessions   store.SessionStore
	RateLimits store.RateLimitStore

	// JWTSecret signs access tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in access tokens (default: "driverauth").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 15 minutes).
	AccessTokenTTL time.Duration

	// SessionTTL is the absolute session lifetime (default: 7 days).
	SessionTTL time.Duration

	// RotationInterval forces a session to be reissued when it has been
	// active longer than this (default: 24 hours).
	RotationInterval time.Duration

	// MaxLoginFailures and LoginCooldown define the lockout policy
	// (default: 5 failures, 15 minutes).
	MaxLoginFailures int
	LoginCooldown    time.Duration

	// DevMode enables the bootstrap admin account.
	DevMode bool

	// CookieSecure marks the session cookies Secure (set in production).
	CookieSecure bool

	// RateLimiters optionally adds IP-level throttling per endpoint group
	// ("auth", "recovery", "refresh"). See middleware.CreateRateLimiters.
	RateLimiters map[string]func(http.Handler) http.Handler

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// Service is the assembled authentication subsystem.
type Service struct {
	config        Config
	directory     *auth.UserDirectory
	sessions      *auth.SessionManager
	limiter       *auth.RateLimiter
	authenticator *auth.Authenticator
	tokens        *auth.AccessTokenIssuer
}

// New creates a service instance with the given configuration.
func New(cfg Config) (*Service, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	directory := auth.NewUserDirectory(cfg.Users, cfg.Logger)
	sessions := auth.NewSessionManager(auth.SessionConfig{
		SessionTTL:       cfg.SessionTTL,
		RotationInterval: cfg.RotationInterval,
	}, cfg.Sessions, cfg.Logger)
	limiter := auth.NewRateLimiter(cfg.RateLimits, cfg.Logger, cfg.MaxLoginFailures, cfg.LoginCooldown)

	return &Service{
		config:        cfg,
		directory:     directory,
		sessions:      sessions,
		limiter:       limiter,
		authenticator: auth.NewAuthenticator(directory, sessions, limiter, cfg.Logger),
		tokens: auth.NewAccessTokenIssuer(auth.AccessTokenConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
			TTL:    cfg.AccessTokenTTL,
		}),
	}, nil
}

// Bootstrap prepares the account state: in dev mode it creates the
// admin/admin account with a forced password change. Call once at startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	return s.directory.EnsureDefaultAdmin(ctx, s.config.DevMode)
}

// Router returns a chi router with all endpoints mounted.
//
// Routes:
//
//	GET  /health                   - Liveness check
//	POST /v1/auth/register         - Create the primary account
//	POST /v1/auth/login            - Login with username/password
//	POST /v1/auth/refresh          - Resolve the session pair, rotate if due
//	POST /v1/auth/logout           - Revoke the session
//	POST /v1/auth/password/change  - Change password (protected)
//	POST /v1/auth/recovery         - Knowledge-based password reset
//	GET  /v1/me                    - Current identity (protected)
func (s *Service) Router() chi.Router {
	cookies := httputil.DefaultCookieConfig()
	cookies.Secure = s.config.CookieSecure

	return internalhttp.NewRouter(internalhttp.RouterConfig{
		Auth:         s.authenticator,
		Tokens:       s.tokens,
		Sessions:     s.sessions,
		Cookies:      cookies,
		Logger:       s.config.Logger,
		RateLimiters: s.config.RateLimiters,
	})
}

// Authenticator exposes the core service for programmatic use.
func (s *Service) Authenticator() *auth.Authenticator {
	return s.authenticator
}

// Sessions exposes the session manager, e.g. for a housekeeping sweep.
func (s *Service) Sessions() *auth.SessionManager {
	return s.sessions
}

// AuthMiddleware returns middleware that validates access tokens. Use it
// to protect routes of the embedding application:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(svc.AuthMiddleware())
//	    r.Get("/reports", handler)
//	})
func (s *Service) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(s.tokens)
}

// GetUserID extracts the authenticated user ID from a request. Use after
// AuthMiddleware.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetUserID(r.Context())
}

// GetUserIDFromContext extracts the authenticated user ID from a context.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return middleware.GetUserID(ctx)
}

func validateConfig(cfg *Config) error {
	if cfg.Users == nil || cfg.Sessions == nil || cfg.RateLimits == nil {
		return errors.New("driverauth: Users, Sessions and RateLimits stores are required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("driverauth: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("driverauth: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "driverauth"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = auth.DefaultSessionTTL
	}
	if cfg.RotationInterval == 0 {
		cfg.RotationInterval = auth.DefaultRotationInterval
	}
	if cfg.MaxLoginFailures == 0 {
		cfg.MaxLoginFailures = auth.DefaultMaxFailures
	}
	if cfg.LoginCooldown == 0 {
		cfg.LoginCooldown = auth.DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}
