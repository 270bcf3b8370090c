package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	authfeature "github.com/psantos/driverauth/internal/http/features/auth"
	"github.com/psantos/driverauth/internal/http/middleware"
	"github.com/psantos/driverauth/internal/httputil"
	"github.com/psantos/driverauth/pkg/auth"
)

// maxRequestBody bounds every request body. The largest legitimate payload
// is a registration form; 64 KiB leaves plenty of headroom.
const maxRequestBody = 64 << 10

// RouterConfig holds everything the router needs.
type RouterConfig struct {
	Auth         *auth.Authenticator
	Tokens       *auth.AccessTokenIssuer
	Sessions     *auth.SessionManager
	Cookies      httputil.CookieConfig
	Logger       *slog.Logger
	RateLimiters map[string]func(http.Handler) http.Handler
}

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RequestSizeLimit(maxRequestBody))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	handler := authfeature.NewHandler(cfg.Auth, cfg.Tokens, cfg.Sessions.SessionTTL(), cfg.Cookies, cfg.Logger)
	requireAuth := middleware.Auth(cfg.Tokens)

	limiter := func(name string) func(http.Handler) http.Handler {
		if m, ok := cfg.RateLimiters[name]; ok {
			return m
		}
		return middleware.NoRateLimit()
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter("auth"))
				r.Post("/register", handler.Register)
				r.Post("/login", handler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(limiter("refresh"))
				r.Post("/refresh", handler.Refresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(limiter("recovery"))
				r.Post("/recovery", handler.Recovery)
			})

			r.Post("/logout", handler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/password/change", handler.ChangePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequirePasswordChanged())
			r.Get("/me", handler.Me)
		})
	})

	return r
}
