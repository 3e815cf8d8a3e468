package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/http/handler"
	"github.com/nextest/portal-auth/internal/http/middleware"
	"github.com/nextest/portal-auth/internal/http/response"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
)

const maxBodyBytes = 1 << 20

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	HealthHandler     *handler.HealthHandler
	Sessions          service.SessionManager
	Cookies           *security.CookieManager
	APIRateLimitRPM   int
	AuthRateLimitRPM  int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	DebugErrors       bool
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

var errRouteNotFound = apperr.NotFound("ROUTE_NOT_FOUND", "Route not found")

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.Recoverer(dep.DebugErrors))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS())
	r.Use(middleware.BodyLimit(maxBodyBytes))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	loadSession := middleware.LoadSession(dep.Sessions, dep.Cookies, dep.DebugErrors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, r, errRouteNotFound, false)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", dep.HealthHandler.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/verify", dep.AuthHandler.Verify)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(loadSession, middleware.RequireSession).Get("/me", dep.AuthHandler.Me)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
