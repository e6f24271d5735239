package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/aussiebroadwan/accounts/api/accounts" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// APIPrefix is prepended to every versioned route.
const APIPrefix = "/api/v1"

// RouterConfig carries the non-service settings of the router.
type RouterConfig struct {
	BuildVersion string
	RateLimits   httpx.RateLimits
	CORSOrigins  []string
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware
	handler     http.Handler

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	limits       httpx.RateLimits

	store       store.Store
	AuthService *service.AuthService
	UserService *service.UserService
}

func NewRouter(
	st store.Store,
	auth *service.AuthService,
	users *service.UserService,
	cfg RouterConfig,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: cfg.BuildVersion,
		startTime:    time.Now(),
		logger:       logger,
		limits:       cfg.RateLimits,
		store:        st,
		AuthService:  auth,
		UserService:  users,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(cfg.CORSOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
	r.handler = httpx.Chain(r.Mux, r.middlewares...)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Accounts Service API
//	@version		0.1.0
//	@description	User registration, authentication and profile management.
//	@description
//	@description				Access tokens are HS256 signed JWTs obtained from /api/v1/login/access-token.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/accounts
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.handler == nil {
		httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
		return
	}
	r.handler.ServeHTTP(w, req)
}

// authenticated requires an active user and limits per user.
func (r *Router) authenticated(h http.Handler) http.Handler {
	return httpx.Chain(h,
		Authn(r.AuthService),
		httpx.RateLimitByUser(r.limits.Moderate),
	)
}

// superuser additionally requires the superuser flag.
func (r *Router) superuser(h http.Handler) http.Handler {
	return httpx.Chain(h,
		Authn(r.AuthService),
		RequireSuperuser(r.AuthService),
		httpx.RateLimitByUser(r.limits.Moderate),
	)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{AuthService: r.AuthService, UserService: r.UserService}

	// Brute force protection: per IP and submitted username.
	r.Mux.Handle("POST "+APIPrefix+"/login/access-token",
		httpx.Chain(http.HandlerFunc(h.HandleAccessToken),
			httpx.RateLimitByIPAndFormField(r.limits.Strict, "username"),
		),
	)

	r.Mux.Handle("POST "+APIPrefix+"/login/test-token",
		r.authenticated(http.HandlerFunc(h.HandleTestToken)),
	)

	r.Mux.Handle("POST "+APIPrefix+"/login/password-recovery",
		httpx.Chain(http.HandlerFunc(h.HandlePasswordRecovery),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)

	r.Mux.Handle("POST "+APIPrefix+"/login/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}

	r.Mux.Handle("GET "+APIPrefix+"/users", r.superuser(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("POST "+APIPrefix+"/users", r.superuser(http.HandlerFunc(h.HandleCreate)))

	r.Mux.Handle("GET "+APIPrefix+"/users/me", r.authenticated(http.HandlerFunc(h.HandleMe)))
	r.Mux.Handle("PATCH "+APIPrefix+"/users/me", r.authenticated(http.HandlerFunc(h.HandleUpdateMe)))

	// Public registration, disabled unless USERS_OPEN_SIGN_UP is set.
	r.Mux.Handle("POST "+APIPrefix+"/users/sign-up",
		httpx.Chain(http.HandlerFunc(h.HandleSignUp),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)

	r.Mux.Handle("GET "+APIPrefix+"/users/{id}", r.superuser(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("PATCH "+APIPrefix+"/users/{id}", r.superuser(http.HandlerFunc(h.HandleUpdate)))
	r.Mux.Handle("DELETE "+APIPrefix+"/users/{id}", r.superuser(http.HandlerFunc(h.HandleDelete)))
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
