package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/api/handlers"
	"github.com/tinychat/server/internal/api/middleware"
	"github.com/tinychat/server/internal/api/problem"
	"github.com/tinychat/server/internal/audit"
	"github.com/tinychat/server/internal/config"
	"github.com/tinychat/server/internal/domain/guilds"
	"github.com/tinychat/server/internal/domain/users"
	"github.com/tinychat/server/internal/metrics"
)

// Dependencies are the services the HTTP surface is built from.
type Dependencies struct {
	Config        config.Config
	Logger        zerolog.Logger
	Users         *users.Service
	Guilds        *guilds.Service
	Authenticator middleware.Authenticator
	Health        *handlers.HealthChecker
	Build         BuildInfo
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	usersHandler := handlers.NewUsersHandler(deps.Users, cfg.Environment)
	guildsHandler := handlers.NewGuildsHandler(deps.Guilds, cfg.Environment)

	auditLog := audit.NewLogger(deps.Logger)

	rateLimit := middleware.RateLimit(cfg.RateLimit)
	requireAuth := middleware.RequireAuth(deps.Authenticator)

	login := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierLogin)(rateLimit(h))
	}
	authed := func(h http.Handler) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierAuthenticated)(rateLimit(requireAuth(h)))
	}
	audited := func(action, resourceType, param string, h http.HandlerFunc) http.Handler {
		return authed(auditLog.Middleware(action, resourceType, param)(h))
	}

	mux := http.NewServeMux()
	route := func(pattern string, handler http.Handler) {
		mux.Handle(pattern, metrics.Instrument(pattern, handler))
	}

	mux.Handle("/healthz", handlers.Healthz())
	if deps.Health != nil {
		mux.Handle("/readyz", deps.Health.Readyz())
		mux.Handle("/health", deps.Health.Health())
	}
	mux.Handle("/version", methodMux(map[string]http.Handler{
		http.MethodGet: VersionHandler(deps.Build),
	}))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	route("/v1/users/@me", methodMux(map[string]http.Handler{
		http.MethodPost:   login(usersHandler.Register),
		http.MethodGet:    authed(http.HandlerFunc(usersHandler.Me)),
		http.MethodPatch:  audited(audit.ActionAccountUpdate, "user", "", usersHandler.Update),
		http.MethodDelete: audited(audit.ActionAccountDelete, "user", "", usersHandler.Delete),
	}))
	route("/v1/users/@me/token", methodMux(map[string]http.Handler{
		http.MethodPost: login(usersHandler.Token),
	}))

	route("/v1/guilds", methodMux(map[string]http.Handler{
		http.MethodPost: authed(http.HandlerFunc(guildsHandler.Create)),
	}))
	route("/v1/guilds/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    authed(http.HandlerFunc(guildsHandler.Get)),
		http.MethodPatch:  audited(audit.ActionGuildUpdate, "guild", "id", guildsHandler.Update),
		http.MethodDelete: audited(audit.ActionGuildDelete, "guild", "id", guildsHandler.Delete),
	}))
	route("/v1/guilds/{id}/channels", methodMux(map[string]http.Handler{
		http.MethodPost: authed(http.HandlerFunc(guildsHandler.CreateChannel)),
	}))
	route("/v1/guilds/{id}/invites", methodMux(map[string]http.Handler{
		http.MethodPost: authed(http.HandlerFunc(guildsHandler.CreateInvite)),
	}))
	route("/v1/invites/{id}", methodMux(map[string]http.Handler{
		http.MethodPost: audited(audit.ActionInviteJoin, "invite", "id", guildsHandler.JoinInvite),
	}))

	var handler http.Handler = mux
	handler = middleware.RequestSize(cfg.Server.MaxBodyBytes)(handler)
	handler = middleware.CORS(cfg.CORS, deps.Logger)(handler)
	handler = middleware.SecurityHeaders(cfg.Environment == "production")(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler
}

// methodMux dispatches on r.Method. HEAD falls back to the GET handler.
func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodHead {
			if handler, ok := handlers[http.MethodGet]; ok {
				handler.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		problem.Write(w, r, http.StatusMethodNotAllowed, problem.TypeMethodNotAllowed, "Method Not Allowed", nil, "")
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	if _, ok := handlers[http.MethodGet]; ok {
		if _, ok := handlers[http.MethodHead]; !ok {
			methods = append(methods, http.MethodHead)
		}
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
