package http

import (
	"log/slog"

	"github.com/beststore/accounts/internal/domain/user"
	"github.com/beststore/accounts/internal/http/handlers"
	"github.com/beststore/accounts/internal/http/middlewares"
	"github.com/beststore/accounts/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	serviceName  = "beststore-accounts"
	maxBodyBytes = 64 << 10
)

type RouterDeps struct {
	Log            *slog.Logger
	Env            string
	AllowedOrigins []string

	Accounts handlers.AccountService
	Tokens   middlewares.TokenVerifier

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	// Ready lists dependencies /readyz pings.
	Ready map[string]handlers.Pinger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Env != "dev" && deps.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Log))
	r.Use(middlewares.SecurityHeaders(deps.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(deps.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	h := handlers.NewHealthHandler(deps.Ready)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	accounts := handlers.NewAccountHandler(deps.Accounts, deps.Log)
	authMW := middlewares.NewAuthMiddleware(deps.Tokens)

	// login, forgot and reset also take query parameters
	public := r.Group("/account")
	public.POST("/register", middlewares.RequireJSON(), accounts.Register)
	public.POST("/login", accounts.Login)
	public.POST("/forgot-password", accounts.ForgotPassword)
	public.POST("/reset-password", accounts.ResetPassword)

	private := r.Group("/account", authMW.RequireAuth())
	private.GET("/profile", accounts.GetProfile)
	private.PUT("/profile", middlewares.RequireJSON(), accounts.UpdateProfile)
	private.PUT("/password", accounts.UpdatePassword)
	private.GET("/claims", accounts.Claims)

	admin := r.Group("/admin", authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin))
	admin.GET("/ping", accounts.AdminPing)
	admin.GET("/users", accounts.ListUsers)

	return r
}
