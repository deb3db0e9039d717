package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/domain/role"
	"github.com/geocoder89/labshare/internal/http/handlers"
	"github.com/geocoder89/labshare/internal/http/middlewares"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router needs. Optional fields may be nil.
type Deps struct {
	Log         *slog.Logger
	Debug       bool
	ServiceName string

	Ping     func(ctx context.Context) error
	Gatherer prometheus.Gatherer
	Prom     *observability.Prom

	Auth          *handlers.AuthHandler
	Provisioning  *handlers.ProvisioningHandler
	Organizations *handlers.OrganizationsHandler
	Users         *handlers.UsersHandler

	Gate *middlewares.AuthMiddleware

	// AuthLimiter throttles the unauthenticated /auth endpoints.
	AuthLimiter *middlewares.RateLimiter

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
}

func NewRouter(d Deps) *gin.Engine {
	if !d.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.ServiceName == "" {
		d.ServiceName = "labshare-api"
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(d.ServiceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(!d.Debug))
	r.Use(middlewares.CORSMiddleware(d.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	health := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	gate := d.Gate

	authGroup := r.Group("/auth")
	if d.AuthLimiter != nil {
		authGroup.Use(d.AuthLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	}
	authGroup.POST("/register", d.Auth.Register)
	authGroup.POST("/login", d.Auth.Login)
	authGroup.POST("/refresh", d.Auth.Refresh)
	authGroup.POST("/logout", d.Auth.Logout)
	r.GET("/auth/verify", gate.RequireToken(), d.Auth.Verify)

	protected := r.Group("/")
	protected.Use(gate.RequireToken())

	orgs := d.Organizations
	protected.GET("/institutions", orgs.ListInstitutions)
	protected.GET("/institutions/:id", orgs.GetInstitution)
	protected.GET("/institutions/:id/laboratories", orgs.ListLaboratories)
	protected.GET("/laboratories/:id", orgs.GetLaboratory)
	protected.GET("/suppliers", orgs.ListSuppliers)
	protected.GET("/suppliers/:id", orgs.GetSupplier)

	selfOrAdmin := gate.RequireSelfOrElevated("id", role.Admin)
	protected.GET("/users/:id", selfOrAdmin, d.Users.Get)
	protected.PUT("/users/:id", selfOrAdmin, d.Users.Update)

	admin := protected.Group("/")
	admin.Use(gate.RequireRole(role.Admin))

	admin.POST("/institutions", d.Provisioning.CreateInstitution)
	admin.POST("/institutions/:id/laboratories", d.Provisioning.CreateLaboratory)
	admin.POST("/suppliers", d.Provisioning.CreateSupplier)
	admin.POST("/admin/suppliers", d.Provisioning.CreateSupplierWithAdmin)

	admin.DELETE("/institutions/:id", orgs.Delete(organization.KindInstitution))
	admin.DELETE("/laboratories/:id", orgs.Delete(organization.KindLaboratory))
	admin.DELETE("/suppliers/:id", orgs.Delete(organization.KindSupplier))
	admin.DELETE("/users/:id", d.Users.Delete)

	return r
}

// PingWithTimeout adapts a pool ping to the readiness probe.
func PingWithTimeout(ping func(ctx context.Context) error, d time.Duration) func(ctx context.Context) error {
	if ping == nil {
		return nil
	}
	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return ping(cctx)
	}
}
