package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/labshare/internal/auth"
	"github.com/geocoder89/labshare/internal/cache"
	"github.com/geocoder89/labshare/internal/config"
	"github.com/geocoder89/labshare/internal/db"
	httpx "github.com/geocoder89/labshare/internal/http"
	"github.com/geocoder89/labshare/internal/http/handlers"
	"github.com/geocoder89/labshare/internal/http/middlewares"
	"github.com/geocoder89/labshare/internal/membership"
	"github.com/geocoder89/labshare/internal/notifications"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/geocoder89/labshare/internal/provisioning"
	"github.com/geocoder89/labshare/internal/repo/postgres"
	"github.com/geocoder89/labshare/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "labshare-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracingConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	pool, err := db.NewPool(db.PoolConfig{
		URL:              cfg.DBURL,
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB := db.OpenSQL(pool)
	defer sqlDB.Close()

	rdb := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if rdb != nil {
		defer rdb.Close()
		pingCtx, cancel := config.WithTimeout(2 * time.Second)
		if err := cache.Ping(pingCtx, rdb); err != nil {
			log.Warn("redis unreachable, continuing", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()
	}

	var (
		roleCache  *cache.RoleCache
		limitStore middlewares.CounterStore = middlewares.NewMemoryStore()
	)
	if rdb != nil {
		roleCache = cache.NewRoleCache(rdb, 30*time.Second)
		limitStore = middlewares.NewRedisStore(rdb)
	}

	var inner notifications.Notifier = notifications.NewLogNotifier(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notifications.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		inner = kafka
	}
	notifier := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{})

	hasher := security.NewHasher(cfg.BcryptCost)
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTRefreshGrace)

	users := postgres.NewUsersRepo(sqlDB, prom)
	orgs := postgres.NewOrganizationsRepo(sqlDB, prom)
	resolver := membership.NewResolver(sqlDB, prom)
	gateRoles := membership.NewCachedResolver(resolver, roleCache, log)

	engine := provisioning.NewEngine(sqlDB, hasher, notifier, log, prom)

	seedCtx, cancelSeed := config.WithTimeout(10 * time.Second)
	created, err := engine.EnsureAdmin(seedCtx, provisioning.SeedAdmin{
		Email:     cfg.AdminEmail,
		Password:  cfg.AdminPassword,
		FirstName: cfg.AdminFirstName,
		LastName:  cfg.AdminLastName,
	})
	cancelSeed()
	if err != nil {
		log.Error("seed admin failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("seed admin ready", "email", cfg.AdminEmail)
	}

	errs := handlers.ErrorMapper{Debug: cfg.IsDev(), Log: log}

	router := httpx.NewRouter(httpx.Deps{
		Log:         log,
		Debug:       cfg.IsDev(),
		ServiceName: serviceName,
		Ping:        httpx.PingWithTimeout(pool.Ping, time.Second),
		Gatherer:    reg,
		Prom:        prom,

		Auth:          handlers.NewAuthHandler(users, resolver, tokens, hasher, errs),
		Provisioning:  handlers.NewProvisioningHandler(engine, errs),
		Organizations: handlers.NewOrganizationsHandler(orgs, errs),
		Users:         handlers.NewUsersHandler(users, gateRoles, errs),

		Gate:        middlewares.NewAuthMiddleware(tokens, gateRoles, cfg.RoleStaleAfter, prom, log),
		AuthLimiter: middlewares.NewRateLimiter(limitStore, cfg.AuthRateLimit, time.Minute),

		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
