// Package app assembles the HTTP application: the middleware pipeline, the
// database connection, route mounting and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gomailer/mail-service/handlers"
	"github.com/gomailer/mail-service/internal/config"
	"github.com/gomailer/mail-service/internal/database"
	"github.com/gomailer/mail-service/internal/mail"
	mailhandler "github.com/gomailer/mail-service/internal/mail/handler"
	"github.com/gomailer/mail-service/internal/mail/outbox"
	"github.com/gomailer/mail-service/internal/mail/repository"
	"github.com/gomailer/mail-service/internal/mail/service"
	"github.com/gomailer/mail-service/pkg/logger"
	"github.com/gomailer/mail-service/pkg/metrics"
	"github.com/gomailer/mail-service/pkg/middleware"
)

const (
	// MailPrefix is where the mail API is mounted.
	MailPrefix = "/v1/mail"

	shutdownTimeout = 30 * time.Second
	readyTimeout    = 2 * time.Second
)

// Deps are the collaborators the application is built from. Only Connector
// is required.
type Deps struct {
	Connector database.Connector
	// Redis enables the outbox, Redis rate limiting and the Redis readiness check.
	Redis *redis.Client
	// Blobs enables attachments.
	Blobs service.BlobStore
	// Verifier protects the mail API with bearer auth.
	Verifier middleware.Verifier
	// Out receives the route table in non-production environments
	// (os.Stdout when nil).
	Out io.Writer
}

// bucketEnsurer is implemented by blob stores that must create their bucket
// before first use.
type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// backlog reports how many queued mail ids wait on the outbox.
type backlog interface {
	Len(ctx context.Context) (int64, error)
}

// App is the assembled HTTP application.
type App struct {
	cfg     *config.Config
	conn    *database.Connection
	redis   *redis.Client
	outbox  backlog
	engine  *gin.Engine
	handler http.Handler
	started time.Time
}

// New builds the middleware pipeline, connects to the database through
// deps.Connector and mounts every route. A connection error is returned
// unchanged; the caller is expected to exit. Outside production the route
// table is written to deps.Out.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	if deps.Connector == nil {
		return nil, errors.New("app: database connector is required")
	}
	conn, err := deps.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := repository.EnsureIndexes(ctx, conn.Collection(mail.Collection)); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	if be, ok := deps.Blobs.(bucketEnsurer); ok {
		if err := be.EnsureBucket(ctx); err != nil {
			_ = conn.Close(ctx)
			return nil, err
		}
	}

	a, err := build(cfg, deps, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	if !cfg.Server.IsProduction() {
		out := deps.Out
		if out == nil {
			out = os.Stdout
		}
		if err := WriteRoutes(out, a.Routes(), FormatTable); err != nil {
			logger.Warnf("failed to list routes: %v", err)
		}
	}
	return a, nil
}

// ListRoutes builds the router without touching the database and returns
// its routes.
func ListRoutes(cfg *config.Config, deps Deps) ([]Route, error) {
	conn, err := database.LazyConnection(cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(context.Background()) }()
	a, err := build(cfg, deps, conn)
	if err != nil {
		return nil, err
	}
	return a.Routes(), nil
}

func build(cfg *config.Config, deps Deps, conn *database.Connection) (*App, error) {
	a := &App{cfg: cfg, conn: conn, redis: deps.Redis, started: time.Now()}

	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.BodyParser(cfg.Server.BodyLimit),
		middleware.CookieParser(),
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORS.Origins, AllowCredentials: cfg.CORS.Credentials}),
		middleware.RequestID(),
		middleware.RequestLogger(cfg.Log.Format),
		middleware.ParameterPollution(),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{}),
		middleware.HTTPMetrics(),
	)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", a.ready)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterSwagger(r)

	svc, err := a.mailService(deps)
	if err != nil {
		return nil, err
	}
	api := r.Group(MailPrefix)
	if deps.Verifier != nil {
		api.Use(middleware.AuthMiddleware(deps.Verifier))
	}
	if cfg.RateLimit.Enabled {
		api.Use(a.rateLimiter())
	}
	mailhandler.RegisterMailRoutes(api, svc)

	a.engine = r
	a.handler = middleware.Compress(r)
	return a, nil
}

func (a *App) mailService(deps Deps) (*service.Service, error) {
	var ob interface {
		service.Outbox
		backlog
	} = outbox.Nop{}
	if deps.Redis != nil {
		ob = outbox.NewRedisOutbox(deps.Redis, outbox.DefaultKey)
	}
	a.outbox = ob

	opts := []service.Option{service.WithURLExpiry(a.cfg.MinIO.URLExpiry), service.WithOutbox(ob)}
	if deps.Blobs != nil {
		opts = append(opts, service.WithBlobStore(deps.Blobs))
	}
	return service.New(repository.NewMongoRepo(a.conn.Collection(mail.Collection)), opts...)
}

// rateLimiter sits behind auth so limits apply per subject when the caller
// is authenticated, per IP otherwise.
func (a *App) rateLimiter() gin.HandlerFunc {
	rl := a.cfg.RateLimit
	if rl.UseRedis && a.redis != nil {
		return middleware.RedisRateLimitMiddleware(a.redis, rl.RPS, rl.Burst, time.Duration(rl.WindowSeconds)*time.Second)
	}
	if rl.UseRedis {
		logger.Warnf("RATE_LIMIT_USE_REDIS set without Redis; using in-memory limiter")
	}
	return middleware.RateLimitMiddleware(rl.RPS, rl.Burst)
}

// ready reports 200 only when MongoDB (and Redis, when configured) answer a
// ping. The outbox backlog is included when it can be read.
func (a *App) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	deps := map[string]bool{"mongo": a.conn.Ping(ctx) == nil}
	if a.redis != nil {
		deps["redis"] = a.redis.Ping(ctx).Err() == nil
	}
	ready := true
	for _, ok := range deps {
		ready = ready && ok
	}
	body := gin.H{"status": "ready", "deps": deps, "uptime": time.Since(a.started).Round(time.Second).String()}
	if n, err := a.outbox.Len(ctx); err == nil {
		body["outbox"] = n
	}
	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Handler returns the complete handler, compression included.
func (a *App) Handler() http.Handler { return a.handler }

// Routes lists the registered routes in registration order.
func (a *App) Routes() []Route {
	infos := a.engine.Routes()
	out := make([]Route, 0, len(infos))
	for _, ri := range infos {
		out = append(out, Route{Method: ri.Method, Path: ri.Path, Handler: ri.Handler})
	}
	return out
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down gracefully and closes the database connection.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s (environment=%s)", ln.Addr(), a.cfg.Server.Environment)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		_ = a.Close(context.Background())
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = a.Close(shutdownCtx)
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		return err
	}
	logger.Infof("server stopped gracefully")
	return nil
}

// Close releases the database connection.
func (a *App) Close(ctx context.Context) error {
	if err := a.conn.Close(ctx); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
