package cli

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gomailer/mail-service/internal/app"
	"github.com/gomailer/mail-service/internal/auth"
	"github.com/gomailer/mail-service/internal/config"
	"github.com/gomailer/mail-service/internal/database"
	"github.com/gomailer/mail-service/internal/storage"
	"github.com/gomailer/mail-service/pkg/logger"
	"github.com/gomailer/mail-service/pkg/middleware"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg)
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Infof("config loaded: environment=%s keycloak=%v redis=%v minio=%v jwt_secret_set=%v",
		cfg.Server.Environment, cfg.Keycloak.URL != "", cfg.Redis.Enabled(), cfg.MinIO.Enabled(), cfg.JWT.Secret != "")

	ctx := cmd.Context()
	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, deps)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// configureLogging applies LOG_LEVEL. The service log is JSON only when the
// request log format is json; every other format keeps the console writer.
func configureLogging(cfg *config.Config) {
	format := "console"
	if strings.EqualFold(cfg.Log.Format, middleware.LogFormatJSON) {
		format = "json"
	}
	logger.Configure(cfg.Log.Level, format)
}

// buildDeps creates the optional clients. Redis and MinIO clients do no I/O
// here beyond a Redis ping whose failure is only logged, so /ready reports it.
func buildDeps(ctx context.Context, cfg *config.Config) (app.Deps, error) {
	deps := app.Deps{Connector: database.MongoConnector{Config: cfg.MongoDB}}

	if cfg.Redis.Enabled() {
		deps.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
		}
	}

	if cfg.MinIO.Enabled() {
		blobs, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return deps, err
		}
		deps.Blobs = blobs
	} else {
		logger.Infof("attachments disabled: MINIO_ENDPOINT is not set")
	}

	ver, err := auth.FromConfig(ctx, cfg)
	if err != nil {
		return deps, err
	}
	deps.Verifier = ver
	return deps, nil
}
