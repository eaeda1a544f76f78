package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/account"
	"github.com/qingcheng-ai/QingchengAPI/internal/config"
	"github.com/qingcheng-ai/QingchengAPI/internal/db"
	"github.com/qingcheng-ai/QingchengAPI/internal/gemini"
	"github.com/qingcheng-ai/QingchengAPI/internal/http/api/admin"
	"github.com/qingcheng-ai/QingchengAPI/internal/http/api/front"
	fronthandlers "github.com/qingcheng-ai/QingchengAPI/internal/http/api/front/handlers"
	"github.com/qingcheng-ai/QingchengAPI/internal/logging"
	"github.com/qingcheng-ai/QingchengAPI/internal/payment"
	"github.com/qingcheng-ai/QingchengAPI/internal/ratelimit"
	"github.com/qingcheng-ai/QingchengAPI/internal/redeem"
	"github.com/qingcheng-ai/QingchengAPI/internal/settings"
	"github.com/qingcheng-ai/QingchengAPI/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds how long in-flight requests may run after a stop signal.
// It exceeds the worst-case retry budget of an AI request.
const shutdownTimeout = 30 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(conf.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.Infof("migrated %s database", db.DialectName(conn))
	return nil
}

// RunServer boots the HTTP API and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(conf.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	conn, err := db.Open(conf.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	limiter, closeLimiter, err := ratelimit.New(conf.Redis.URL, conf.Redis.Prefix, conf.Redeem.RateLimitPerMinute, time.Minute)
	if err != nil {
		return err
	}
	defer func() { _ = closeLimiter() }()

	if conf.Payment.Alipay.AllowUnverifiedNotify {
		log.Warn("payment.alipay.allow-unverified-notify is enabled: callbacks failing signature verification will be settled")
	}
	if conf.Gemini.APIKey == "" {
		log.Warn("gemini.api-key is empty: AI requests will fail until it is configured")
	}

	usage.NewRetentionCleaner(conn, conf.Usage.RetentionDays).Start(ctx)

	engine := NewEngine(conf, conn, limiter, NewGeminiClient(conf.Gemini))
	addr := net.JoinHostPort(conf.Server.Host, strconv.Itoa(conf.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s with config=%s", addr, configPath)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case errServe := <-serveErr:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", errServe)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

// NewGeminiClient builds the AI client from configuration.
func NewGeminiClient(conf config.GeminiConfig) *gemini.Client {
	return gemini.NewClient(gemini.Options{
		APIKey:  conf.APIKey,
		BaseURL: conf.BaseURL,
		Timeout: time.Duration(conf.TimeoutSeconds) * time.Second,
		Retrier: gemini.NewRetrier(conf.MaxAttempts, time.Duration(conf.BaseDelayMillis)*time.Millisecond),
		Models: gemini.Models{
			Image:    conf.ImageModel,
			Analyze:  conf.AnalyzeModel,
			Validate: conf.ValidateModel,
		},
	})
}

// NewEngine wires every service onto a gin engine.
func NewEngine(conf config.Config, conn *gorm.DB, limiter ratelimit.Limiter, ai fronthandlers.Invoker) *gin.Engine {
	if conf.Server.Mode != "" {
		gin.SetMode(conf.Server.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.RequestLogger())

	store := settings.NewStore(conn, settings.DefaultCacheTTL)
	loc := conf.Redeem.Location()
	redeemer := redeem.NewService(conn, loc, limiter)

	front.RegisterFrontRoutes(engine, front.Deps{
		DB:       conn,
		JWT:      conf.JWT,
		SiteName: conf.Server.SiteName,
		Location: loc,
		Accounts: account.NewService(conn),
		Settings: store,
		Payments: payment.NewService(conn, store, payment.Options{
			GatewayURL:            conf.Payment.Alipay.GatewayURL,
			Subject:               conf.Payment.Alipay.Subject,
			AllowUnverifiedNotify: conf.Payment.Alipay.AllowUnverifiedNotify,
		}),
		Redeemer: redeemer,
		AI:       ai,
	})
	admin.RegisterAdminRoutes(engine, admin.Deps{
		DB:       conn,
		JWT:      conf.JWT,
		Settings: store,
		Redeemer: redeemer,
	})
	return engine
}
