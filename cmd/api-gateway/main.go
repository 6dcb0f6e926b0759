package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/pawtograder/office-hours/api/swagger"
	"github.com/pawtograder/office-hours/internal/chat"
	"github.com/pawtograder/office-hours/internal/handler"
	"github.com/pawtograder/office-hours/internal/middleware"
	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
	"github.com/pawtograder/office-hours/internal/repository"
	"github.com/pawtograder/office-hours/internal/service"
	"github.com/pawtograder/office-hours/internal/tablecache"
	"github.com/pawtograder/office-hours/pkg/cache"
	"github.com/pawtograder/office-hours/pkg/config"
	"github.com/pawtograder/office-hours/pkg/database"
	"github.com/pawtograder/office-hours/pkg/logger"
	corsmiddleware "github.com/pawtograder/office-hours/pkg/middleware/cors"
	reqidmiddleware "github.com/pawtograder/office-hours/pkg/middleware/requestid"
	"github.com/pawtograder/office-hours/pkg/storage"
)

// @title Pawtograder Office Hours API
// @version 1.0.0
// @description Help queue, chat, realtime and calendar backend for office hours
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey MCPToken
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

type handlers struct {
	queue      *handler.QueueHandler
	requests   *handler.HelpRequestHandler
	chat       *handler.ChatHandler
	moderation *handler.ModerationHandler
	export     *handler.ExportHandler
	calendar   *handler.CalendarHandler
	prefs      *handler.PreferenceHandler
	realtime   *handler.RealtimeHandler
	mcp        *handler.MCPTokenHandler
	metrics    *handler.MetricsHandler

	mcpVerifier middleware.MCPVerifier
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	store := tablecache.NewStore()
	listener := tablecache.NewListener(store, repository.NewSnapshotLoader(db), tablecache.ListenerConfig{
		DSN:     cfg.Database.DSN(),
		Channel: cfg.Database.ListenChannel,
		Logger:  logr.Named("tablecache"),
	})

	var relay realtime.Relay
	if redisClient != nil && cfg.Realtime.RelayEnabled {
		relay = realtime.NewRedisRelay(redisClient, cfg.Realtime.RelayPrefix, logr.Named("relay"))
	}
	broker := realtime.NewBroker(realtime.Config{
		Buffer:   cfg.Realtime.SubscriberBuffer,
		Relay:    relay,
		Observer: metrics,
		Logger:   logr.Named("broker"),
	})
	metrics.TrackRealtime(broker)

	h, registry, err := buildHandlers(cfg, logr, db, redisClient, store, broker, metrics, validate)
	if err != nil {
		return err
	}

	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("table listener stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("realtime relay stopped", zap.Error(err))
		}
	}()
	go registry.Run(ctx, cfg.Chat.JanitorInterval)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())
	registerRoutes(r, cfg, h, service.NewAuthService(logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	registry.Close()
	if err := broker.Close(); err != nil {
		logr.Warn("broker close", zap.Error(err))
	}
	logr.Info("shutdown complete")
	return nil
}

func buildHandlers(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, store *tablecache.Store, broker *realtime.Broker, metrics *service.MetricsService, validate *validator.Validate) (*handlers, *chat.Registry, error) {
	queueRepo := repository.NewHelpQueueRepository(db)
	requestRepo := repository.NewHelpRequestRepository(db)
	roleRepo := repository.NewUserRoleRepository(db)
	moderationRepo := repository.NewModerationRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr.Named("cache")), metrics, cfg.Calendar.CacheTTL, logr.Named("cache"), redisClient != nil)
	invalidations := service.NewInvalidationService(repository.NewInvalidationRepository(db), logr.Named("invalidation"))
	access := service.NewAccessService(roleRepo, moderationRepo, requestRepo, logr.Named("access"))

	var notifier service.HelpRequestNotifier
	if cfg.Discord.Enabled {
		discord, err := service.NewDiscordNotifier(cfg.Discord.BotToken, cfg.Discord.ChannelID, cfg.Calendar.PublicURL, logr.Named("discord"))
		if err != nil {
			return nil, nil, err
		}
		notifier = discord
	}

	queueSvc := service.NewQueueService(service.QueueServiceDeps{
		Queues:        queueRepo,
		Requests:      requestRepo,
		Assignments:   repository.NewAssignmentRepository(db),
		Access:        access,
		Store:         store,
		Publisher:     broker,
		Invalidations: invalidations,
		Notifier:      notifier,
		Metrics:       metrics,
		Validator:     validate,
		Logger:        logr.Named("queue"),
	})

	registry := chat.NewRegistry(chat.RegistryConfig{
		Broker:      broker,
		Store:       repository.NewMessageRepository(db),
		Feed:        store.Messages,
		Observer:    metrics,
		IdleTimeout: cfg.Chat.IdleTimeout,
		Logger:      logr.Named("chat"),
	})
	chatSvc := service.NewChatService(registry, access, queueRepo, requestRepo, validate, logr.Named("chat"))

	feedKey, err := storage.DeriveKey(cfg.Calendar.FeedSecret, "calendar-feed")
	if err != nil {
		return nil, nil, fmt.Errorf("calendar feed key: %w", err)
	}
	calendarSvc := service.NewCalendarService(
		repository.NewCalendarRepository(db),
		access,
		cacheSvc,
		storage.NewSignedURLSigner(feedKey, cfg.Calendar.FeedTTL),
		invalidations,
		service.CalendarServiceConfig{PublicURL: cfg.Calendar.PublicURL, CacheTTL: cfg.Calendar.CacheTTL},
		validate,
		logr.Named("calendar"),
	)

	var prefStore service.PreferenceStore
	if redisClient != nil {
		prefStore = repository.NewPreferenceRepository(redisClient, 0)
	}

	tokenSvc := service.NewMCPTokenService(repository.NewAPITokenRepository(db), access, cfg.MCP.Secret, cfg.MCP.Issuer, metrics, validate, logr.Named("mcp"))
	gateway := realtime.NewGateway(broker, access, store.Messages, realtime.GatewayConfig{
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		Logger:          logr.Named("gateway"),
	})

	return &handlers{
		queue:       handler.NewQueueHandler(queueSvc),
		requests:    handler.NewHelpRequestHandler(queueSvc),
		chat:        handler.NewChatHandler(chatSvc),
		moderation:  handler.NewModerationHandler(service.NewModerationService(moderationRepo, access, validate, logr.Named("moderation"))),
		export:      handler.NewExportHandler(service.NewExportService(requestRepo, queueRepo, access, logr.Named("export"))),
		calendar:    handler.NewCalendarHandler(calendarSvc),
		prefs:       handler.NewPreferenceHandler(service.NewPreferenceService(prefStore, logr.Named("preferences"))),
		realtime:    handler.NewRealtimeHandler(gateway),
		mcp:         handler.NewMCPTokenHandler(tokenSvc, queueSvc),
		metrics:     handler.NewMetricsHandler(metrics, db, store),
		mcpVerifier: tokenSvc,
	}, registry, nil
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h *handlers, auth middleware.TokenValidator) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	r.GET("/calendar/feed.ics", h.calendar.SignedFeed)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/realtime", middleware.RealtimeJWT(auth), h.realtime.Connect)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))
	secured.GET("/system/metrics", h.metrics.System)

	classes := secured.Group("/classes/:class_id")
	classes.GET("/queues/:queue_id", h.queue.View)
	classes.POST("/queues/:queue_id/requests", h.requests.Create)
	classes.GET("/queues/:queue_id/chat", h.chat.QueueMessages)
	classes.POST("/queues/:queue_id/chat", h.chat.PostQueueMessage)
	classes.POST("/queues/:queue_id/assignments/start", h.queue.StartWorking)
	classes.POST("/queues/:queue_id/assignments/stop", h.queue.StopWorking)
	classes.POST("/requests/:request_id/close", h.requests.Close)
	classes.POST("/requests/:request_id/assign", h.requests.Assign)
	classes.POST("/requests/:request_id/resolve", h.requests.Resolve)
	classes.POST("/requests/:request_id/end-meeting", h.requests.EndMeeting)
	classes.GET("/requests/:request_id/messages", h.chat.RequestMessages)
	classes.POST("/requests/:request_id/messages", h.chat.PostRequestMessage)
	classes.GET("/moderation", h.moderation.List)
	classes.POST("/moderation", h.moderation.Create)
	classes.GET("/help-requests/export", h.export.HelpRequests)
	classes.GET("/calendar.ics", h.calendar.Feed)
	classes.GET("/calendar/feed-url", h.calendar.FeedURL)
	classes.POST("/calendar/events", h.calendar.CreateEvent)

	prefs := secured.Group("/me/preferences")
	prefs.GET("/:key", h.prefs.Get)
	prefs.PUT("/:key", h.prefs.Put)
	prefs.DELETE("/:key", h.prefs.Delete)

	tokens := r.Group("/api/mcp-tokens", middleware.JWT(auth))
	tokens.GET("", h.mcp.List)
	tokens.POST("", h.mcp.Create)
	tokens.DELETE("/:id", h.mcp.Revoke)

	mcp := r.Group("/api/mcp", middleware.MCPToken(h.mcpVerifier, models.ScopeMCPRead))
	mcp.GET("/classes/:class_id/help-requests", middleware.RequireScopes(models.ScopeMCPRead), h.mcp.HelpRequests)
}
