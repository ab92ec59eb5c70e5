package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/assistant"
	appAuth "github.com/yigit/educhat/internal/app/auth"
	appControllers "github.com/yigit/educhat/internal/app/controllers"
	"github.com/yigit/educhat/internal/app/models"
	appRepos "github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/app/repositories/docstore"
	appRoutes "github.com/yigit/educhat/internal/app/routes"
	appServices "github.com/yigit/educhat/internal/app/services"
	"github.com/yigit/educhat/internal/config"
	"github.com/yigit/educhat/internal/db"
	appMiddleware "github.com/yigit/educhat/internal/middleware"
	pkgAuth "github.com/yigit/educhat/internal/pkg/auth"
	"github.com/yigit/educhat/internal/pkg/filestorage"
	"github.com/yigit/educhat/internal/pkg/logger"
	"github.com/yigit/educhat/internal/pkg/metrics"
	"github.com/yigit/educhat/internal/pkg/scheduler"
	"github.com/yigit/educhat/internal/pkg/websocket"
	"github.com/yigit/educhat/internal/seed"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	Store       appRepos.Store
	FileStorage filestorage.FileStorage
	Hub         *websocket.Hub
	Dispatcher  *assistant.Dispatcher
	Repair      *scheduler.Scheduler

	AuthzService      *appAuth.AuthorizationService
	JWTService        *pkgAuth.JWTService
	AuthService       *appServices.AuthService
	ChatService       appServices.ChatService
	MessageService    appServices.MessageService
	AttachmentService appServices.AttachmentService
	ReactionService   appServices.ReactionService
	ForwardService    appServices.ForwardService
	ThreadService     appServices.ThreadService

	AuthController      *appControllers.AuthController
	UserController      *appControllers.UserController
	ChatController      *appControllers.ChatController
	MessageController   *appControllers.MessageController
	UploadController    *appControllers.UploadController
	AssistantController *appControllers.AssistantController
	WebSocketHandler    *websocket.Handler

	AuthMiddleware   *appMiddleware.AuthMiddleware
	AssistantLimiter *appMiddleware.RateLimiter

	Logger  zerolog.Logger
	closers []func() error
}

// Close releases the store and the transcript connection
func (d *Dependencies) Close() error {
	var firstErr error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger(configPath string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	lgr := logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: strings.ToLower(cfg.Logging.Format) == "text",
	})

	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupStore opens the configured persistence backend
func SetupStore(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (appRepos.Store, func() error, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		lgr.Info().Msg("Establishing database connection...")
		database, err := db.NewPostgresDB(ctx, cfg)
		if err != nil {
			lgr.Error().Err(err).Msg("Failed to connect to database")
			return nil, nil, err
		}
		lgr.Info().Msg("Running database migrations...")
		if err := database.Migrate(ctx, cfg.Database.MigrationsDir, lgr); err != nil {
			database.Close()
			lgr.Error().Err(err).Msg("Database migration error")
			return nil, nil, err
		}
		lgr.Info().Msg("Database migrations successfully applied.")
		return appRepos.NewPostgresStore(database.Pool), func() error {
			database.Close()
			return nil
		}, nil
	default:
		store, err := docstore.Open(cfg.Database.DocumentPath, logger.ForComponent("docstore"))
		if err != nil {
			lgr.Error().Err(err).Str("path", cfg.Database.DocumentPath).Msg("Failed to open document store")
			return nil, nil, err
		}
		lgr.Info().Str("path", cfg.Database.DocumentPath).Msg("Document store opened")
		return store, store.Close, nil
	}
}

// SetupFileStorage builds the attachment backend
func SetupFileStorage(cfg *config.Config) filestorage.FileStorage {
	if cfg.Storage.Driver == config.StorageS3 {
		return filestorage.NewS3Storage(filestorage.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			PresignTTL:      config.ParseDuration(cfg.Storage.S3.PresignTTL, 15*time.Minute),
		})
	}
	return filestorage.NewLocalStorage(cfg.Storage.Path, cfg.PublicBaseURL())
}

// SetupTranscript picks the redis transcript when enabled, memory otherwise
func SetupTranscript(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (assistant.Transcript, func() error) {
	limit := cfg.Assistant.HistorySize
	if !cfg.Redis.Enabled {
		return assistant.NewMemoryTranscript(limit), func() error { return nil }
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		lgr.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, keeping assistant transcripts in memory")
		_ = rdb.Close()
		return assistant.NewMemoryTranscript(limit), func() error { return nil }
	}

	lgr.Info().Str("addr", cfg.Redis.Addr).Msg("Assistant transcripts stored in redis")
	ttl := config.ParseDuration(cfg.Redis.TranscriptTTL, 24*time.Hour)
	return assistant.NewRedisTranscript(rdb, limit, ttl), rdb.Close
}

// BuildDependencies initializes application repositories, services, and controllers.
func BuildDependencies(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr}

	store, closeStore, err := SetupStore(ctx, cfg, lgr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup store: %w", err)
	}
	deps.Store = store
	deps.closers = append(deps.closers, closeStore)

	if err := seed.CreateDefaultData(ctx, store, seed.BotUser{ID: cfg.Assistant.BotUserID}, lgr); err != nil {
		// The assistant still answers without a directory entry
		lgr.Error().Err(err).Msg("Failed to create default data, proceeding anyway...")
	}

	deps.FileStorage = SetupFileStorage(cfg)
	deps.Hub = websocket.NewHub(logger.ForComponent("websocket"))

	deps.AuthzService = appAuth.NewAuthorizationService(store, store, cfg.Assistant.ChatID, cfg.Assistant.BotUserID)
	deps.JWTService = pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:      cfg.JWT.Secret,
		AccessTokenExp: config.ParseDuration(cfg.JWT.AccessTokenExpiration, 24*time.Hour),
		TokenIssuer:    cfg.JWT.Issuer,
	})

	ids := models.NewIDGenerator()
	svcLog := logger.ForComponent("services")
	deps.AuthService = appServices.NewAuthService(store, store, deps.AuthzService, deps.JWTService, svcLog)
	deps.ChatService = appServices.NewChatService(store, store, deps.AuthzService, svcLog)
	deps.MessageService = appServices.NewMessageService(store, deps.AuthzService, ids, deps.Hub, svcLog)
	deps.AttachmentService = appServices.NewAttachmentService(deps.FileStorage, store, svcLog)
	deps.ReactionService = appServices.NewReactionService(store, deps.AuthzService, deps.Hub, svcLog)
	deps.ForwardService = appServices.NewForwardService(store, deps.AuthzService, ids, deps.Hub, svcLog)
	deps.ThreadService = appServices.NewThreadService(deps.MessageService)

	transcript, closeTranscript := SetupTranscript(ctx, cfg, lgr)
	deps.closers = append(deps.closers, closeTranscript)

	httpClient := assistant.NewHTTPClient()
	generator := assistant.NewGenerator(
		assistant.DefaultIntents(cfg.Assistant.DefaultCity),
		assistant.NewHTTPLookups(httpClient, assistant.LookupConfig{
			WeatherAPIKey:   cfg.Assistant.WeatherAPIKey,
			WeatherBaseURL:  cfg.Assistant.WeatherBaseURL,
			NewsAPIKey:      cfg.Assistant.NewsAPIKey,
			NewsBaseURL:     cfg.Assistant.NewsBaseURL,
			ExchangeBaseURL: cfg.Assistant.ExchangeBaseURL,
		}, logger.ForComponent("lookups")),
		assistant.NewOpenAIClient(httpClient, assistant.OpenAIConfig{
			APIKey:      cfg.Assistant.OpenAIAPIKey,
			BaseURL:     cfg.Assistant.OpenAIBaseURL,
			Model:       cfg.Assistant.Model,
			MaxTokens:   cfg.Assistant.MaxTokens,
			Temperature: cfg.Assistant.Temperature,
		}),
		cfg.Assistant.HistorySize,
	)
	if cfg.Assistant.OpenAIAPIKey == "" {
		lgr.Warn().Msg("No OpenAI API key configured, assistant turns will fail")
	}

	deps.Dispatcher = assistant.NewDispatcher(assistant.DispatcherConfig{
		AssistantChatID: cfg.Assistant.ChatID,
		BotUserID:       cfg.Assistant.BotUserID,
		ReplyDelay:      config.ParseDuration(cfg.Assistant.ReplyDelay, time.Second),
	}, generator, transcript, deps.MessageService, logger.ForComponent("assistant"))
	deps.Dispatcher.OnStateChange(func(ev assistant.TurnEvent) {
		metrics.AssistantTurns.WithLabelValues(string(ev.State)).Inc()
		deps.Hub.BroadcastToChat(&websocket.Event{
			Type:      websocket.EventAssistantState,
			ChatID:    ev.ChatID,
			UserID:    ev.UserID,
			MessageID: ev.MessageID,
			State:     string(ev.State),
			Timestamp: time.Now(),
			Room:      deps.AuthzService.EventRoom(ev.ChatID, ev.UserID),
		})
	})
	deps.MessageService.SetAssistant(deps.Dispatcher)

	if cfg.Storage.RepairCron != "" {
		deps.Repair, err = scheduler.New("attachment-repair", cfg.Storage.RepairCron, func(ctx context.Context) error {
			_, err := deps.AttachmentService.RepairMissing(ctx)
			return err
		}, lgr)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("failed to setup repair scheduler: %w", err)
		}
	}

	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.JWTService)
	deps.AssistantLimiter = appMiddleware.NewRateLimiter(cfg.Assistant.RateLimitRPS, cfg.Assistant.RateLimitBurst)

	deps.AuthController = appControllers.NewAuthController(deps.AuthService, lgr)
	deps.UserController = appControllers.NewUserController(deps.AuthService)
	deps.ChatController = appControllers.NewChatController(deps.ChatService)
	deps.MessageController = appControllers.NewMessageController(
		deps.MessageService,
		deps.AttachmentService,
		deps.ReactionService,
		deps.ForwardService,
		deps.ThreadService,
		lgr,
	)
	deps.UploadController = appControllers.NewUploadController(deps.AttachmentService)
	deps.AssistantController = appControllers.NewAssistantController(generator, logger.ForComponent("assistant"))
	deps.WebSocketHandler = websocket.NewHandler(
		deps.Hub,
		deps.AuthzService,
		websocket.NewInboundHandler(deps.MessageService, deps.Hub, logger.ForComponent("websocket")),
		appMiddleware.HandleAPIError,
		logger.ForComponent("websocket"),
	)

	return deps, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if strings.ToLower(cfg.Server.Mode) == "production" {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	router := gin.New()
	router.Use(gin.Recovery(), appMiddleware.RequestLogger(logger.ForComponent("http")))

	appRoutes.SetupSwagger(router)
	appRoutes.SetupRouter(router,
		deps.AuthController,
		deps.UserController,
		deps.ChatController,
		deps.MessageController,
		deps.UploadController,
		deps.AssistantController,
		deps.WebSocketHandler,
		deps.AuthMiddleware,
		deps.AssistantLimiter,
	)

	router.GET("/metrics", metrics.Handler())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "status": "success"})
	})

	return router
}
