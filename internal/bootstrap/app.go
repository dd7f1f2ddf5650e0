package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	httpHandler "snaplive/internal/handler/http"
	wsHandler "snaplive/internal/handler/websocket"
	"snaplive/internal/hub"
	"snaplive/internal/imaging"
	gormpersistence "snaplive/internal/infra/persistence/gorm"
	"snaplive/internal/infra/setup"
	"snaplive/internal/infra/storage"
	"snaplive/internal/middleware"
	"snaplive/internal/moderation"
	"snaplive/internal/service"
	"snaplive/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client // nil without REDIS_ADDR
	AsynqClient *asynq.Client // nil without REDIS_ADDR
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	Moderation  *moderation.Filter
	HttpServer  *http.Server
}

// NewApp 加载配置并创建应用的所有组件
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig 根据 cfg 初始化应用的所有组件
func NewAppWithConfig(cfg *Config) (*App, error) {
	// 1. 校验配置并初始化 Logger
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := NewLogger(cfg)
	log.Info("Configuration loaded successfully")

	// 2. 初始化基础设施 (DB, Redis, Asynq, 存储)
	db, err := setup.InitDB(cfg.DBParams())
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.WithField("driver", cfg.DB.Driver).Info("Database initialized and migrated")

	var (
		redisClient  *redis.Client
		asynqClient  *asynq.Client
		workerServer *worker.WorkerServer
		redisOpt     asynq.RedisClientOpt
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = setup.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		redisOpt = asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		asynqClient = asynq.NewClient(redisOpt)
		log.Info("Redis and Asynq clients initialized")
	} else {
		log.Warn("REDIS_ADDR not set: rate limiting and background asset cleanup are disabled")
	}

	store, err := newAssetStore(cfg, log)
	if err != nil {
		return nil, err
	}

	// 3. 图片处理组件，审核预处理和转码共用同一组 CPU 槽位
	cpuWorkers := cfg.Upload.CPUWorkers
	if cpuWorkers <= 0 {
		cpuWorkers = int64(runtime.NumCPU())
	}
	cpu := semaphore.NewWeighted(cpuWorkers)
	filter := newModerationFilter(cfg, cpu, log)
	transcoder := imaging.NewTranscoder(imaging.DefaultOptions())
	hubInstance := hub.NewHub()

	// 4. 初始化 Repositories 和 Services
	eventRepo := gormpersistence.NewGormEventRepository(db)
	photoRepo := gormpersistence.NewGormPhotoRepository(db)

	loc, _ := time.LoadLocation(cfg.Upload.TimeZone) // 已由 Validate 检查
	uploadService := service.NewUploadService(eventRepo, photoRepo, filter, transcoder, store, hubInstance, service.UploadConfig{
		MaxFiles:    cfg.Upload.MaxFiles,
		MaxFileSize: cfg.Upload.MaxFileSize,
		GracePeriod: cfg.Upload.GracePeriod,
		CPUWorkers:  cpuWorkers,
		CPU:         cpu,
		Location:    loc,
	})
	photoService := service.NewPhotoService(eventRepo, photoRepo, store, hubInstance)

	// 有 Redis 时通过 asynq 异步删除资源，否则同步删除
	var janitor service.AssetJanitor = service.NewInlineJanitor(store)
	if asynqClient != nil {
		janitor = worker.NewAsynqJanitor(asynqClient, 5)
		workerServer = worker.NewWorkerServer(redisOpt, store, 4, log)
	}
	// 支付由独立的计费服务处理，这里不注入 verifier，即 demo 模式
	eventService := service.NewEventService(eventRepo, photoRepo, nil, janitor, store, cfg.FrontendURL)
	log.Info("Services initialized")

	// 5. 初始化 Handlers 和路由
	origins := middleware.NewOriginPolicy(cfg.AllowedOrigins(), cfg.CORS.TrustedSuffix)
	router := newRouter(cfg, log, routerDeps{
		origins:     origins,
		redis:       redisClient,
		photos:      httpHandler.NewPhotoHandler(uploadService, photoService, cfg.Upload.MaxFiles, cfg.Upload.MaxFileSize),
		events:      httpHandler.NewEventHandler(eventService),
		rooms:       httpHandler.NewRoomHandler(hubInstance),
		ws:          wsHandler.NewWebSocketHandler(hubInstance, origins),
		hub:         hubInstance,
		uploadsPath: cfg.Upload.Dir,
	})

	// 6. 组装 App 对象
	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		Moderation:  filter,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewLogger builds the process logger: JSON in production, colored text
// otherwise.
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	// Components log through the package-level logger.
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
	return log
}

func newAssetStore(cfg *Config, log *logrus.Logger) (*storage.FallbackStore, error) {
	local, err := storage.NewLocalBackend(cfg.Upload.Dir, cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init local storage: %w", err)
	}

	var primary storage.Backend
	if cfg.S3.Endpoint != "" {
		s3, err := storage.NewMinioBackend(storage.MinioParams{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init object storage: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
		err = s3.EnsureBucket(ctx)
		cancel()
		if err != nil {
			// Uploads still work through the local fallback.
			log.WithError(err).Warn("Object storage bucket check failed")
		}
		primary = s3
		log.WithField("bucket", cfg.S3.Bucket).Info("Object storage enabled")
	} else {
		log.Info("S3_ENDPOINT not set: photos are stored on local disk")
	}
	return storage.NewFallbackStore(primary, local, cfg.Storage.Timeout), nil
}

func newModerationFilter(cfg *Config, cpu *semaphore.Weighted, log *logrus.Logger) *moderation.Filter {
	mc := moderation.DefaultConfig()
	mc.CPU = cpu
	mc.Enabled = cfg.Moderation.Enabled
	mc.Threshold = cfg.Moderation.Threshold
	mc.InputSize = cfg.Moderation.InputSize
	mc.Timeout = cfg.Moderation.Timeout

	var loader moderation.ModelLoader
	if mc.Enabled {
		loader = moderation.NewRemoteClassifier(cfg.Moderation.Endpoint, mc.InputSize, mc.Timeout)
		log.WithField("endpoint", cfg.Moderation.Endpoint).Info("Content moderation enabled")
	} else {
		log.Warn("MODERATION_ENABLED=false: photos are published without moderation")
	}
	return moderation.NewFilter(mc, loader)
}

type routerDeps struct {
	origins     *middleware.OriginPolicy
	redis       *redis.Client
	photos      *httpHandler.PhotoHandler
	events      *httpHandler.EventHandler
	rooms       *httpHandler.RoomHandler
	ws          *wsHandler.WebSocketHandler
	hub         *hub.Hub
	uploadsPath string
}

func newRouter(cfg *Config, log *logrus.Logger, d routerDeps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(d.origins.CORS())
	// Multipart bodies above this spill to temp files.
	router.MaxMultipartMemory = 32 << 20

	if cfg.PprofEnabled {
		pprof.Register(router)
		log.Warn("pprof endpoints enabled under /debug/pprof")
	}

	router.Static("/uploads", d.uploadsPath)
	router.GET("/health", httpHandler.Health(d.hub))
	router.GET("/ws", d.ws.HandleConnection)

	api := router.Group("/api")
	if d.redis != nil {
		api.Use(middleware.RateLimit(d.redis, cfg.Redis.KeyPrefix, cfg.RateLimit.Max, cfg.RateLimit.Window))
	}
	auth := middleware.Auth(cfg.JWTSecret)

	photos := api.Group("/photos")
	{
		photos.POST("/:eventSlug", d.photos.Upload)
		photos.GET("/:eventSlug", d.photos.List)
		photos.DELETE("/:photoId", auth, d.photos.Delete)
	}
	events := api.Group("/events")
	{
		events.POST("", auth, d.events.Create)
		events.GET("/my-events", auth, d.events.ListMine)
		events.GET("/:slug", middleware.OptionalAuth(cfg.JWTSecret), d.events.GetPublic)
		events.GET("/:slug/qr", d.events.QRCode)
		events.PUT("/:id", auth, d.events.Update)
		events.DELETE("/:id", auth, d.events.Delete)
	}
	api.GET("/rooms/:slug", d.rooms.Viewers)

	router.NoRoute(func(c *gin.Context) {
		httpHandler.ErrorResponse(c, http.StatusNotFound, "Route not found")
	})
	return router
}

// Start 启动 Worker、预加载审核模型并开始监听 HTTP
func (a *App) Start() {
	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.Log.Info("Asynq worker server routine started")
	}

	if a.Moderation.Enabled() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.Config.Moderation.Timeout)
			defer cancel()
			if err := a.Moderation.Preload(ctx); err != nil {
				a.Log.WithError(err).Warn("Moderation model preload failed, will retry on first upload")
			}
		}()
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用并释放所有资源
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// http.Server.Shutdown 不会关闭被 hijack 的 WebSocket 连接
	if a.Hub != nil {
		a.Hub.Shutdown()
	}

	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 是一个 Gin 中间件，每个请求记录一条日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
