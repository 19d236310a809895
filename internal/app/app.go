package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz_analytics_service/internal/config"
	"quiz_analytics_service/internal/consumer"
	"quiz_analytics_service/internal/controller"
	"quiz_analytics_service/internal/repository"
	"quiz_analytics_service/internal/service"
	"quiz_analytics_service/pkg/broker"
	"quiz_analytics_service/pkg/configwatcher"
	"quiz_analytics_service/pkg/database"
	"quiz_analytics_service/pkg/logger"
	"quiz_analytics_service/pkg/monitoring"
	"quiz_analytics_service/pkg/security"
	"quiz_analytics_service/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	Broker   *broker.Conn
	consumer *broker.Consumer
}

type repositories struct {
	attempt *repository.AttemptRepository
}

type services struct {
	analytics *service.AnalyticsService
}

type controllers struct {
	analytics *controller.AnalyticsController
	health    *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		attempt: repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, conn *broker.Conn, rdb *redis.Client) (*services, error) {
	lessons, err := broker.NewRPCClient(conn, cfg.Broker.LessonsQueue, cfg.Broker.RPCTimeout)
	if err != nil {
		return nil, err
	}
	users, err := broker.NewRPCClient(conn, cfg.Broker.UsersQueue, cfg.Broker.RPCTimeout)
	if err != nil {
		return nil, err
	}
	bus, err := broker.NewPublisher(conn, cfg.Broker.EventQueue)
	if err != nil {
		return nil, err
	}

	return &services{
		analytics: service.NewAnalyticsService(repos.attempt, lessons, users, bus, rdb, cfg),
	}, nil
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		analytics: controller.NewAnalyticsController(s.analytics),
		health:    controller.NewHealthController(a.DB, a.Redis, a.Broker),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	conn, err := broker.Connect(cfg.Broker.URL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to broker", zap.Error(err))
	}
	app.Broker = conn

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, conn, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	controllers := app.initControllers(services)

	eventConsumer, err := broker.NewConsumer(conn, cfg.Broker.EventQueue, cfg.Broker.PrefetchCount)
	if err != nil {
		logger.Log.Fatal("Failed to initialize event consumer", zap.Error(err))
	}
	consumer.NewAnalyticsConsumer(services.analytics).Register(eventConsumer)
	app.consumer = eventConsumer

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("quiz-analytics", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	// hot-reload the scoring threshold; everything else needs a restart
	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		cfg.Scoring = newCfg.Scoring
		logger.Log.Info("Reloaded scoring config",
			zap.Int("passingThreshold", cfg.PassingThreshold()))
	})

	return app
}

func (a *App) Run() {
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go func() {
		if err := a.consumer.Start(consumerCtx); err != nil {
			logger.Log.Error("Event consumer stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if err := a.Broker.Close(); err != nil {
		logger.Log.Error("Failed to close broker connection", zap.Error(err))
	}
	if err := a.Redis.Close(); err != nil {
		logger.Log.Error("Failed to close redis client", zap.Error(err))
	}

	log.Println("Server exiting")
}
