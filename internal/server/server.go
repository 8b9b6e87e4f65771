package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bk-med/kanban/internal/cache"
	"github.com/bk-med/kanban/internal/config"
	"github.com/bk-med/kanban/internal/handlers"
	"github.com/bk-med/kanban/internal/logging"
	"github.com/bk-med/kanban/internal/middleware"
	"github.com/bk-med/kanban/internal/monitoring"
	"github.com/bk-med/kanban/internal/services"
	"github.com/bk-med/kanban/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Server owns the HTTP listener and the background machinery that runs
// alongside it. Redis is optional: without it project stats are computed on
// every request and notifications are dropped.
type Server struct {
	cfg     *config.Config
	logger  *logrus.Logger
	router  *gin.Engine
	http    *http.Server
	metrics *monitoring.Metrics

	limiter   *middleware.RateLimiter
	worker    *worker.Worker
	scheduler *worker.Scheduler

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	stop    chan struct{}
}

// New wires services, handlers and middleware. redisClient and logger may be
// nil.
func New(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	evaluator, err := services.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policy: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(),
		limiter: middleware.NewRateLimiterFrom(cfg.RateLimit),
		stop:    make(chan struct{}),
	}

	health := monitoring.NewHealthChecker()
	health.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	authz := s.metrics.InstrumentAuthorizer(evaluator)
	projectsImpl := services.NewProjectService(db, authz)
	var projects services.ProjectService = projectsImpl
	var notifier services.Notifier = services.NopNotifier{Logger: logger}
	var invalidator services.StatsInvalidator

	if redisClient != nil {
		redisCache := cache.NewRedisCacheWithClient(redisClient, cache.NewMetrics(s.metrics.Registry()), logger)
		health.Register("redis", redisCache.Health)

		cached := services.NewCachedProjectService(projectsImpl, redisCache, cfg.Redis.StatsTTL, logger)
		projects = cached
		invalidator = cached

		queue := worker.NewJobQueue(redisClient)
		notifier = worker.NewQueueNotifier(queue)

		s.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  redisClient,
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			Queues:       cfg.Worker.Queues,
			Logger:       logger,
		})
		worker.Register(s.worker, db, worker.LogMailer{Logger: logger}, logger)
		s.scheduler = worker.NewScheduler(db, queue, 0, logger)
	}

	tasksImpl := services.NewTaskService(db, authz, notifier, logger)
	if invalidator != nil {
		tasksImpl.WithStatsInvalidator(invalidator)
	}
	tasks := s.metrics.InstrumentTasks(tasksImpl)
	users := services.NewUserService(db, authz, cfg.Auth.BCryptCost)
	authService := services.NewAuthService(db, cfg.Auth)

	s.router = gin.New()
	s.router.Use(
		middleware.RequestLogger(logger),
		middleware.RecoveryWithLog(logger),
		s.metrics.Middleware(),
		cors.New(corsConfig(cfg.Server.AllowedOrigins)),
	)
	s.router.GET("/health", health.Handler())
	s.router.GET("/metrics", s.metrics.Handler())

	registerRoutes(s.router, routeSet{
		authenticate: middleware.Authenticate(authService, db),
		limiter:      s.limiter,
		auth:         handlers.NewAuthHandler(authService, services.NewRegisterService(db, cfg.Auth.BCryptCost), users),
		projects:     handlers.NewProjectHandler(projects),
		tasks:        handlers.NewTaskHandler(tasks),
		comments:     handlers.NewCommentHandler(services.NewCommentService(db, authz)),
		admin:        handlers.NewAdminHandler(users, projectsImpl, tasksImpl, tasks),
	})

	s.http = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartBackground launches the worker, the scheduler and the rate limiter
// sweep. It is a no-op after the first call.
func (s *Server) StartBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.worker != nil {
		s.worker.Start(s.cfg.Worker.Concurrency)
	}
	if s.scheduler != nil {
		go s.scheduler.Run(ctx)
	}
	if s.limiter != nil {
		go s.limiter.RunCleanup(s.stop)
	}
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	s.StartBackground()
	s.logger.WithField("addr", s.http.Addr).Info("Starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.cancel()
		if s.worker != nil {
			s.worker.Stop()
		}
		close(s.stop)
		s.started = false
	}
	return err
}
