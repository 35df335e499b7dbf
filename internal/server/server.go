package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"ugcstudio/internal/ai"
	"ugcstudio/internal/config"
	"ugcstudio/internal/handler"
	assetHandler "ugcstudio/internal/handler/asset"
	libraryHandler "ugcstudio/internal/handler/library"
	videoHandler "ugcstudio/internal/handler/video"
	"ugcstudio/internal/pkg/cache"
	"ugcstudio/internal/pkg/fal"
	"ugcstudio/internal/pkg/jwt"
	"ugcstudio/internal/pkg/kie"
	"ugcstudio/internal/pkg/metrics"
	"ugcstudio/internal/pkg/mongodb"
	"ugcstudio/internal/pkg/storage"
	"ugcstudio/internal/pkg/storagefactory"
	"ugcstudio/internal/pkg/syncso"
	genrepo "ugcstudio/internal/repository/generation"
	"ugcstudio/internal/server/middleware"
	"ugcstudio/internal/service"
	"ugcstudio/internal/service/pipeline"
)

// MemoryMongoURI mongo.uri 取该值时使用进程内存储（仅用于本地开发）
const MemoryMongoURI = "memory"

// Server HTTP 服务器
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	mongo   *mongodb.Client
	redis   *cache.RedisCache
	metrics *metrics.Metrics

	repo     genrepo.GenerationRepository
	pipeline *pipeline.Orchestrator
	scripts  videoHandler.ScriptGenerator
	storage  storage.Storage
	verifier *jwt.Verifier
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		metrics: metrics.New(),
	}

	// 生成记录是流水线唯一可信来源，MongoDB 不可用时直接失败
	if cfg.Mongo.URI == MemoryMongoURI {
		log.Warn().Msg("using in-memory generation store, records are lost on restart")
		srv.repo = genrepo.NewMemoryRepo()
	} else {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect MongoDB: %w", err)
		}
		srv.mongo = client
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mongodb.EnsureIndexes(ctx, client.Database()); err != nil {
			log.Warn().Err(err).Msg("failed to ensure indexes")
		}
		srv.repo = genrepo.NewGenerationRepo(client.Database())
	}

	// 任务视图缓存：Redis 可选，不可用时退回进程内缓存
	var taskCache pipeline.TaskCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, using in-process task cache")
		} else {
			srv.redis = rc
			taskCache = pipeline.NewRedisTaskCache(rc, cfg.Pipeline.TaskCacheTTL)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}
	if taskCache == nil {
		taskCache = pipeline.NewMemoryTaskCache(cfg.Pipeline.TaskCacheTTL)
	}

	clients, err := newClients(cfg, srv.metrics)
	if err != nil {
		srv.close()
		return nil, err
	}

	srv.pipeline = pipeline.New(srv.repo, clients, taskCache, srv.metrics, pipeline.Options{
		DefaultAspectRatio: cfg.Pipeline.DefaultAspectRatio,
		DefaultLanguage:    cfg.Pipeline.DefaultLanguage,
		DefaultDuration:    cfg.Pipeline.DefaultDuration,
		MaxDuration:        cfg.Pipeline.MaxDuration,
		StepLockTTL:        cfg.Pipeline.StepLockTTL,
		LipSyncTimeout:     cfg.Pipeline.LipSyncTimeout,
		Voices:             cfg.Providers.Sync.Voices,
	})

	// 脚本生成 (可选)
	if cfg.AI.APIKey != "" {
		gen, err := ai.NewScriptGenerator(context.Background(), &cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize script generator, continuing without it")
		} else {
			srv.scripts = gen
			log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized script generator")
		}
	}

	// 素材存储 (可选)
	if cfg.Storage.Type != "" {
		st, err := storagefactory.NewStorage(&cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Str("type", cfg.Storage.Type).Msg("failed to initialize storage, asset upload disabled")
		} else {
			srv.storage = st
		}
	}

	if cfg.Auth.JWTSecret != "" {
		srv.verifier = jwt.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	} else {
		log.Warn().Msg("auth.jwt_secret not configured, generations are anonymous and library endpoints are disabled")
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

func newClients(cfg *config.Config, m *metrics.Metrics) (pipeline.Clients, error) {
	scene, err := kie.NewClient(&cfg.Providers.Kie, m)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("init scene client: %w", err)
	}
	frame, err := fal.NewFrameExtractor(&cfg.Providers.Fal, m)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("init frame client: %w", err)
	}
	composer, err := fal.NewComposer(&cfg.Providers.Fal, m)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("init compose client: %w", err)
	}
	lipSync, err := syncso.NewClient(&cfg.Providers.Sync, m)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("init lip-sync client: %w", err)
	}
	return pipeline.Clients{
		Scene:   scene,
		Frame:   frame,
		LipSync: lipSync,
		Compose: composer,
	}, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS(s.cfg.Server.AllowedOrigins...))

	// 健康检查
	deps := map[string]handler.Pinger{}
	if s.mongo != nil {
		deps["mongo"] = s.mongo
	}
	if s.redis != nil {
		deps["redis"] = s.redis
	}
	healthHandler := handler.NewHealthHandler(deps)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 本地存储的静态访问
	if s.storage != nil && s.storage.Type() == string(storage.StorageTypeLocal) && s.cfg.Storage.Local != nil {
		s.engine.Static("/uploads", s.cfg.Storage.Local.BasePath)
	}

	var optionalAuth gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if s.verifier != nil {
		optionalAuth = middleware.OptionalAuth(s.verifier)
	}

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		videoHandler.NewHandler(s.pipeline, s.scripts).Register(v1, optionalAuth)

		if s.verifier != nil {
			auth := middleware.Auth(s.verifier)
			libraryHandler.NewHandler(service.NewLibraryService(s.repo)).Register(v1, auth)
			if s.storage != nil {
				assetHandler.NewHandler(service.NewAssetService(s.storage)).Register(v1, auth)
			}
		}
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.close()
		return err
	case err := <-errCh:
		s.close()
		return err
	}
}

func (s *Server) close() {
	if s.mongo != nil {
		if err := s.mongo.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
