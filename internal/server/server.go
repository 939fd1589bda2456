package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fable/internal/config"
	"fable/internal/handler"
	narrationHandler "fable/internal/handler/narration"
	"fable/internal/pkg/cache"
	"fable/internal/pkg/mongodb"
	"fable/internal/pkg/speech"
	"fable/internal/pkg/storage"
	"fable/internal/pkg/storagefactory"
	"fable/internal/pkg/volc"
	narrationRepo "fable/internal/repository/narration"
	"fable/internal/server/middleware"
	"fable/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
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

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB (可选)
	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, continuing without it")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	// 初始化 Redis (可选)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	// 设置路由
	if err := srv.setupRoutes(); err != nil {
		return nil, err
	}

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() error {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// API v1
	v1 := s.engine.Group("/api/v1")

	if s.mongo == nil {
		log.Warn().Msg("MongoDB not configured, narration endpoints disabled")
		return nil
	}
	if s.cfg.TTS.AccessToken == "" {
		log.Warn().Msg("TTS access token not configured, narration endpoints disabled")
		return nil
	}

	narrationSvc, err := s.buildNarrationService()
	if err != nil {
		return err
	}
	narrationHdl := narrationHandler.NewHandler(narrationSvc)

	v1.POST("/narrations", narrationHdl.Synthesize)
	v1.GET("/narrations/:job_id", narrationHdl.GetJob)
	v1.GET("/narrations/:job_id/timeline", narrationHdl.GetTimeline)
	v1.GET("/books/:book_id/narrations", narrationHdl.ListJobs)
	v1.GET("/books/:book_id/pages/:page_id/narration", narrationHdl.GetPageNarration)

	return nil
}

// buildNarrationService 组装旁白合成服务
// TTS 供应商按配置选择 HTTP（带字符时间戳）或流式（走转写修正）；
// ASR 配置了令牌才注入转写供应商
func (s *Server) buildNarrationService() (*service.NarrationService, error) {
	var synthesizer speech.SynthesisProvider
	var err error
	switch s.cfg.Narration.TTSMode {
	case "stream":
		synthesizer, err = volc.NewStreamClient(s.cfg.TTS)
	default:
		synthesizer, err = volc.NewClient(s.cfg.TTS)
	}
	if err != nil {
		return nil, err
	}

	var opts []speech.Option
	if s.cfg.ASR.AccessToken != "" {
		transcriber, err := volc.NewASRClient(s.cfg.ASR)
		if err != nil {
			return nil, err
		}
		opts = append(opts, speech.WithTranscriber(transcriber))
		log.Info().Msg("transcription refinement enabled")
	}

	engine, err := speech.NewEngine(s.cfg.Narration.Engine, synthesizer, opts...)
	if err != nil {
		return nil, err
	}

	// 音频制品存储 (可选)
	var store storage.Storage
	if s.cfg.Storage.Type != "" {
		store, err = storagefactory.NewStorage(context.Background(), &s.cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize storage, audio artifacts will not be persisted")
			store = nil
		} else {
			log.Info().Str("type", s.cfg.Storage.Type).Msg("storage initialized")
		}
	}

	jobRepo := narrationRepo.NewJobRepo(s.mongo.Database())
	return service.NewNarrationService(engine, jobRepo, s.redis, store), nil
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

		// 关闭连接
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

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
