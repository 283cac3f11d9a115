package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BaSui01/answerflow/api/handlers"
	"github.com/BaSui01/answerflow/checkpoint"
	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/internal/metrics"
	"github.com/BaSui01/answerflow/internal/server"
	"github.com/BaSui01/answerflow/pipeline"
	"github.com/BaSui01/answerflow/providers/lightrag"
	"github.com/BaSui01/answerflow/providers/openaicompat"
	"github.com/BaSui01/answerflow/providers/tavily"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AnswerFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心组件
	pipe  *pipeline.Pipeline
	store checkpoint.Store

	// Handlers
	healthHandler  *handlers.HealthHandler
	askHandler     *handlers.AskHandler
	sessionHandler *handlers.SessionHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 配置热重载
	reloader *config.Reloader

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("answerflow", s.logger)

	// 2. 初始化会话存档
	if err := s.initCheckpointStore(); err != nil {
		return fmt.Errorf("failed to init checkpoint store: %w", err)
	}

	// 3. 初始化问答管线
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 4. 初始化 Handlers
	s.initHandlers()

	// 5. 初始化配置热重载
	if err := s.initReloader(); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	// 6. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initCheckpointStore 按配置选择会话存档后端
func (s *Server) initCheckpointStore() error {
	switch s.cfg.Checkpoint.Backend {
	case "redis":
		store, err := checkpoint.NewRedisStore(checkpoint.RedisStoreConfig{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
			KeyPrefix:    s.cfg.Checkpoint.KeyPrefix,
			TTL:          s.cfg.Checkpoint.TTL,
			MaxTurns:     s.cfg.Checkpoint.MaxTurns,
		})
		if err != nil {
			return err
		}
		s.store = store
		s.logger.Info("Checkpoint store initialized",
			zap.String("backend", "redis"),
			zap.String("addr", s.cfg.Redis.Addr),
		)
	case "none":
		s.logger.Info("Checkpoint store disabled")
	default:
		// memory 或空值
		s.store = checkpoint.NewMemoryStore(s.cfg.Checkpoint.MaxTurns)
		s.logger.Info("Checkpoint store initialized", zap.String("backend", "memory"))
	}
	return nil
}

// initPipeline 构建问答管线及其外部能力
func (s *Server) initPipeline() error {
	pipe, err := s.buildPipeline(s.cfg)
	if err != nil {
		return err
	}

	s.pipe = pipe
	s.logger.Info("Pipeline initialized",
		zap.String("llm_model", s.cfg.LLM.Model),
		zap.String("lightrag_url", s.cfg.LightRAG.BaseURL),
	)
	return nil
}

// buildPipeline 按给定配置构建管线。初始化和配置热重载共用
func (s *Server) buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	completer := openaicompat.New(openaicompat.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Recorder:   s.metricsCollector,
	}, s.logger)

	retriever := lightrag.New(lightrag.Config{
		BaseURL:  cfg.LightRAG.BaseURL,
		APIKey:   cfg.LightRAG.APIKey,
		Timeout:  cfg.LightRAG.Timeout,
		Recorder: s.metricsCollector,
	}, s.logger)

	// Tavily 未配置 API Key 时禁用网络补充，管线内部降级
	var searcher pipeline.WebSearcher
	if cfg.Tavily.APIKey != "" {
		searcher = tavily.New(tavily.Config{
			BaseURL:      cfg.Tavily.BaseURL,
			APIKey:       cfg.Tavily.APIKey,
			Timeout:      cfg.Tavily.Timeout,
			RateLimitRPS: cfg.Tavily.RateLimitRPS,
			Recorder:     s.metricsCollector,
		}, s.logger)
		s.logger.Info("Web supplement enabled")
	} else {
		s.logger.Info("Tavily API key not configured, web supplement disabled")
	}

	opts := []pipeline.Option{pipeline.WithObserver(s.metricsCollector)}

	// 质量门优先使用 tiktoken 计数，编码数据不可用时退回字符估算
	if counter, err := pipeline.NewTiktokenCounter(cfg.LLM.Model, s.logger); err != nil {
		s.logger.Warn("Tiktoken encoding unavailable, falling back to estimator",
			zap.String("model", cfg.LLM.Model),
			zap.Error(err),
		)
	} else {
		opts = append(opts, pipeline.WithTokenizer(counter))
	}

	return pipeline.New(
		cfg.Pipeline,
		retriever,
		completer,
		searcher,
		s.logger,
		opts...,
	)
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.store != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("checkpoint", s.store.Ping))
	}

	s.askHandler = handlers.NewAskHandler(s.pipe, s.store, s.logger)
	s.askHandler.SetMetrics(s.metricsCollector)
	if s.store != nil {
		s.sessionHandler = handlers.NewSessionHandler(s.store, s.logger)
	}

	s.logger.Info("Handlers initialized")
}

// initReloader 初始化配置热重载（仅在指定了配置文件时启用）
func (s *Server) initReloader() error {
	if s.configPath == "" {
		return nil
	}

	loader := config.NewLoader().WithConfigPath(s.configPath)
	reloader, err := config.NewReloader(loader, s.cfg, config.WithReloaderLogger(s.logger))
	if err != nil {
		return err
	}

	reloader.OnReload(func(oldCfg, newCfg *config.Config) {
		s.cfg = newCfg

		// 管线按新配置重建并原子替换；服务器监听与中间件参数需重启生效
		pipe, err := s.buildPipeline(newCfg)
		if err != nil {
			s.logger.Error("Pipeline rebuild after reload failed, keeping previous pipeline", zap.Error(err))
			return
		}
		s.pipe = pipe
		s.askHandler.SetPipeline(pipe)
		s.logger.Info("Configuration reloaded, pipeline rebuilt")
	})

	if err := reloader.Start(context.Background()); err != nil {
		return err
	}

	s.reloader = reloader
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 问答 API 路由
	mux.HandleFunc("/v1/ask", s.askHandler.HandleAsk)
	mux.HandleFunc("/v1/ask/stream", s.askHandler.HandleAskStream)
	mux.HandleFunc("/v1/ask/batch", s.askHandler.HandleAskBatch)

	// 会话 API 路由
	if s.sessionHandler != nil {
		mux.HandleFunc("/v1/sessions/", s.sessionHandler.HandleSession)
	}

	// 构建中间件链
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 停止配置热重载
	if s.reloader != nil {
		s.reloader.Stop()
	}

	// 3. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭会话存档
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Checkpoint store close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
