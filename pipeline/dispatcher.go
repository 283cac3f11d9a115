package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DispatcherConfig 配置检索调度器。
type DispatcherConfig struct {
	// 低于此有效字符数的结果按失败处理
	MinContentChars int `json:"min_content_chars" yaml:"min_content_chars"`
	// 单次检索调用超时
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultDispatcherConfig 返回默认配置。
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MinContentChars: 50,
		Timeout:         60 * time.Second,
	}
}

// Dispatcher 按分析结果选定的模式调用外部检索能力，归一化结果并
// 记录耗时。每个请求恰好一次检索调用，不做内部重试——重试属于
// 检索能力自身的客户端。
type Dispatcher struct {
	config    DispatcherConfig
	retriever Retriever
	logger    *zap.Logger
}

// NewDispatcher 创建检索调度器。
func NewDispatcher(config DispatcherConfig, retriever Retriever, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinContentChars <= 0 {
		config.MinContentChars = 50
	}
	return &Dispatcher{
		config:    config,
		retriever: retriever,
		logger:    logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch 执行一次检索。任何错误或过短的结果都记录为
// succeeded=false，不向上抛出。
func (d *Dispatcher) Dispatch(ctx context.Context, analysis QueryAnalysis) RetrievalResult {
	start := time.Now()

	retrieveCtx := ctx
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		retrieveCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	content, succeeded, err := d.retriever.Retrieve(retrieveCtx, analysis.RewrittenQuery, analysis.Mode)
	latency := time.Since(start)

	result := RetrievalResult{
		Mode:    analysis.Mode,
		Latency: latency,
	}

	if err != nil {
		d.logger.Warn("retrieval failed",
			zap.String("mode", string(analysis.Mode)),
			zap.Duration("latency", latency),
			zap.Error(err))
		result.RawError = err.Error()
		return result
	}

	trimmed := strings.TrimSpace(content)
	if !succeeded || meaningfulLen(trimmed) < d.config.MinContentChars {
		d.logger.Warn("retrieval returned degenerate result",
			zap.String("mode", string(analysis.Mode)),
			zap.Int("content_len", len(trimmed)),
			zap.Duration("latency", latency))
		result.Content = trimmed
		result.RawError = "retrieval content below minimum length"
		if !succeeded {
			result.RawError = "retrieval reported failure"
		}
		return result
	}

	result.Content = trimmed
	result.Succeeded = true

	d.logger.Info("retrieval completed",
		zap.String("mode", string(analysis.Mode)),
		zap.Int("content_len", len(trimmed)),
		zap.Duration("latency", latency))

	return result
}

// meaningfulLen 统计去除空白后的字符数。
func meaningfulLen(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			n++
		}
	}
	return n
}
