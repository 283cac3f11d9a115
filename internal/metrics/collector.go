// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 问答流水线指标
	pipelineStepDuration *prometheus.HistogramVec
	gateDecisionsTotal   *prometheus.CounterVec
	gateScore            *prometheus.HistogramVec
	answersTotal         *prometheus.CounterVec
	answerConfidence     *prometheus.HistogramVec
	answerDuration       *prometheus.HistogramVec

	// 外部依赖指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	webSearchesTotal   *prometheus.CounterVec
	webSearchDuration  *prometheus.HistogramVec
	retrievalsTotal    *prometheus.CounterVec
	retrievalDuration  *prometheus.HistogramVec
	checkpointOpsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 问答流水线指标
	c.pipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Pipeline step duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	c.gateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Total number of quality gate decisions",
		},
		[]string{"category", "supplemented"},
	)

	c.gateScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_quality_score",
			Help:      "Quality gate composite score distribution",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"category"},
	)

	c.answersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of answers produced",
		},
		[]string{"category"},
	)

	c.answerConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_confidence",
			Help:      "Answer confidence score distribution",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"category"},
	)

	c.answerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "End-to-end answer duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"category"},
	)

	// 外部依赖指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.webSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "web_searches_total",
			Help:      "Total number of web search requests",
		},
		[]string{"depth", "status"},
	)

	c.webSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "web_search_duration_seconds",
			Help:      "Web search request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"depth"},
	)

	c.retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of knowledge base retrievals",
		},
		[]string{"mode", "status"},
	)

	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Knowledge base retrieval duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	c.checkpointOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Total number of checkpoint store operations",
		},
		[]string{"operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🚦 流水线指标记录（实现 pipeline.Observer）
// =============================================================================

// ObserveStep 记录流水线单步耗时
func (c *Collector) ObserveStep(step string, elapsed time.Duration) {
	c.pipelineStepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ObserveGateDecision 记录质量闸门裁决
func (c *Collector) ObserveGateDecision(category string, score float64, needsSupplement bool) {
	c.gateDecisionsTotal.WithLabelValues(category, strconv.FormatBool(needsSupplement)).Inc()
	c.gateScore.WithLabelValues(category).Observe(score)
}

// ObserveAnswer 记录最终答案
func (c *Collector) ObserveAnswer(category string, confidence float64, elapsed time.Duration) {
	c.answersTotal.WithLabelValues(category).Inc()
	c.answerConfidence.WithLabelValues(category).Observe(confidence)
	c.answerDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🌐 外部依赖指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(model, status string, duration time.Duration) {
	c.llmRequestsTotal.WithLabelValues(model, status).Inc()
	c.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordWebSearch 记录联网搜索请求
func (c *Collector) RecordWebSearch(depth, status string, duration time.Duration) {
	c.webSearchesTotal.WithLabelValues(depth, status).Inc()
	c.webSearchDuration.WithLabelValues(depth).Observe(duration.Seconds())
}

// RecordRetrieval 记录知识库检索
func (c *Collector) RecordRetrieval(mode, status string, duration time.Duration) {
	c.retrievalsTotal.WithLabelValues(mode, status).Inc()
	c.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordCheckpointOp 记录会话存档操作
func (c *Collector) RecordCheckpointOp(operation, status string) {
	c.checkpointOpsTotal.WithLabelValues(operation, status).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
