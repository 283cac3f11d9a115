package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/BaSui01/answerflow/api"
	"github.com/BaSui01/answerflow/checkpoint"
	"github.com/BaSui01/answerflow/pipeline"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 问答接口 Handler
// =============================================================================

// CheckpointRecorder 接收会话存档操作的指标回调
type CheckpointRecorder interface {
	RecordCheckpointOp(operation, status string)
}

// AskHandler 问答接口处理器
type AskHandler struct {
	pipe    atomic.Pointer[pipeline.Pipeline]
	store   checkpoint.Store // 可为 nil，表示禁用会话存档
	metrics CheckpointRecorder
	logger  *zap.Logger
}

// NewAskHandler 创建问答处理器
func NewAskHandler(pipe *pipeline.Pipeline, store checkpoint.Store, logger *zap.Logger) *AskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &AskHandler{
		store:  store,
		logger: logger,
	}
	h.pipe.Store(pipe)
	return h
}

// SetPipeline 原子替换问答管线。配置热重载后由服务器调用，
// 进行中的请求继续使用旧管线
func (h *AskHandler) SetPipeline(pipe *pipeline.Pipeline) {
	if pipe != nil {
		h.pipe.Store(pipe)
	}
}

// SetMetrics 注入会话存档指标记录器
func (h *AskHandler) SetMetrics(metrics CheckpointRecorder) {
	h.metrics = metrics
}

func (h *AskHandler) pipeline() *pipeline.Pipeline {
	return h.pipe.Load()
}

// HandleAsk 处理同步问答请求
// @Summary 问答
// @Description 同步执行一次完整的问答请求
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.AskRequest true "问答请求"
// @Success 200 {object} Response{data=api.AskResponse} "问答响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Router /v1/ask [post]
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req api.AskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	query := pipeline.NewQuery(req.Question, req.SessionID)

	start := time.Now()
	answer, err := h.pipeline().Ask(r.Context(), query)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	h.logger.Info("ask completed",
		zap.String("request_id", answer.RequestID),
		zap.String("category", answer.QueryCategory),
		zap.String("mode", answer.RetrievalModeUsed),
		zap.Float64("confidence", answer.AnswerConfidence),
		zap.Duration("duration", time.Since(start)),
	)

	h.saveTurn(r.Context(), req.Question, answer)

	WriteSuccess(w, api.FromAnswer(answer))
}

// HandleAskStream 处理流式问答请求
// @Summary 流式问答
// @Description 逐步执行问答请求，每完成一个组件推送一个 SSE 事件
// @Tags 问答
// @Accept json
// @Produce text/event-stream
// @Param request body api.AskRequest true "问答请求"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Router /v1/ask/stream [post]
func (h *AskHandler) HandleAskStream(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req api.AskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	query := pipeline.NewQuery(req.Question, req.SessionID)

	events, err := h.pipeline().AskStream(r.Context(), query)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	// 设置 SSE 响应头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "streaming not supported", h.logger)
		return
	}

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to marshal stream event", zap.Error(err))
			return
		}

		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()

		if event.Step == pipeline.StepDone {
			if answer, ok := event.Output.(*pipeline.Answer); ok {
				h.saveTurn(r.Context(), req.Question, answer)
			}
		}
	}

	// 发送结束标记
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// HandleAskBatch 处理批量问答请求
// @Summary 批量问答
// @Description 并发执行多条问答请求，响应顺序与请求一致
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.BatchAskRequest true "批量问答请求"
// @Success 200 {object} Response{data=api.BatchAskResponse} "批量响应"
// @Failure 400 {object} Response "无效请求"
// @Router /v1/ask/batch [post]
func (h *AskHandler) HandleAskBatch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req api.BatchAskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if len(req.Questions) == 0 {
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "questions cannot be empty", h.logger)
		return
	}

	queries := make([]pipeline.Query, 0, len(req.Questions))
	for _, question := range req.Questions {
		queries = append(queries, pipeline.NewQuery(question, req.SessionID))
	}

	answers, err := h.pipeline().AskBatch(r.Context(), queries)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	resp := api.BatchAskResponse{Answers: make([]api.AskResponse, 0, len(answers))}
	for i, answer := range answers {
		h.saveTurn(r.Context(), req.Questions[i], answer)
		resp.Answers = append(resp.Answers, api.FromAnswer(answer))
	}

	WriteSuccess(w, resp)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// writeAskError 将管线错误映射为 HTTP 响应
func (h *AskHandler) writeAskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidQuery):
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), h.logger)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "request cancelled or timed out", h.logger)
	default:
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "internal error", h.logger)
	}
}

// saveTurn 将一轮问答写入会话存档。存档失败只记录日志，不影响响应
func (h *AskHandler) saveTurn(ctx context.Context, question string, answer *pipeline.Answer) {
	if h.store == nil || answer.SessionID == "" {
		return
	}

	turn := checkpoint.Turn{
		RequestID:  answer.RequestID,
		Question:   question,
		Answer:     answer.FinalAnswer,
		Category:   answer.QueryCategory,
		Mode:       answer.RetrievalModeUsed,
		Confidence: answer.AnswerConfidence,
		AskedAt:    time.Now(),
	}

	err := h.store.SaveTurn(ctx, answer.SessionID, turn)
	if h.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		h.metrics.RecordCheckpointOp("save_turn", status)
	}
	if err != nil {
		h.logger.Warn("failed to save session turn",
			zap.String("session_id", answer.SessionID),
			zap.Error(err),
		)
	}
}
