package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/answerflow/api"
	"github.com/BaSui01/answerflow/checkpoint"
	"github.com/BaSui01/answerflow/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试用管线
// =============================================================================

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	completer := pipeline.CompleterFunc(func(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
		if strings.Contains(prompt, "Categories:") {
			return `{"category":"factual","key_entities":["machine learning"],"rewritten_query":"what is machine learning","reasoning":"test"}`, nil
		}
		return "Machine learning is a field of artificial intelligence.", nil
	})

	content := strings.TrimSpace(strings.Repeat("Machine learning is a field of artificial intelligence. ", 25))
	retriever := pipeline.RetrieverFunc(func(ctx context.Context, query string, mode pipeline.RetrievalMode) (string, bool, error) {
		return content, true, nil
	})

	p, err := pipeline.New(pipeline.DefaultConfig(), retriever, completer, nil, zap.NewNop())
	require.NoError(t, err)
	return p
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// =============================================================================
// 🧪 AskHandler 测试
// =============================================================================

func TestAskHandler_HandleAsk(t *testing.T) {
	store := checkpoint.NewMemoryStore(20)
	handler := NewAskHandler(testPipeline(t), store, zap.NewNop())

	rec := postJSON(t, handler.HandleAsk, "/v1/ask", api.AskRequest{
		Question:  "什么是机器学习",
		SessionID: "session-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var answer api.AskResponse
	require.NoError(t, json.Unmarshal(data, &answer))

	assert.NotEmpty(t, answer.RequestID)
	assert.NotEmpty(t, answer.Answer)
	assert.Equal(t, "factual", answer.Category)
	assert.Equal(t, "session-1", answer.SessionID)
	assert.NotEmpty(t, answer.Sources)

	// 会话存档应包含这一轮
	session, err := store.Load(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, session.Turns, 1)
	assert.Equal(t, "什么是机器学习", session.Turns[0].Question)
}

func TestAskHandler_HandleAsk_InvalidQuery(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	rec := postJSON(t, handler.HandleAsk, "/v1/ask", api.AskRequest{Question: "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestAskHandler_HandleAsk_InvalidJSON(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.HandleAsk(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskHandler_HandleAsk_MethodNotAllowed(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/ask", nil)
	rec := httptest.NewRecorder()
	handler.HandleAsk(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAskHandler_HandleAskStream(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	rec := postJSON(t, handler.HandleAskStream, "/v1/ask/stream", api.AskRequest{
		Question: "什么是机器学习",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"step":"classify"`)
	assert.Contains(t, body, `"step":"retrieve"`)
	assert.Contains(t, body, `"step":"assess"`)
	assert.Contains(t, body, `"step":"synthesize"`)
	assert.Contains(t, body, `"step":"done"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))
}

func TestAskHandler_HandleAskStream_InvalidQuery(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	rec := postJSON(t, handler.HandleAskStream, "/v1/ask/stream", api.AskRequest{Question: ""})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskHandler_HandleAskBatch(t *testing.T) {
	store := checkpoint.NewMemoryStore(20)
	handler := NewAskHandler(testPipeline(t), store, zap.NewNop())

	questions := []string{"什么是机器学习", "什么是深度学习", "什么是神经网络"}
	rec := postJSON(t, handler.HandleAskBatch, "/v1/ask/batch", api.BatchAskRequest{
		Questions: questions,
		SessionID: "session-batch",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var batch api.BatchAskResponse
	require.NoError(t, json.Unmarshal(data, &batch))

	require.Len(t, batch.Answers, len(questions))
	for i, answer := range batch.Answers {
		assert.NotEmpty(t, answer.Answer, fmt.Sprintf("answer %d should not be empty", i))
	}

	session, err := store.Load(context.Background(), "session-batch")
	require.NoError(t, err)
	assert.Len(t, session.Turns, len(questions))
}

func TestAskHandler_HandleAskBatch_EmptyQuestions(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	rec := postJSON(t, handler.HandleAskBatch, "/v1/ask/batch", api.BatchAskRequest{Questions: nil})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeCheckpointRecorder struct {
	operation string
	status    string
	calls     int
}

func (r *fakeCheckpointRecorder) RecordCheckpointOp(operation, status string) {
	r.operation = operation
	r.status = status
	r.calls++
}

func TestAskHandler_HandleAsk_RecordsCheckpointOp(t *testing.T) {
	store := checkpoint.NewMemoryStore(20)
	handler := NewAskHandler(testPipeline(t), store, zap.NewNop())
	recorder := &fakeCheckpointRecorder{}
	handler.SetMetrics(recorder)

	rec := postJSON(t, handler.HandleAsk, "/v1/ask", api.AskRequest{
		Question:  "什么是机器学习",
		SessionID: "session-metrics",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "save_turn", recorder.operation)
	assert.Equal(t, "success", recorder.status)
}

func TestAskHandler_SetPipeline(t *testing.T) {
	handler := NewAskHandler(testPipeline(t), nil, zap.NewNop())

	// 初始管线接受较长问题
	rec := postJSON(t, handler.HandleAsk, "/v1/ask", api.AskRequest{Question: "什么是机器学习"})
	require.Equal(t, http.StatusOK, rec.Code)

	// 替换为问题长度上限更严格的管线
	cfg := pipeline.DefaultConfig()
	cfg.MaxQueryChars = 10
	completer := pipeline.CompleterFunc(func(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
		return "ok", nil
	})
	retriever := pipeline.RetrieverFunc(func(ctx context.Context, query string, mode pipeline.RetrievalMode) (string, bool, error) {
		return "", false, nil
	})
	strict, err := pipeline.New(cfg, retriever, completer, nil, zap.NewNop())
	require.NoError(t, err)
	handler.SetPipeline(strict)

	rec = postJSON(t, handler.HandleAsk, "/v1/ask", api.AskRequest{Question: "a question well past ten characters"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// nil 不得清空当前管线
	handler.SetPipeline(nil)
	rec = postJSON(t, handler.HandleAsk, "/v1/ask", api.AskRequest{Question: "short one"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
