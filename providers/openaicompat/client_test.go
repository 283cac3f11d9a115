package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/providers/retry"
)

func fastRetryer(t *testing.T, maxRetries int) retry.Retryer {
	t.Helper()
	return retry.NewBackoffRetryer(&retry.Policy{
		MaxRetries:      maxRetries,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: []error{&retry.RetryableError{}},
	}, zap.NewNop())
}

func okResponse(content string) chatResponse {
	return chatResponse{
		ID:    "chatcmpl-test",
		Model: "test-model",
		Choices: []chatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message:      chatMessage{Role: "assistant", Content: content},
			},
		},
	}
}

func newTestClient(serverURL string) *Client {
	return New(Config{
		BaseURL:    serverURL,
		APIKey:     "test-key",
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, zap.NewNop())
}

func TestClient_Complete(t *testing.T) {
	var captured chatRequest
	var capturedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("assistant reply"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	text, err := client.Complete(context.Background(), "hello", 0.3, 2000)
	assert.NoError(t, err)
	assert.Equal(t, "assistant reply", text)

	assert.Equal(t, "Bearer test-key", capturedAuth)
	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 0.3, captured.Temperature)
	assert.Equal(t, 2000, captured.MaxTokens)
	if assert.Len(t, captured.Messages, 1) {
		assert.Equal(t, "user", captured.Messages[0].Role)
		assert.Equal(t, "hello", captured.Messages[0].Content)
	}
}

func TestClient_Complete_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(okResponse("recovered"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	// 测试中缩短退避延迟
	client.retryer = fastRetryer(t, 2)

	text, err := client.Complete(context.Background(), "hello", 0.0, 100)
	assert.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, attempts)
}

func TestClient_Complete_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid api key"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.retryer = fastRetryer(t, 2)

	_, err := client.Complete(context.Background(), "hello", 0.0, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, 1, attempts, "4xx must not be retried")
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{ID: "x", Model: "test-model"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), "hello", 0.0, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClient_Complete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 必须先读完请求体，服务端才会监听连接断开并取消 r.Context()
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, "hello", 0.0, 100)
	assert.Error(t, err)
}

type fakeLLMRecorder struct {
	model    string
	status   string
	duration time.Duration
	calls    int
}

func (r *fakeLLMRecorder) RecordLLMRequest(model, status string, duration time.Duration) {
	r.model = model
	r.status = status
	r.duration = duration
	r.calls++
}

func TestClient_Complete_RecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("ok"))
	}))
	defer server.Close()

	recorder := &fakeLLMRecorder{}
	client := New(Config{
		BaseURL:  server.URL,
		APIKey:   "test-key",
		Model:    "test-model",
		Recorder: recorder,
	}, zap.NewNop())

	_, err := client.Complete(context.Background(), "hello", 0.3, 100)
	assert.NoError(t, err)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "test-model", recorder.model)
	assert.Equal(t, "success", recorder.status)
}

func TestClient_Complete_RecordsMetricsOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	recorder := &fakeLLMRecorder{}
	client := New(Config{
		BaseURL:  server.URL,
		APIKey:   "test-key",
		Model:    "test-model",
		Recorder: recorder,
	}, zap.NewNop())

	_, err := client.Complete(context.Background(), "hello", 0.3, 100)
	assert.Error(t, err)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "error", recorder.status)
}

func TestNew_DefaultBaseURL(t *testing.T) {
	client := New(Config{APIKey: "k", Model: "m"}, nil)
	assert.Equal(t, "https://api.openai.com/v1", client.config.BaseURL)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", client.endpoint())
}
