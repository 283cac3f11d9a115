// =============================================================================
// AnswerFlow OpenAI-Compatible Completion Client
// =============================================================================
// Thin chat-completions client for any OpenAI-compatible endpoint.
// Implements the pipeline Completer capability: single prompt in,
// assistant text out, with exponential-backoff retry on transient
// upstream failures.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/internal/tlsutil"
	"github.com/BaSui01/answerflow/providers/retry"
)

// defaultBaseURL is used when Config.BaseURL is empty.
const defaultBaseURL = "https://api.openai.com/v1"

// Config holds the configuration for an OpenAI-compatible completion client.
type Config struct {
	// BaseURL is the base URL for the provider's API. Defaults to the
	// OpenAI endpoint when empty.
	BaseURL string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Timeout is the HTTP client timeout. Defaults to 2m if zero.
	Timeout time.Duration

	// MaxRetries bounds retry attempts on transient failures. Defaults to 3.
	MaxRetries int

	// EndpointPath is the chat completions endpoint path. Defaults to "/chat/completions".
	EndpointPath string

	// Recorder receives per-request metrics callbacks. May be nil.
	Recorder Recorder
}

// Recorder 接收每次补全请求的指标回调。
type Recorder interface {
	RecordLLMRequest(model, status string, duration time.Duration)
}

// Client 是 OpenAI 兼容补全客户端，实现 pipeline.Completer。
type Client struct {
	config  Config
	client  *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// New 创建补全客户端。
func New(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.EndpointPath == "" {
		config.EndpointPath = "/chat/completions"
	}

	policy := retry.DefaultPolicy()
	if config.MaxRetries > 0 {
		policy.MaxRetries = config.MaxRetries
	}
	// 只有被显式标记的瞬时错误才重试
	policy.RetryableErrors = []error{&retry.RetryableError{}}

	return &Client{
		config:  config,
		client:  tlsutil.SecureHTTPClient(config.Timeout),
		retryer: retry.NewBackoffRetryer(policy, logger),
		logger:  logger.With(zap.String("component", "openaicompat")),
	}
}

// --- 请求/响应线格式 ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete 执行一次非流式补全，返回首个 choice 的文本。
// 实现 pipeline.Completer。
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	text, err := retry.DoWithResultTyped[string](c.retryer, ctx, func() (string, error) {
		return c.doRequest(ctx, payload)
	})
	c.record(err, time.Since(start))
	if err != nil {
		return "", err
	}

	c.logger.Debug("completion finished",
		zap.String("model", c.config.Model),
		zap.Int("response_len", len(text)),
		zap.Duration("duration", time.Since(start)))

	return text, nil
}

// doRequest 执行一次 HTTP 请求。5xx/429 包装为可重试错误。
func (c *Client) doRequest(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// 网络层失败视为瞬时
		return "", retry.WrapRetryable(fmt.Errorf("completion request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		apiErr := fmt.Errorf("completion failed: status=%d msg=%s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.WrapRetryable(apiErr)
		}
		return "", apiErr
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", retry.WrapRetryable(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// record 上报一次补全请求的结果指标。
func (c *Client) record(err error, duration time.Duration) {
	if c.config.Recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.config.Recorder.RecordLLMRequest(c.config.Model, status, duration)
}

// endpoint 拼接完整的请求 URL。
func (c *Client) endpoint() string {
	return strings.TrimRight(c.config.BaseURL, "/") + c.config.EndpointPath
}

// readErrorMessage 从错误响应体中提取可读信息。
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable error body"
	}

	var parsed errorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}
