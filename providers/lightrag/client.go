// =============================================================================
// AnswerFlow LightRAG Retrieval Client
// =============================================================================
// HTTP client for a LightRAG server (HKUDS/LightRAG) implementing the
// pipeline Retriever capability. Pipeline retrieval modes map onto
// LightRAG query modes: vector→local, graph→global, hybrid→hybrid.
// =============================================================================

package lightrag

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
	"github.com/BaSui01/answerflow/pipeline"
)

// Config holds the configuration for the LightRAG client.
type Config struct {
	// BaseURL is the LightRAG server base URL (e.g. "http://localhost:9621").
	BaseURL string

	// APIKey is an optional bearer token.
	APIKey string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// Recorder receives per-retrieval metrics callbacks. May be nil.
	Recorder Recorder
}

// Recorder 接收每次检索请求的指标回调。
type Recorder interface {
	RecordRetrieval(mode, status string, duration time.Duration)
}

// Client 是 LightRAG 检索客户端，实现 pipeline.Retriever。
type Client struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New 创建检索客户端。
func New(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Client{
		config: config,
		client: tlsutil.SecureHTTPClient(config.Timeout),
		logger: logger.With(zap.String("component", "lightrag")),
	}
}

// queryModes 管线检索模式到 LightRAG 查询模式的映射。
var queryModes = map[pipeline.RetrievalMode]string{
	pipeline.ModeVector: "local",
	pipeline.ModeGraph:  "global",
	pipeline.ModeHybrid: "hybrid",
}

// --- 请求/响应线格式 ---

type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Retrieve 按指定模式检索知识库。实现 pipeline.Retriever。
// 空响应返回 succeeded=false，由质量门强制网络补充。
func (c *Client) Retrieve(ctx context.Context, query string, mode pipeline.RetrievalMode) (string, bool, error) {
	start := time.Now()
	content, succeeded, err := c.retrieve(ctx, query, mode)
	if c.config.Recorder != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.config.Recorder.RecordRetrieval(string(mode), status, time.Since(start))
	}
	return content, succeeded, err
}

func (c *Client) retrieve(ctx context.Context, query string, mode pipeline.RetrievalMode) (string, bool, error) {
	lightragMode, ok := queryModes[mode]
	if !ok {
		lightragMode = "hybrid"
	}

	body := queryRequest{Query: query, Mode: lightragMode}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", false, fmt.Errorf("lightrag: failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/query"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("lightrag: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("lightrag: query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("lightrag: query failed: status=%d msg=%s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("lightrag: failed to decode response: %w", err)
	}

	content := strings.TrimSpace(parsed.Response)

	c.logger.Debug("retrieval finished",
		zap.String("mode", lightragMode),
		zap.Int("content_len", len(content)),
		zap.Duration("duration", time.Since(start)))

	if content == "" {
		return "", false, nil
	}
	return content, true, nil
}
