// =============================================================================
// AnswerFlow Tavily Web Search Client
// =============================================================================
// Tavily REST search client implementing the pipeline WebSearcher
// capability. Requests are rate limited and ad-serving domains are
// excluded from results by default.
// =============================================================================

package tavily

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
	"golang.org/x/time/rate"

	"github.com/BaSui01/answerflow/internal/tlsutil"
	"github.com/BaSui01/answerflow/pipeline"
)

// Config holds the configuration for the Tavily search client.
type Config struct {
	// BaseURL is the Tavily API base URL. Defaults to "https://api.tavily.com".
	BaseURL string

	// APIKey is the Tavily API key.
	APIKey string

	// Timeout is the HTTP client timeout. Defaults to 15s if zero.
	Timeout time.Duration

	// RateLimitRPS caps outbound requests per second. Zero disables limiting.
	RateLimitRPS float64

	// ExcludeDomains are dropped from search results server-side.
	// Defaults to known ad-serving domains.
	ExcludeDomains []string

	// Recorder receives per-search metrics callbacks. May be nil.
	Recorder Recorder
}

// Recorder 接收每次搜索请求的指标回调。
type Recorder interface {
	RecordWebSearch(depth, status string, duration time.Duration)
}

// Client 是 Tavily 搜索客户端，实现 pipeline.WebSearcher。
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New 创建搜索客户端。
func New(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.tavily.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.ExcludeDomains == nil {
		config.ExcludeDomains = []string{"ads.google.com", "googleadservices.com"}
	}

	var limiter *rate.Limiter
	if config.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1)
	}

	return &Client{
		config:  config,
		client:  tlsutil.SecureHTTPClient(config.Timeout),
		limiter: limiter,
		logger:  logger.With(zap.String("component", "tavily")),
	}
}

// --- 请求/响应线格式 ---

type searchRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeAnswer  bool     `json:"include_answer"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Answer  string         `json:"answer"`
	Results []searchResult `json:"results"`
}

// Search 执行一次搜索。实现 pipeline.WebSearcher。
func (c *Client) Search(ctx context.Context, query string, maxResults int, depth pipeline.SearchDepth) ([]pipeline.SearchResult, error) {
	start := time.Now()
	results, err := c.search(ctx, query, maxResults, depth)
	if c.config.Recorder != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.config.Recorder.RecordWebSearch(string(depth), status, time.Since(start))
	}
	return results, err
}

func (c *Client) search(ctx context.Context, query string, maxResults int, depth pipeline.SearchDepth) ([]pipeline.SearchResult, error) {
	if strings.TrimSpace(c.config.APIKey) == "" {
		return nil, fmt.Errorf("tavily: api key not configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("tavily: rate limit wait: %w", err)
		}
	}

	body := searchRequest{
		APIKey:         c.config.APIKey,
		Query:          query,
		SearchDepth:    string(depth),
		MaxResults:     maxResults,
		IncludeAnswer:  true,
		ExcludeDomains: c.config.ExcludeDomains,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/search"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavily: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tavily: search failed: status=%d msg=%s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tavily: failed to decode response: %w", err)
	}

	results := make([]pipeline.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, pipeline.SearchResult{
			Title:   r.Title,
			Content: r.Content,
			URL:     r.URL,
			Score:   r.Score,
		})
	}

	c.logger.Debug("search finished",
		zap.String("depth", string(depth)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}
