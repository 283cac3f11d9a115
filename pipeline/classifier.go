package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ClassifierConfig 配置查询分类器。
type ClassifierConfig struct {
	// 分类调用的采样温度，接近 0 以保证稳定输出
	Temperature float64 `json:"temperature" yaml:"temperature"`
	// 分类响应的 token 上限
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// 关键实体数量上限，超出部分截断
	MaxEntities int `json:"max_entities" yaml:"max_entities"`
	// 类别→模式映射表，分类器用它校正不一致的 LLM 输出
	ModeTable CategoryModeTable `json:"mode_table" yaml:"mode_table"`
}

// DefaultClassifierConfig 返回默认配置。
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Temperature: 0.0,
		MaxTokens:   500,
		MaxEntities: 5,
		ModeTable:   DefaultCategoryModeTable(),
	}
}

// Classifier 将原始问题映射为查询类别、检索模式提示与关键实体。
// 分类委托给外部补全能力；任何失败都回退到 analytical/hybrid
// （信息需求最大的模式），绝不让请求在此阶段硬失败。
type Classifier struct {
	config    ClassifierConfig
	completer Completer
	logger    *zap.Logger
}

// NewClassifier 创建查询分类器。
func NewClassifier(config ClassifierConfig, completer Completer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxEntities <= 0 {
		config.MaxEntities = 5
	}
	if config.ModeTable == nil {
		config.ModeTable = DefaultCategoryModeTable()
	}
	return &Classifier{
		config:    config,
		completer: completer,
		logger:    logger.With(zap.String("component", "classifier")),
	}
}

// classifierResponse 补全能力返回的结构化分类结果。
type classifierResponse struct {
	Category       string   `json:"category"`
	KeyEntities    []string `json:"key_entities"`
	RewrittenQuery string   `json:"rewritten_query"`
	Reasoning      string   `json:"reasoning"`
}

// Classify 分析一条查询并返回 QueryAnalysis。
func (c *Classifier) Classify(ctx context.Context, query Query) QueryAnalysis {
	prompt := c.buildPrompt(query.RawText)

	response, err := c.completer.Complete(ctx, prompt, c.config.Temperature, c.config.MaxTokens)
	if err != nil {
		c.logger.Warn("classification call failed, defaulting to hybrid",
			zap.String("query", truncate(query.RawText, 50)),
			zap.Error(err))
		return c.fallbackAnalysis(query.RawText, "classifier unavailable, defaulting to hybrid")
	}

	parsed, err := parseClassifierResponse(response)
	if err != nil {
		c.logger.Warn("classification response unparseable, defaulting to hybrid",
			zap.Error(err))
		return c.fallbackAnalysis(query.RawText, "classifier returned malformed output, defaulting to hybrid")
	}

	analysis := c.normalize(query.RawText, parsed)

	c.logger.Info("query classified",
		zap.String("category", string(analysis.Category)),
		zap.String("mode", string(analysis.Mode)),
		zap.Int("entities", len(analysis.KeyEntities)))

	return analysis
}

// buildPrompt 构建分类提示词。
func (c *Classifier) buildPrompt(raw string) string {
	return fmt.Sprintf(`Analyze the following user question and decide which retrieval strategy fits it best.

Question: %s

Categories:
1. factual - asks for concrete facts, definitions, or concepts; needs precise matching.
   Examples: "What is machine learning?", "Define gradient descent"
2. relational - explores relationships, influence, or connections between entities; needs graph traversal.
   Examples: "Who invented machine learning?", "How are A and B related?"
3. analytical - requires synthesis, reasoning, or multi-dimensional analysis.
   Examples: "Trends in machine learning", "Compare the strengths of A and B"

Extract up to %d key entities from the question and produce an optimized rewrite of it.

Respond with JSON only, no other text:
{
  "category": "factual|relational|analytical",
  "key_entities": ["entity1", "entity2"],
  "rewritten_query": "optimized question text",
  "reasoning": "brief explanation of the chosen category"
}`, raw, c.config.MaxEntities)
}

// parseClassifierResponse 从可能带有多余文本的响应中提取 JSON。
func parseClassifierResponse(response string) (*classifierResponse, error) {
	response = strings.TrimSpace(response)
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx >= 0 && endIdx > startIdx {
		response = response[startIdx : endIdx+1]
	}

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}
	return &parsed, nil
}

// normalize 校验分类结果并强制类别与模式的一致性。无效类别回退到
// analytical/hybrid（fail open toward more evidence）。
func (c *Classifier) normalize(raw string, parsed *classifierResponse) QueryAnalysis {
	category := QueryCategory(strings.ToLower(strings.TrimSpace(parsed.Category)))
	rationale := strings.TrimSpace(parsed.Reasoning)

	if !category.Valid() {
		c.logger.Debug("invalid category from classifier, defaulting to analytical",
			zap.String("category", parsed.Category))
		category = CategoryAnalytical
		rationale = "unrecognized category, defaulting to analytical/hybrid"
	}

	entities := make([]string, 0, len(parsed.KeyEntities))
	for _, e := range parsed.KeyEntities {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		entities = append(entities, e)
		if len(entities) >= c.config.MaxEntities {
			break
		}
	}

	rewritten := strings.TrimSpace(parsed.RewrittenQuery)
	if rewritten == "" {
		rewritten = raw
	}

	return QueryAnalysis{
		Category:       category,
		Mode:           c.config.ModeTable.ModeFor(category),
		KeyEntities:    entities,
		RewrittenQuery: rewritten,
		Rationale:      rationale,
	}
}

// fallbackAnalysis 分类能力不可用时的保底分析结果。
func (c *Classifier) fallbackAnalysis(raw, rationale string) QueryAnalysis {
	return QueryAnalysis{
		Category:       CategoryAnalytical,
		Mode:           c.config.ModeTable.ModeFor(CategoryAnalytical),
		KeyEntities:    nil,
		RewrittenQuery: raw,
		Rationale:      rationale,
	}
}

// truncate 将字符串截断到不超过 maxLen 个字节并追加省略号。
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return cutBytes(s, maxLen) + "..."
}

// cutBytes 在 rune 边界上截断，保证结果始终是合法 UTF-8。
func cutBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
