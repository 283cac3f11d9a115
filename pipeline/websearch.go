package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SearchPreset 特定查询类别的搜索参数。
type SearchPreset struct {
	// 向提供方请求的结果数
	MaxResults int `json:"max_results" yaml:"max_results"`
	// 搜索深度
	Depth SearchDepth `json:"depth" yaml:"depth"`
	// 追加到改写查询后的修饰词
	Modifiers []string `json:"modifiers" yaml:"modifiers"`
}

// WebSearchConfig 配置补充网络检索。
type WebSearchConfig struct {
	// 类别→搜索参数预设
	Presets map[QueryCategory]SearchPreset `json:"presets" yaml:"presets"`
	// 追加到搜索查询的关键实体上限
	MaxQueryEntities int `json:"max_query_entities" yaml:"max_query_entities"`
	// 组装后搜索查询的长度上限
	MaxQueryChars int `json:"max_query_chars" yaml:"max_query_chars"`
	// 结果内容的最小长度，过短的丢弃
	MinContentChars int `json:"min_content_chars" yaml:"min_content_chars"`
	// 最终保留的结果数上限（硬上限 7）
	MaxRetained int `json:"max_retained" yaml:"max_retained"`
	// 摘要截断长度
	SnippetChars int `json:"snippet_chars" yaml:"snippet_chars"`
	// 单次搜索调用超时
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultWebSearchConfig 返回默认配置。事实类问题请求更少更浅的
// 结果，分析类问题请求更多更深的结果。
func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		Presets: map[QueryCategory]SearchPreset{
			CategoryFactual: {
				MaxResults: 3,
				Depth:      DepthBasic,
				Modifiers:  []string{"definition", "explanation"},
			},
			CategoryRelational: {
				MaxResults: 4,
				Depth:      DepthAdvanced,
				Modifiers:  []string{"relationship", "impact"},
			},
			CategoryAnalytical: {
				MaxResults: 5,
				Depth:      DepthAdvanced,
				Modifiers:  []string{"analysis", "trends", "outlook"},
			},
		},
		MaxQueryEntities: 3,
		MaxQueryChars:    200,
		MinContentChars:  50,
		MaxRetained:      5,
		SnippetChars:     200,
		Timeout:          15 * time.Second,
	}
}

// maxWebEvidence WebEvidence 序列的硬性长度上限。
const maxWebEvidence = 7

// SupplementalRetriever 在质量门判定本地证据不足时从网络获取补充
// 信息。提供方失败视为“无补充可用”，不是管线错误。
type SupplementalRetriever struct {
	config   WebSearchConfig
	searcher WebSearcher
	logger   *zap.Logger
}

// NewSupplementalRetriever 创建补充网络检索器。
func NewSupplementalRetriever(config WebSearchConfig, searcher WebSearcher, logger *zap.Logger) *SupplementalRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRetained <= 0 || config.MaxRetained > maxWebEvidence {
		config.MaxRetained = maxWebEvidence
	}
	if len(config.Presets) == 0 {
		config.Presets = DefaultWebSearchConfig().Presets
	}
	return &SupplementalRetriever{
		config:   config,
		searcher: searcher,
		logger:   logger.With(zap.String("component", "web_supplement")),
	}
}

// Fetch 按类别改写查询并执行一次网络搜索，返回过滤排序后的证据。
// 任何失败都返回空序列。
func (s *SupplementalRetriever) Fetch(ctx context.Context, analysis QueryAnalysis) []WebSnippet {
	if s.searcher == nil {
		s.logger.Warn("web searcher not configured, no supplement available")
		return nil
	}

	preset := s.presetFor(analysis.Category)
	query := s.buildQuery(analysis, preset)

	searchCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	results, err := s.searcher.Search(searchCtx, query, preset.MaxResults, preset.Depth)
	if err != nil {
		s.logger.Warn("web search failed, continuing without supplement",
			zap.String("query", truncate(query, 80)),
			zap.Error(err))
		return nil
	}

	snippets := s.shape(results)

	s.logger.Info("web supplement fetched",
		zap.String("depth", string(preset.Depth)),
		zap.Int("raw_results", len(results)),
		zap.Int("retained", len(snippets)),
		zap.Duration("duration", time.Since(start)))

	return snippets
}

// presetFor 返回类别对应的搜索预设，未知类别按 analytical 处理。
func (s *SupplementalRetriever) presetFor(category QueryCategory) SearchPreset {
	if preset, ok := s.config.Presets[category]; ok {
		return preset
	}
	return s.config.Presets[CategoryAnalytical]
}

// buildQuery 组装搜索查询：改写查询 + 类别修饰词 + 关键实体。
func (s *SupplementalRetriever) buildQuery(analysis QueryAnalysis, preset SearchPreset) string {
	parts := []string{analysis.RewrittenQuery}
	parts = append(parts, preset.Modifiers...)

	entityLimit := s.config.MaxQueryEntities
	for i, entity := range analysis.KeyEntities {
		if entityLimit > 0 && i >= entityLimit {
			break
		}
		parts = append(parts, entity)
	}

	query := strings.Join(parts, " ")
	if s.config.MaxQueryChars > 0 {
		query = cutBytes(query, s.config.MaxQueryChars)
	}
	return query
}

// shape 过滤、排序并截断原始搜索结果。
func (s *SupplementalRetriever) shape(results []SearchResult) []WebSnippet {
	kept := make([]SearchResult, 0, len(results))
	for _, r := range results {
		content := strings.TrimSpace(r.Content)
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		if len(content) < s.config.MinContentChars {
			continue
		}
		r.Content = content
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	if len(kept) > s.config.MaxRetained {
		kept = kept[:s.config.MaxRetained]
	}

	snippets := make([]WebSnippet, 0, len(kept))
	for rank, r := range kept {
		snippets = append(snippets, WebSnippet{
			Title:          r.Title,
			Snippet:        makeSnippet(r.Content, s.config.SnippetChars),
			URL:            r.URL,
			RelevanceScore: r.Score,
			Rank:           rank + 1,
		})
	}
	return snippets
}

// makeSnippet 将内容压缩为单行摘要。
func makeSnippet(content string, maxChars int) string {
	content = strings.Join(strings.Fields(content), " ")
	if maxChars > 0 && len(content) > maxChars {
		content = cutBytes(content, maxChars) + "..."
	}
	return content
}
