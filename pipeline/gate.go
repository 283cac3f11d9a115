package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// 质量门因子名，同时作为 FactorBreakdown 的键与配置权重的键。
const (
	FactorRetrieval         = "retrieval_score"
	FactorCompleteness      = "content_completeness"
	FactorEntityCoverage    = "entity_coverage"
	FactorModeEffectiveness = "mode_effectiveness"
)

// GateConfig 配置质量门。权重与阈值全部可注入，便于线上调参。
type GateConfig struct {
	// 各因子权重，应当和为 1
	Weights map[string]float64 `json:"weights" yaml:"weights"`
	// 类别→置信度阈值表，阈值随问题开放程度递减
	Thresholds map[QueryCategory]float64 `json:"thresholds" yaml:"thresholds"`
	// 理想模式映射表，用于模式有效性因子
	ModeTable CategoryModeTable `json:"mode_table" yaml:"mode_table"`
	// 完整性检查要求的最少 token 数
	MinTokens int `json:"min_tokens" yaml:"min_tokens"`
	// 检索成功且内容非平凡时，按模式给予的本地知识加分
	ModeBonus map[RetrievalMode]float64 `json:"mode_bonus" yaml:"mode_bonus"`
	// 启用本地知识加分的最小内容长度
	BonusMinChars int `json:"bonus_min_chars" yaml:"bonus_min_chars"`
}

// DefaultGateConfig 返回默认配置。
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Weights: map[string]float64{
			FactorRetrieval:         0.35,
			FactorCompleteness:      0.30,
			FactorEntityCoverage:    0.20,
			FactorModeEffectiveness: 0.15,
		},
		Thresholds: map[QueryCategory]float64{
			CategoryFactual:    0.70,
			CategoryRelational: 0.60,
			CategoryAnalytical: 0.50,
		},
		ModeTable: DefaultCategoryModeTable(),
		MinTokens: 20,
		ModeBonus: map[RetrievalMode]float64{
			ModeVector: 0.10,
			ModeGraph:  0.12,
			ModeHybrid: 0.15,
		},
		BonusMinChars: 50,
	}
}

// Gate 对检索结果做多因子加权质量评估，决定是否需要网络搜索补充。
// 给定相同输入，Assess 是纯函数：不持有请求间状态，可并发调用。
type Gate struct {
	config    GateConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewGate 创建质量门。tokenizer 为 nil 时使用字符估算。
func NewGate(config GateConfig, tokenizer Tokenizer, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenizer == nil {
		tokenizer = EstimatorCounter{}
	}
	if len(config.Weights) == 0 {
		config.Weights = DefaultGateConfig().Weights
	}
	if len(config.Thresholds) == 0 {
		config.Thresholds = DefaultGateConfig().Thresholds
	}
	if config.ModeTable == nil {
		config.ModeTable = DefaultCategoryModeTable()
	}
	return &Gate{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "quality_gate")),
	}
}

// Assess 评估一次检索的证据质量。检索失败直接短路：分数 0、必须补充，
// 跳过加权计算。
func (g *Gate) Assess(analysis QueryAnalysis, retrieval RetrievalResult) QualityAssessment {
	threshold := g.thresholdFor(analysis.Category)

	if !retrieval.Succeeded {
		g.logger.Warn("retrieval failed, supplement forced",
			zap.String("category", string(analysis.Category)))
		return QualityAssessment{
			OverallScore: 0.0,
			FactorBreakdown: map[string]float64{
				FactorRetrieval:         0.0,
				FactorCompleteness:      0.0,
				FactorEntityCoverage:    0.0,
				FactorModeEffectiveness: 0.0,
			},
			Threshold:       threshold,
			NeedsSupplement: true,
			Reason:          "primary retrieval failed, web supplement required",
		}
	}

	factors := map[string]float64{
		FactorRetrieval:         g.retrievalScore(retrieval),
		FactorCompleteness:      g.contentCompleteness(retrieval.Content),
		FactorEntityCoverage:    g.entityCoverage(analysis.KeyEntities, retrieval.Content),
		FactorModeEffectiveness: g.modeEffectiveness(analysis.Category, retrieval.Mode),
	}

	score := 0.0
	for name, value := range factors {
		score += value * g.config.Weights[name]
	}

	// 本地知识加分：鼓励采用本地结果而非触发网络搜索
	if bonus, ok := g.config.ModeBonus[retrieval.Mode]; ok {
		if len(strings.TrimSpace(retrieval.Content)) > g.config.BonusMinChars {
			score += bonus
		}
	}
	score = clamp01(score)

	needsSupplement := score < threshold

	assessment := QualityAssessment{
		OverallScore:    score,
		FactorBreakdown: factors,
		Threshold:       threshold,
		NeedsSupplement: needsSupplement,
		Reason:          buildAssessmentReason(score, threshold, factors),
	}

	g.logger.Info("quality assessed",
		zap.Float64("score", score),
		zap.Float64("threshold", threshold),
		zap.Bool("needs_supplement", needsSupplement))

	return assessment
}

// thresholdFor 返回类别对应的动态阈值，限制在 [0.3, 0.9]。
func (g *Gate) thresholdFor(category QueryCategory) float64 {
	threshold, ok := g.config.Thresholds[category]
	if !ok {
		threshold = g.config.Thresholds[CategoryAnalytical]
	}
	if threshold < 0.3 {
		return 0.3
	}
	if threshold > 0.9 {
		return 0.9
	}
	return threshold
}

// retrievalScore 基于内容长度的饱和评分，叠加模式复杂度加成。
func (g *Gate) retrievalScore(retrieval RetrievalResult) float64 {
	contentLen := len(strings.TrimSpace(retrieval.Content))
	if contentLen < 10 {
		return 0.0
	}

	var lengthScore float64
	switch {
	case contentLen >= 1000:
		lengthScore = 0.9
	case contentLen >= 500:
		lengthScore = 0.8
	case contentLen >= 200:
		lengthScore = 0.7
	case contentLen >= 100:
		lengthScore = 0.6
	case contentLen >= 50:
		lengthScore = 0.4
	default:
		lengthScore = 0.2
	}

	modeBonus := map[RetrievalMode]float64{
		ModeVector: 0.05,
		ModeGraph:  0.10,
		ModeHybrid: 0.15,
	}[retrieval.Mode]

	return clamp01(lengthScore + modeBonus)
}

// contentCompleteness 长度梯度结合结构信号（收尾标点、截断结尾、
// 最少 token 数）的完整性启发式。
func (g *Gate) contentCompleteness(content string) float64 {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0.0
	}

	var score float64
	switch contentLen := len(content); {
	case contentLen >= 1000:
		score = 1.0
	case contentLen >= 500:
		score = 0.9
	case contentLen >= 200:
		score = 0.7
	case contentLen >= 100:
		score = 0.6
	case contentLen >= 50:
		score = 0.4
	default:
		score = 0.2
	}

	if !hasTerminalPunctuation(content) {
		score -= 0.1
	}
	if strings.HasSuffix(content, "...") || strings.HasSuffix(content, "…") {
		score -= 0.1
	}
	if g.tokenizer.CountTokens(content) < g.config.MinTokens {
		score -= 0.2
	}

	return clamp01(score)
}

// entityCoverage 关键实体在内容中的覆盖比例，大小写不敏感。完整子串
// 命中计满分，部分词命中按比例计最多 0.6 分。实体列表为空时视为
// 全覆盖（vacuous coverage）。
func (g *Gate) entityCoverage(entities []string, content string) float64 {
	if len(entities) == 0 {
		return 1.0
	}

	lower := strings.ToLower(content)
	if strings.TrimSpace(lower) == "" {
		return 0.0
	}

	total := 0.0
	for _, entity := range entities {
		entityLower := strings.ToLower(entity)
		if strings.Contains(lower, entityLower) {
			total += 1.0
			continue
		}
		words := strings.Fields(entityLower)
		if len(words) == 0 {
			continue
		}
		matched := 0
		for _, word := range words {
			if strings.Contains(lower, word) {
				matched++
			}
		}
		total += float64(matched) / float64(len(words)) * 0.6
	}

	return clamp01(total / float64(len(entities)))
}

// modeEffectiveness 实际模式与类别理想模式的匹配度。
func (g *Gate) modeEffectiveness(category QueryCategory, used RetrievalMode) float64 {
	switch {
	case g.config.ModeTable.ModeFor(category) == used:
		return 1.0
	case used == ModeHybrid:
		return 0.8
	default:
		return 0.6
	}
}

// buildAssessmentReason 生成评估说明，点出最弱与最强因子。
func buildAssessmentReason(score, threshold float64, factors map[string]float64) string {
	op := ">="
	if score < threshold {
		op = "<"
	}
	reason := fmt.Sprintf("confidence %.2f %s threshold %.2f", score, op, threshold)

	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if factors[names[i]] == factors[names[j]] {
			return names[i] < names[j]
		}
		return factors[names[i]] < factors[names[j]]
	})

	var details []string
	lowest, highest := names[0], names[len(names)-1]
	if factors[lowest] < 0.5 {
		details = append(details, fmt.Sprintf("%s low (%.2f)", lowest, factors[lowest]))
	}
	if factors[highest] > 0.8 {
		details = append(details, fmt.Sprintf("%s high (%.2f)", highest, factors[highest]))
	}

	if len(details) > 0 {
		return reason + "; " + strings.Join(details, "; ")
	}
	return reason
}

// hasTerminalPunctuation 报告内容是否以句末标点收尾。
func hasTerminalPunctuation(content string) bool {
	runes := []rune(content)
	if len(runes) == 0 {
		return false
	}
	switch runes[len(runes)-1] {
	case '.', '!', '?', '。', '！', '？', ')', '"', '\'', '」', '”':
		return true
	}
	return false
}

// clamp01 将分数限制在 [0, 1]。
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
