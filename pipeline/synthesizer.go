package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ApologyText 合成能力不可用或完全没有证据时返回的保底答案。
const ApologyText = "I'm sorry, I could not produce an answer for this question right now. Please try again later."

// ConfidenceWeights 答案置信度公式的权重，全部可配置。
type ConfidenceWeights struct {
	// 质量门综合分数的权重
	GateScore float64 `json:"gate_score" yaml:"gate_score"`
	// 检索因子分数的权重
	RetrievalFactor float64 `json:"retrieval_factor" yaml:"retrieval_factor"`
	// 存在本地证据时的固定加分
	PrimaryPresence float64 `json:"primary_presence" yaml:"primary_presence"`
	// 每条网络证据的加分（边际递减由上限实现）
	WebPerResult float64 `json:"web_per_result" yaml:"web_per_result"`
	// 网络证据加分上限
	WebBonusCap float64 `json:"web_bonus_cap" yaml:"web_bonus_cap"`
	// 多来源（证据单元 > 1）加分
	MultiSource float64 `json:"multi_source" yaml:"multi_source"`
}

// SynthesizerConfig 配置答案合成器。
type SynthesizerConfig struct {
	// 起草调用的采样温度，中等偏低
	Temperature float64 `json:"temperature" yaml:"temperature"`
	// 起草响应的 token 上限
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// 进入提示词的网络证据数上限
	MaxWebInPrompt int `json:"max_web_in_prompt" yaml:"max_web_in_prompt"`
	// 置信度公式权重
	Confidence ConfidenceWeights `json:"confidence" yaml:"confidence"`
	// 本地证据的溯源信任权重
	PrimaryTrustWeight float64 `json:"primary_trust_weight" yaml:"primary_trust_weight"`
	// 网络证据的溯源信任权重
	WebTrustWeight float64 `json:"web_trust_weight" yaml:"web_trust_weight"`
	// 本地检索失败但网络补充成功时，是否仍然输出一条
	// PrimaryKnowledge 溯源记录
	IncludeFailedPrimarySource bool `json:"include_failed_primary_source" yaml:"include_failed_primary_source"`
}

// DefaultSynthesizerConfig 返回默认配置。
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		Temperature:    0.3,
		MaxTokens:      2000,
		MaxWebInPrompt: 3,
		Confidence: ConfidenceWeights{
			GateScore:       0.50,
			RetrievalFactor: 0.15,
			PrimaryPresence: 0.15,
			WebPerResult:    0.05,
			WebBonusCap:     0.15,
			MultiSource:     0.05,
		},
		PrimaryTrustWeight:         0.9,
		WebTrustWeight:             0.6,
		IncludeFailedPrimarySource: false,
	}
}

// Synthesizer 按溯源优先级融合本地与网络证据，经外部补全能力起草
// 最终答案，并计算答案级置信度。给定相同输入与配置，Synthesize 的
// 非文本字段是确定的。
type Synthesizer struct {
	config    SynthesizerConfig
	completer Completer
	logger    *zap.Logger
}

// NewSynthesizer 创建答案合成器。
func NewSynthesizer(config SynthesizerConfig, completer Completer, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxWebInPrompt <= 0 {
		config.MaxWebInPrompt = 3
	}
	return &Synthesizer{
		config:    config,
		completer: completer,
		logger:    logger.With(zap.String("component", "synthesizer")),
	}
}

// Synthesize 生成最终答案。补全调用失败时返回道歉文本与零置信度，
// 从不向调用方抛出原始错误。
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	analysis QueryAnalysis,
	retrieval RetrievalResult,
	assessment QualityAssessment,
	web []WebSnippet,
) SynthesizedAnswer {
	hasPrimary := retrieval.Succeeded && strings.TrimSpace(retrieval.Content) != ""

	if !hasPrimary && len(web) == 0 {
		s.logger.Warn("no evidence available, returning apology")
		return SynthesizedAnswer{
			Text:             ApologyText,
			AnswerConfidence: 0.0,
			Sources:          []SourceRecord{},
		}
	}

	prompt := s.buildPrompt(analysis, retrieval, assessment, web, hasPrimary)

	text, err := s.completer.Complete(ctx, prompt, s.config.Temperature, s.config.MaxTokens)
	if err != nil {
		s.logger.Error("answer drafting failed", zap.Error(err))
		return SynthesizedAnswer{
			Text:             ApologyText,
			AnswerConfidence: 0.0,
			Sources:          []SourceRecord{},
		}
	}

	sources := s.buildSources(retrieval, web, hasPrimary)
	unitCount := len(web)
	if hasPrimary {
		unitCount++
	}

	answer := SynthesizedAnswer{
		Text:              strings.TrimSpace(text),
		AnswerConfidence:  s.answerConfidence(assessment, hasPrimary, len(web)),
		Sources:           sources,
		EvidenceUnitCount: unitCount,
	}

	s.logger.Info("answer synthesized",
		zap.Int("answer_len", len(answer.Text)),
		zap.Float64("confidence", answer.AnswerConfidence),
		zap.Int("sources", len(answer.Sources)))

	return answer
}

// buildPrompt 组装融合提示词。本地证据始终先于网络证据出现，并明确
// 指示优先采用本地证据、用网络证据补充更新、对空白如实说明。
func (s *Synthesizer) buildPrompt(
	analysis QueryAnalysis,
	retrieval RetrievalResult,
	assessment QualityAssessment,
	web []WebSnippet,
	hasPrimary bool,
) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Answer the user's question using the evidence below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", analysis.RewrittenQuery)
	fmt.Fprintf(&b, "Question category: %s\n", analysis.Category)
	fmt.Fprintf(&b, "Retrieval mode: %s\n", retrieval.Mode)
	fmt.Fprintf(&b, "Evidence confidence: %.2f\n\n", assessment.OverallScore)

	if hasPrimary {
		fmt.Fprintf(&b, "Primary knowledge base evidence (%s mode):\n%s\n\n", retrieval.Mode, retrieval.Content)
	}

	if len(web) > 0 {
		b.WriteString("Supplemental web evidence:\n")
		for i, snippet := range web {
			if i >= s.config.MaxWebInPrompt {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n", i+1, snippet.Title, snippet.Snippet, snippet.URL)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Requirements:
1. Prefer primary knowledge base evidence; use web evidence only to supplement or update it.
2. Attribute information to its source (knowledge base vs web) where relevant.
3. If the sources disagree, say so and present a balanced view.
4. If the evidence is incomplete, disclose the gap honestly instead of inventing details.
5. Organize the answer with clear structure.
`)

	if guidance := styleGuidance(analysis.Category, retrieval.Mode); guidance != "" {
		fmt.Fprintf(&b, "\nStyle: %s\n", guidance)
	}

	return b.String()
}

// styleGuidance 按（类别，模式）返回答案风格指导。
func styleGuidance(category QueryCategory, mode RetrievalMode) string {
	table := map[QueryCategory]map[RetrievalMode]string{
		CategoryFactual: {
			ModeVector: "give a precise factual answer focused on definitions and concrete details",
			ModeGraph:  "state the facts, then add the relevant entity relationships",
			ModeHybrid: "combine the facts with relationship context for a rounded explanation",
		},
		CategoryRelational: {
			ModeVector: "describe the relationships the retrieved facts support",
			ModeGraph:  "analyze the relationship chain and downstream impact in depth",
			ModeHybrid: "combine concrete facts with the relationship network",
		},
		CategoryAnalytical: {
			ModeVector: "build a structured analysis on the retrieved facts",
			ModeGraph:  "use the relationship information to analyze impact and trends",
			ModeHybrid: "produce a comprehensive multi-angle analysis",
		},
	}
	if byMode, ok := table[category]; ok {
		return byMode[mode]
	}
	return ""
}

// answerConfidence 计算答案级置信度：质量门分数、检索因子、证据来源
// 数量的加权和，限制在 [0, 1]。独立于质量门的判定，用于调用方展示。
func (s *Synthesizer) answerConfidence(assessment QualityAssessment, hasPrimary bool, webCount int) float64 {
	w := s.config.Confidence

	confidence := w.GateScore * assessment.OverallScore
	confidence += w.RetrievalFactor * assessment.FactorBreakdown[FactorRetrieval]

	if hasPrimary {
		confidence += w.PrimaryPresence
	}
	if webCount > 0 {
		webBonus := float64(webCount) * w.WebPerResult
		if webBonus > w.WebBonusCap {
			webBonus = w.WebBonusCap
		}
		confidence += webBonus
	}
	if hasPrimary && webCount > 0 {
		confidence += w.MultiSource
	}

	return clamp01(confidence)
}

// buildSources 构建溯源列表：本地记录始终排在网络记录之前，信任
// 权重本地高于网络。
func (s *Synthesizer) buildSources(retrieval RetrievalResult, web []WebSnippet, hasPrimary bool) []SourceRecord {
	sources := make([]SourceRecord, 0, len(web)+1)

	if hasPrimary {
		sources = append(sources, SourceRecord{
			Origin:      OriginPrimaryKnowledge,
			Locator:     string(retrieval.Mode),
			TrustWeight: s.config.PrimaryTrustWeight,
		})
	} else if s.config.IncludeFailedPrimarySource && len(web) > 0 {
		// 可配置：承认本地检索参与但失败
		sources = append(sources, SourceRecord{
			Origin:      OriginPrimaryKnowledge,
			Locator:     string(retrieval.Mode),
			TrustWeight: 0.0,
		})
	}

	for _, snippet := range web {
		sources = append(sources, SourceRecord{
			Origin:      OriginWebSearch,
			Locator:     snippet.URL,
			TrustWeight: s.config.WebTrustWeight,
		})
	}

	return sources
}
