package pipeline

import (
	"time"
)

// QueryCategory 查询类别，决定检索模式与置信度阈值。
type QueryCategory string

const (
	CategoryFactual    QueryCategory = "factual"    // Definitions, concepts, concrete facts
	CategoryRelational QueryCategory = "relational" // Entity relationships, impact, connections
	CategoryAnalytical QueryCategory = "analytical" // Multi-dimensional analysis and reasoning
)

// Valid 报告类别是否为已知枚举值。
func (c QueryCategory) Valid() bool {
	switch c {
	case CategoryFactual, CategoryRelational, CategoryAnalytical:
		return true
	}
	return false
}

// RetrievalMode 知识库检索策略。
type RetrievalMode string

const (
	ModeVector RetrievalMode = "vector" // Vector similarity search
	ModeGraph  RetrievalMode = "graph"  // Knowledge graph traversal
	ModeHybrid RetrievalMode = "hybrid" // Combined vector + graph
)

// Valid 报告模式是否为已知枚举值。
func (m RetrievalMode) Valid() bool {
	switch m {
	case ModeVector, ModeGraph, ModeHybrid:
		return true
	}
	return false
}

// CategoryModeTable 类别到理想检索模式的固定映射。
// 可通过配置注入替换，默认为 factual→vector、relational→graph、
// analytical→hybrid 的双射。
type CategoryModeTable map[QueryCategory]RetrievalMode

// DefaultCategoryModeTable 返回默认的类别→模式双射表。
func DefaultCategoryModeTable() CategoryModeTable {
	return CategoryModeTable{
		CategoryFactual:    ModeVector,
		CategoryRelational: ModeGraph,
		CategoryAnalytical: ModeHybrid,
	}
}

// ModeFor 返回某类别的理想模式，未知类别返回 hybrid。
func (t CategoryModeTable) ModeFor(category QueryCategory) RetrievalMode {
	if mode, ok := t[category]; ok {
		return mode
	}
	return ModeHybrid
}

// Query 一次请求的不可变输入，由编排器在请求生命周期内持有。
type Query struct {
	RawText     string    `json:"raw_text"`
	SessionID   string    `json:"session_id,omitempty"` // Opaque pass-through key, never interpreted
	SubmittedAt time.Time `json:"submitted_at"`
}

// QueryAnalysis 分类器的输出，下游只读。
type QueryAnalysis struct {
	Category       QueryCategory `json:"category"`
	Mode           RetrievalMode `json:"retrieval_mode"`
	KeyEntities    []string      `json:"key_entities,omitempty"`
	RewrittenQuery string        `json:"rewritten_query"`
	Rationale      string        `json:"rationale,omitempty"`
}

// RetrievalResult 调度器的输出。Succeeded=false 会使质量门直接判定
// 需要补充检索（见 gate.go）。
type RetrievalResult struct {
	Content   string        `json:"content"`
	Mode      RetrievalMode `json:"mode"`
	Succeeded bool          `json:"succeeded"`
	Latency   time.Duration `json:"latency"`
	RawError  string        `json:"raw_error,omitempty"`
}

// QualityAssessment 质量门的输出，创建后不再修改。
type QualityAssessment struct {
	OverallScore    float64            `json:"overall_score"`
	FactorBreakdown map[string]float64 `json:"factor_breakdown"`
	Threshold       float64            `json:"threshold"`
	NeedsSupplement bool               `json:"needs_supplement"`
	Reason          string             `json:"reason"`
}

// WebSnippet 一条经过过滤与排序的网络搜索证据。
type WebSnippet struct {
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
	Rank           int     `json:"rank"`
}

// SourceOrigin 证据来源标签。
type SourceOrigin string

const (
	OriginPrimaryKnowledge SourceOrigin = "primary_knowledge"
	OriginWebSearch        SourceOrigin = "web_search"
)

// SourceRecord 统一的溯源条目，每个参与合成的证据单元产生一条。
type SourceRecord struct {
	Origin      SourceOrigin `json:"origin"`
	Locator     string       `json:"locator"` // Retrieval mode name or URL
	TrustWeight float64      `json:"trust_weight"`
}

// SynthesizedAnswer 合成器的终态产物，返回给编排器后不再变化。
type SynthesizedAnswer struct {
	Text              string         `json:"text"`
	AnswerConfidence  float64        `json:"answer_confidence"`
	Sources           []SourceRecord `json:"sources"`
	EvidenceUnitCount int            `json:"evidence_unit_count"`
}

// Answer 面向调用方的稳定输出契约。presentation 层与 API 表面只应
// 依赖这个结构；内部重构不得破坏其形状。
type Answer struct {
	RequestID         string         `json:"request_id"`
	FinalAnswer       string         `json:"final_answer"`
	Sources           []SourceRecord `json:"sources"`
	AnswerConfidence  float64        `json:"answer_confidence"`
	RetrievalModeUsed string         `json:"retrieval_mode_used"`
	QueryCategory     string         `json:"query_category"`
	SessionID         string         `json:"session_id,omitempty"`
	Elapsed           time.Duration  `json:"elapsed"`
}
