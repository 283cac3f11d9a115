package api

import (
	"time"

	"github.com/BaSui01/answerflow/pipeline"
)

// =============================================================================
// 问答类型
// =============================================================================

// AskRequest 代表一次问答请求。
// @Description 问答请求结构
type AskRequest struct {
	// 用户问题文本
	Question string `json:"question" example:"什么是机器学习" binding:"required"`
	// 多轮对话的会话 ID，为空时生成单轮请求
	SessionID string `json:"session_id,omitempty" example:"session-1"`
}

// AskResponse 表示问答响应。
// @Description 问答响应结构
type AskResponse struct {
	// 请求 ID
	RequestID string `json:"request_id" example:"req-123"`
	// 最终答案文本
	Answer string `json:"answer"`
	// 溯源条目
	Sources []SourceInfo `json:"sources"`
	// 答案置信度（0-1）
	Confidence float64 `json:"confidence" example:"0.82"`
	// 检索模式（vector、graph、hybrid）
	RetrievalMode string `json:"retrieval_mode" example:"hybrid"`
	// 查询类别（factual、relational、analytical）
	Category string `json:"category" example:"factual"`
	// 会话 ID
	SessionID string `json:"session_id,omitempty"`
	// 处理耗时（毫秒）
	ElapsedMs int64 `json:"elapsed_ms" example:"1520"`
}

// SourceInfo 表示单条证据溯源。
// @Description 证据溯源结构
type SourceInfo struct {
	// 来源类型（primary_knowledge、web_search）
	Origin string `json:"origin" example:"primary_knowledge"`
	// 定位符：知识库检索模式名或网页 URL
	Locator string `json:"locator" example:"hybrid"`
	// 可信度权重
	TrustWeight float64 `json:"trust_weight" example:"0.9"`
}

// =============================================================================
// 批量问答类型
// =============================================================================

// BatchAskRequest 代表批量问答请求。
// @Description 批量问答请求结构
type BatchAskRequest struct {
	// 问题列表
	Questions []string `json:"questions" binding:"required"`
	// 会话 ID，应用到整批问题
	SessionID string `json:"session_id,omitempty"`
}

// BatchAskResponse 表示批量问答响应，顺序与请求一致。
// @Description 批量问答响应结构
type BatchAskResponse struct {
	// 答案列表
	Answers []AskResponse `json:"answers"`
}

// =============================================================================
// 会话类型
// =============================================================================

// SessionResponse 表示一个会话的历史存档。
// @Description 会话历史响应结构
type SessionResponse struct {
	// 会话 ID
	SessionID string `json:"session_id"`
	// 历史轮次
	Turns []TurnInfo `json:"turns"`
	// 最后更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// TurnInfo 表示会话中的一轮问答。
// @Description 会话轮次结构
type TurnInfo struct {
	// 请求 ID
	RequestID string `json:"request_id"`
	// 问题
	Question string `json:"question"`
	// 答案
	Answer string `json:"answer"`
	// 查询类别
	Category string `json:"category,omitempty"`
	// 检索模式
	Mode string `json:"mode,omitempty"`
	// 置信度
	Confidence float64 `json:"confidence"`
	// 提问时间
	AskedAt time.Time `json:"asked_at"`
}

// =============================================================================
// 转换函数
// =============================================================================

// FromAnswer 将管线答案转换为 API 响应。
func FromAnswer(answer *pipeline.Answer) AskResponse {
	sources := make([]SourceInfo, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		sources = append(sources, SourceInfo{
			Origin:      string(s.Origin),
			Locator:     s.Locator,
			TrustWeight: s.TrustWeight,
		})
	}

	return AskResponse{
		RequestID:     answer.RequestID,
		Answer:        answer.FinalAnswer,
		Sources:       sources,
		Confidence:    answer.AnswerConfidence,
		RetrievalMode: answer.RetrievalModeUsed,
		Category:      answer.QueryCategory,
		SessionID:     answer.SessionID,
		ElapsedMs:     answer.Elapsed.Milliseconds(),
	}
}
