package pipeline

import "context"

// 外部能力接口。管线核心只依赖这三个接口；具体实现（LightRAG 服务、
// OpenAI 兼容补全、Tavily 搜索）见 providers/ 包。所有实现必须支持
// 多请求并发调用。

// Retriever 私有知识库检索能力。
type Retriever interface {
	// Retrieve 以指定模式执行一次检索，返回拼接后的证据文本。
	// content 为空与 succeeded=false 的区分由实现方负责；调度器
	// 会对过短内容做二次降级。
	Retrieve(ctx context.Context, query string, mode RetrievalMode) (content string, succeeded bool, err error)
}

// Completer 大模型补全能力，分类与答案起草共用。
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// SearchDepth 网络搜索深度。
type SearchDepth string

const (
	DepthBasic    SearchDepth = "basic"
	DepthAdvanced SearchDepth = "advanced"
)

// SearchResult 搜索提供方返回的单条原始结果。
type SearchResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

// WebSearcher 外部网络搜索能力。
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error)
}

// 函数适配器，便于测试时以闭包注入能力。

// RetrieverFunc 将函数适配为 Retriever。
type RetrieverFunc func(ctx context.Context, query string, mode RetrievalMode) (string, bool, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, mode RetrievalMode) (string, bool, error) {
	return f(ctx, query, mode)
}

// CompleterFunc 将函数适配为 Completer。
type CompleterFunc func(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return f(ctx, prompt, temperature, maxTokens)
}

// WebSearcherFunc 将函数适配为 WebSearcher。
type WebSearcherFunc func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error)

func (f WebSearcherFunc) Search(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
	return f(ctx, query, maxResults, depth)
}
