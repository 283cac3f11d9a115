// Package answerflow provides a top-level convenience entry point for
// building a QA pipeline with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/answerflow"
//
//	p, err := answerflow.New(
//	    answerflow.WithOpenAI("gpt-4o-mini"),
//	    answerflow.WithLightRAG("http://localhost:9621"),
//	    answerflow.WithTavily(os.Getenv("TAVILY_API_KEY")),
//	)
//	answer, err := p.Ask(ctx, pipeline.NewQuery("什么是机器学习", ""))
//
// This is a thin wrapper around [pipeline.New]; use the pipeline package
// directly when you need custom capabilities or full configuration control.
package answerflow

import (
	"os"

	"github.com/BaSui01/answerflow/pipeline"
	"github.com/BaSui01/answerflow/providers/lightrag"
	"github.com/BaSui01/answerflow/providers/openaicompat"
	"github.com/BaSui01/answerflow/providers/tavily"
	"go.uber.org/zap"
)

// Option configures the pipeline created by [New].
type Option func(*options)

type options struct {
	config    pipeline.Config
	hasConfig bool
	retriever pipeline.Retriever
	completer pipeline.Completer
	searcher  pipeline.WebSearcher
	logger    *zap.Logger

	// Shortcut fields — used when the corresponding capability is nil.
	llmBaseURL  string
	llmModel    string
	llmAPIKey   string
	lightragURL string
	tavilyKey   string
}

// WithConfig replaces the default pipeline configuration.
func WithConfig(cfg pipeline.Config) Option {
	return func(o *options) {
		o.config = cfg
		o.hasConfig = true
	}
}

// WithOpenAI uses an OpenAI-compatible completion endpoint with the given
// model. API key is read from OPENAI_API_KEY unless set via [WithAPIKey].
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.llmModel = model
		if o.llmAPIKey == "" {
			o.llmAPIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAPIKey overrides the completion API key set by [WithOpenAI].
func WithAPIKey(key string) Option {
	return func(o *options) { o.llmAPIKey = key }
}

// WithBaseURL overrides the completion endpoint base URL. Use this to point
// [WithOpenAI] at any OpenAI-compatible service.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.llmBaseURL = baseURL }
}

// WithLightRAG uses a LightRAG server as the knowledge base retriever.
func WithLightRAG(baseURL string) Option {
	return func(o *options) { o.lightragURL = baseURL }
}

// WithTavily enables web supplementation through the Tavily search API.
// An empty key leaves web supplementation disabled.
func WithTavily(apiKey string) Option {
	return func(o *options) { o.tavilyKey = apiKey }
}

// WithCompleter sets a pre-built completion capability.
func WithCompleter(c pipeline.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithRetriever sets a pre-built retrieval capability.
func WithRetriever(r pipeline.Retriever) Option {
	return func(o *options) { o.retriever = r }
}

// WithSearcher sets a pre-built web search capability.
func WithSearcher(s pipeline.WebSearcher) Option {
	return func(o *options) { o.searcher = s }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a [pipeline.Pipeline] with minimal configuration. A retriever
// and a completer are required, either pre-built or through the [WithLightRAG]
// and [WithOpenAI] shortcuts.
func New(opts ...Option) (*pipeline.Pipeline, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if !o.hasConfig {
		o.config = pipeline.DefaultConfig()
	}

	if o.completer == nil && o.llmModel != "" {
		o.completer = openaicompat.New(openaicompat.Config{
			BaseURL: o.llmBaseURL,
			APIKey:  o.llmAPIKey,
			Model:   o.llmModel,
		}, o.logger)
	}
	if o.retriever == nil && o.lightragURL != "" {
		o.retriever = lightrag.New(lightrag.Config{
			BaseURL: o.lightragURL,
		}, o.logger)
	}
	if o.searcher == nil && o.tavilyKey != "" {
		o.searcher = tavily.New(tavily.Config{
			APIKey: o.tavilyKey,
		}, o.logger)
	}

	return pipeline.New(o.config, o.retriever, o.completer, o.searcher, o.logger)
}
