package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidQuery 查询文本为空或超长。这是管线唯一向调用方传播的
// 硬失败；所有外部能力的故障都在内部降级吸收。
var ErrInvalidQuery = errors.New("pipeline: invalid query text")

// 管线步骤名，用于流式事件与指标标签。
const (
	StepClassify   = "classify"
	StepRetrieve   = "retrieve"
	StepAssess     = "assess"
	StepSupplement = "supplement"
	StepSynthesize = "synthesize"
	StepDone       = "done"
)

// StepEvent 流式执行模式下每完成一个组件发出的事件。Output 为该
// 组件的产物：QueryAnalysis、RetrievalResult、QualityAssessment、
// []WebSnippet、SynthesizedAnswer，终态事件为 *Answer。
type StepEvent struct {
	Step    string        `json:"step"`
	Output  any           `json:"output,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Observer 接收管线的执行观测数据。internal/metrics 提供基于
// Prometheus 的实现；nil 观察者是合法的。
type Observer interface {
	// ObserveStep 记录单个步骤的耗时
	ObserveStep(step string, elapsed time.Duration)
	// ObserveGateDecision 记录质量门的分数与分流决定
	ObserveGateDecision(category string, score float64, needsSupplement bool)
	// ObserveAnswer 记录一次完整请求的结果
	ObserveAnswer(category string, confidence float64, elapsed time.Duration)
}

// Config 配置整条管线。
type Config struct {
	Classifier  ClassifierConfig  `json:"classifier" yaml:"classifier"`
	Dispatcher  DispatcherConfig  `json:"dispatcher" yaml:"dispatcher"`
	Gate        GateConfig        `json:"gate" yaml:"gate"`
	WebSearch   WebSearchConfig   `json:"web_search" yaml:"web_search"`
	Synthesizer SynthesizerConfig `json:"synthesizer" yaml:"synthesizer"`

	// 查询文本长度界限（按去除首尾空白后的字符数）
	MinQueryChars int `json:"min_query_chars" yaml:"min_query_chars"`
	MaxQueryChars int `json:"max_query_chars" yaml:"max_query_chars"`
}

// DefaultConfig 返回默认管线配置。
func DefaultConfig() Config {
	return Config{
		Classifier:    DefaultClassifierConfig(),
		Dispatcher:    DefaultDispatcherConfig(),
		Gate:          DefaultGateConfig(),
		WebSearch:     DefaultWebSearchConfig(),
		Synthesizer:   DefaultSynthesizerConfig(),
		MinQueryChars: 1,
		MaxQueryChars: 1000,
	}
}

// Pipeline 自适应检索质量门控问答管线的编排器。执行确定的
// classify → retrieve → assess → [supplement] → synthesize 状态机，
// 质量门是唯一分支点。各组件只依赖前驱输出，无共享可变状态，
// Pipeline 可被多请求并发使用。
type Pipeline struct {
	config       Config
	classifier   *Classifier
	dispatcher   *Dispatcher
	gate         *Gate
	supplemental *SupplementalRetriever
	synthesizer  *Synthesizer
	observer     Observer
	logger       *zap.Logger
}

// Option 配置 Pipeline 的可选项。
type Option func(*Pipeline)

// WithObserver 注入执行观测器。
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithTokenizer 注入质量门使用的 token 计数器。
func WithTokenizer(t Tokenizer) Option {
	return func(p *Pipeline) {
		p.gate = NewGate(p.config.Gate, t, p.logger)
	}
}

// New 创建管线。retriever、completer 为必需能力；searcher 可为 nil，
// 此时补充分支降级为“无补充可用”。
func New(
	config Config,
	retriever Retriever,
	completer Completer,
	searcher WebSearcher,
	logger *zap.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("pipeline: completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinQueryChars <= 0 {
		config.MinQueryChars = 1
	}
	if config.MaxQueryChars <= 0 {
		config.MaxQueryChars = 1000
	}

	p := &Pipeline{
		config:       config,
		classifier:   NewClassifier(config.Classifier, completer, logger),
		dispatcher:   NewDispatcher(config.Dispatcher, retriever, logger),
		gate:         NewGate(config.Gate, nil, logger),
		supplemental: NewSupplementalRetriever(config.WebSearch, searcher, logger),
		synthesizer:  NewSynthesizer(config.Synthesizer, completer, logger),
		logger:       logger.With(zap.String("component", "pipeline")),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// NewQuery 构造一条规范化的查询。
func NewQuery(text, sessionID string) Query {
	return Query{
		RawText:     strings.TrimSpace(text),
		SessionID:   sessionID,
		SubmittedAt: time.Now(),
	}
}

// validate 校验查询文本。这是管线入口的唯一硬校验。
func (p *Pipeline) validate(query Query) error {
	trimmed := strings.TrimSpace(query.RawText)
	n := len([]rune(trimmed))
	if n < p.config.MinQueryChars {
		return fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	if n > p.config.MaxQueryChars {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, p.config.MaxQueryChars)
	}
	return nil
}

// Ask 同步执行一次完整请求，调用方阻塞到最终答案产生。
func (p *Pipeline) Ask(ctx context.Context, query Query) (*Answer, error) {
	return p.run(ctx, query, nil)
}

// AskResult AskAsync 的结果载体。
type AskResult struct {
	Answer *Answer
	Err    error
}

// AskAsync 异步执行一次请求，返回恰好产生一个结果后关闭的通道。
func (p *Pipeline) AskAsync(ctx context.Context, query Query) <-chan AskResult {
	ch := make(chan AskResult, 1)
	go func() {
		defer close(ch)
		answer, err := p.run(ctx, query, nil)
		ch <- AskResult{Answer: answer, Err: err}
	}()
	return ch
}

// AskStream 增量执行一次请求：每个组件完成后发出一个 StepEvent，
// 终态事件的 Step 为 done、Output 为 *Answer。校验失败时在通道打开
// 前返回错误；取消时通道直接关闭，已算出的中间产物被丢弃。
func (p *Pipeline) AskStream(ctx context.Context, query Query) (<-chan StepEvent, error) {
	if err := p.validate(query); err != nil {
		return nil, err
	}

	events := make(chan StepEvent, 8)
	go func() {
		defer close(events)
		emit := func(ev StepEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		answer, err := p.run(ctx, query, emit)
		if err != nil {
			return
		}
		emit(StepEvent{Step: StepDone, Output: answer})
	}()
	return events, nil
}

// AskBatch 并发执行多条查询，结果与输入顺序一一对应。单条查询的
// 校验失败会使整批返回第一个错误；能力层故障照常被管线内部吸收。
func (p *Pipeline) AskBatch(ctx context.Context, queries []Query) ([]*Answer, error) {
	answers := make([]*Answer, len(queries))
	g, gctx := errgroup.WithContext(ctx)

	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			answer, err := p.run(gctx, query, nil)
			if err != nil {
				return err
			}
			answers[i] = answer
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return answers, nil
}

// run 执行状态机。emit 非空时在每步完成后发出事件；emit 返回 false
// 表示消费方已离开，执行中止。
func (p *Pipeline) run(ctx context.Context, query Query, emit func(StepEvent) bool) (*Answer, error) {
	if err := p.validate(query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	start := time.Now()
	logger := p.logger.With(
		zap.String("request_id", requestID),
		zap.String("session_id", query.SessionID))

	logger.Info("request started", zap.String("query", truncate(query.RawText, 80)))

	// 1. 分类
	stepStart := time.Now()
	analysis := p.classifier.Classify(ctx, query)
	if !p.afterStep(ctx, StepClassify, stepStart, analysis, emit) {
		return nil, ctx.Err()
	}

	// 2. 检索
	stepStart = time.Now()
	retrieval := p.dispatcher.Dispatch(ctx, analysis)
	if !p.afterStep(ctx, StepRetrieve, stepStart, retrieval, emit) {
		return nil, ctx.Err()
	}

	// 3. 质量门——唯一分支点
	stepStart = time.Now()
	assessment := p.gate.Assess(analysis, retrieval)
	if p.observer != nil {
		p.observer.ObserveGateDecision(string(analysis.Category), assessment.OverallScore, assessment.NeedsSupplement)
	}
	if !p.afterStep(ctx, StepAssess, stepStart, assessment, emit) {
		return nil, ctx.Err()
	}

	// 4. 条件补充检索
	var web []WebSnippet
	if assessment.NeedsSupplement {
		stepStart = time.Now()
		web = p.supplemental.Fetch(ctx, analysis)
		if !p.afterStep(ctx, StepSupplement, stepStart, web, emit) {
			return nil, ctx.Err()
		}
	}

	// 5. 合成
	stepStart = time.Now()
	synthesized := p.synthesizer.Synthesize(ctx, analysis, retrieval, assessment, web)
	if !p.afterStep(ctx, StepSynthesize, stepStart, synthesized, emit) {
		return nil, ctx.Err()
	}

	elapsed := time.Since(start)
	answer := &Answer{
		RequestID:         requestID,
		FinalAnswer:       synthesized.Text,
		Sources:           synthesized.Sources,
		AnswerConfidence:  synthesized.AnswerConfidence,
		RetrievalModeUsed: string(retrieval.Mode),
		QueryCategory:     string(analysis.Category),
		SessionID:         query.SessionID,
		Elapsed:           elapsed,
	}

	if p.observer != nil {
		p.observer.ObserveAnswer(answer.QueryCategory, answer.AnswerConfidence, elapsed)
	}

	logger.Info("request completed",
		zap.String("category", answer.QueryCategory),
		zap.String("mode", answer.RetrievalModeUsed),
		zap.Float64("confidence", answer.AnswerConfidence),
		zap.Bool("supplemented", assessment.NeedsSupplement),
		zap.Duration("elapsed", elapsed))

	return answer, nil
}

// afterStep 记录步骤耗时、发出流式事件并检查取消。
func (p *Pipeline) afterStep(ctx context.Context, step string, start time.Time, output any, emit func(StepEvent) bool) bool {
	elapsed := time.Since(start)
	if p.observer != nil {
		p.observer.ObserveStep(step, elapsed)
	}
	if emit != nil {
		if !emit(StepEvent{Step: step, Output: output, Elapsed: elapsed}) {
			return false
		}
	}
	return ctx.Err() == nil
}
