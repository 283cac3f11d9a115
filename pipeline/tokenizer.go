package pipeline

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 质量门用于结构信号检查的 token 计数接口。
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenCounter 基于 tiktoken 编码的 token 计数器。编码失败时回退
// 到字符估算并记录警告日志。
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTiktokenCounter 创建 tiktoken 计数器。model 为 tiktoken 模型名
// （如 "gpt-4o"）。
func NewTiktokenCounter(model string, logger *zap.Logger) (*TiktokenCounter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("create tiktoken encoding: %w", err)
	}
	return &TiktokenCounter{encoding: enc, logger: logger}, nil
}

// CountTokens 返回文本的 token 数。
func (c *TiktokenCounter) CountTokens(text string) int {
	if c.encoding == nil {
		return estimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// EstimatorCounter 无外部编码数据的保底计数器，按 4 字符一个 token
// 估算。测试与离线环境使用。
type EstimatorCounter struct{}

// CountTokens 实现 Tokenizer。
func (EstimatorCounter) CountTokens(text string) int {
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	return len(text) / 4
}
