package pipeline

import (
	"testing"

	"go.uber.org/zap"
)

func TestTiktokenCounter_CountTokens(t *testing.T) {
	counter, err := NewTiktokenCounter("gpt-4o", zap.NewNop())
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	if got := counter.CountTokens(""); got != 0 {
		t.Errorf("empty text should count 0 tokens, got %d", got)
	}

	short := counter.CountTokens("hello")
	long := counter.CountTokens("hello world, a much longer sentence about retrieval quality assessment")
	if short < 1 {
		t.Errorf("non-empty text should count at least 1 token, got %d", short)
	}
	if long <= short {
		t.Errorf("longer text should count more tokens: short=%d long=%d", short, long)
	}
}

func TestNewTiktokenCounter_UnknownModel(t *testing.T) {
	if _, err := NewTiktokenCounter("no-such-model", nil); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestTiktokenCounter_NilEncodingFallsBack(t *testing.T) {
	c := &TiktokenCounter{}
	if got := c.CountTokens("abcdefgh"); got != 2 {
		t.Errorf("nil encoding should fall back to estimator, got %d", got)
	}
}

func TestEstimatorCounter(t *testing.T) {
	if got := (EstimatorCounter{}).CountTokens("abcdefgh"); got != 2 {
		t.Errorf("expected 2 estimated tokens, got %d", got)
	}
}
