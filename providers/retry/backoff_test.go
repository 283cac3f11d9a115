package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil // 第一次就成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	testErr := errors.New("temporary error")

	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return testErr // 前两次失败
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestBackoffRetryer_MaxRetriesExceeded(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	callCount := 0
	testErr := errors.New("persistent error")

	err := retryer.Do(context.Background(), func() error {
		callCount++
		return testErr
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, callCount, "初次调用 + 两次重试")
}

func TestBackoffRetryer_NonRetryableError(t *testing.T) {
	retryable := errors.New("retryable")
	fatal := errors.New("fatal")

	policy := fastPolicy(3)
	policy.RetryableErrors = []error{retryable}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, callCount, "不可重试错误不应触发重试")
}

func TestBackoffRetryer_ContextCancellation(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		cancel() // 首次失败后取消
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func() error {
		return errors.New("always fails")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	calls := 0
	got, err := DoWithResultTyped[string](retryer, context.Background(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBackoffRetryer_RetryableWrapperMatching(t *testing.T) {
	policy := fastPolicy(2)
	policy.RetryableErrors = []error{&RetryableError{}}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	// 包装过的错误触发重试
	calls := 0
	_ = retryer.Do(context.Background(), func() error {
		calls++
		return WrapRetryable(errors.New("transient"))
	})
	assert.Equal(t, 3, calls)

	// 未包装的错误立即放弃
	calls = 0
	_ = retryer.Do(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Equal(t, 1, calls)
}

func TestWrapRetryable(t *testing.T) {
	base := errors.New("upstream 503")
	wrapped := WrapRetryable(base)

	assert.True(t, IsRetryableError(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsRetryableError(base))
	assert.Nil(t, WrapRetryable(nil))
}
