package llmclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/internal/config"
)

// RetryPolicy is a pure description of the gateway's retry behaviour.
// Attempts are numbered from zero; the wait after a failed attempt n is
// BaseDelay * 2^n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy allows three attempts with waits of 1s and 2s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// PolicyFromConfig converts the retry section of the LLM configuration.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return p
}

// Delay returns the wait after the failed attempt with the given index.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay << uint(attempt)
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var gw *GatewayError
	return errors.As(err, &gw) && gw.Retryable()
}

// NewBackOff adapts the policy to backoff.BackOff. It yields MaxAttempts-1
// delays and then backoff.Stop.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy  RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.policy.MaxAttempts-1 {
		return backoff.Stop
	}
	d := b.policy.Delay(b.attempt)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

// retrier drives one provider call through the policy.
type retrier struct {
	policy   RetryPolicy
	newTimer func() backoff.Timer
	logger   *zap.Logger
}

// run calls attempt until it succeeds, fails permanently or the policy is
// exhausted. The last classified error is returned, also when ctx expires
// while waiting between attempts.
func (r *retrier) run(ctx context.Context, attempt func(context.Context) (string, error)) (string, error) {
	var (
		out     string
		lastErr error
		n       int
	)
	op := func() error {
		n++
		res, err := attempt(ctx)
		if err == nil {
			out = res
			return nil
		}
		lastErr = err
		if !Retryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Model call failed; retrying.",
			zap.Int("attempt", n),
			zap.Duration("wait", wait),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(r.policy.NewBackOff(), ctx), notify, timer)
	if err == nil {
		return out, nil
	}
	if lastErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		var gw *GatewayError
		if errors.As(lastErr, &gw) && gw.Err == nil {
			gw.Err = err
		}
		return "", lastErr
	}
	return "", err
}
