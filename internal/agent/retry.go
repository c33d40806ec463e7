package agent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"kidsbook/internal/config"
	"kidsbook/internal/model"
)

// stageLog 带上请求ID和阶段的日志条目
func stageLog(ctx context.Context, stage string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"request_id": model.RequestIDFrom(ctx),
		"stage":      stage,
	})
}

// withRetry 按配置对上游调用做有限次指数退避重试，MaxRetries<=0 时只调用一次
func withRetry[T any](ctx context.Context, cfg config.RetryConfig, stage, name string, op func() (T, error)) (T, error) {
	if cfg.MaxRetries <= 0 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	if cfg.InitialIntervalMS > 0 {
		b.InitialInterval = time.Duration(cfg.InitialIntervalMS) * time.Millisecond
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)

	var out T
	err := backoff.RetryNotify(func() error {
		v, err := op()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, policy, func(err error, wait time.Duration) {
		stageLog(ctx, stage).WithError(err).WithField("call", name).Warnf("upstream call failed, retrying in %s", wait)
	})
	return out, err
}
