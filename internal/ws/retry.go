package ws

import (
	"context"
	"time"

	"github.com/HerbHall/llmrelay/pkg/llm"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// complete issues the upstream call for one prompt. With retries enabled,
// transient provider errors are retried with exponential backoff; anything
// else fails on the first attempt.
func (h *Handler) complete(ctx context.Context, logger *zap.Logger, prompt string) (*llm.Response, error) {
	if h.cfg.Retry.MaxRetries <= 0 {
		return h.provider.Generate(ctx, prompt)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.cfg.Retry.InitialInterval
	if h.cfg.Retry.MaxInterval > 0 {
		b.MaxInterval = h.cfg.Retry.MaxInterval
	}

	attempt := 0
	op := func() (*llm.Response, error) {
		attempt++
		resp, err := h.provider.Generate(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !llm.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(h.cfg.Retry.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retrying upstream call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.String("code", llm.Code(err)),
			)
		}),
	)
}
