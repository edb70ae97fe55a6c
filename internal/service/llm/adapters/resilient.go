package adapters

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lestrrat-go/backoff/v2"
	"golang.org/x/time/rate"

	"council/internal/domain"
	domainllm "council/internal/domain/services/llm"
)

// RetryPolicy bounds transport retries.
type RetryPolicy struct {
	MaxRetries  int
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		MinInterval: 500 * time.Millisecond,
		MaxInterval: 8 * time.Second,
	}
}

// ResilientProvider decorates a Provider with client-side rate limiting and
// exponential backoff. Only retryable errors on idempotent requests are retried.
type ResilientProvider struct {
	next    domainllm.Provider
	limiter *rate.Limiter // nil = unlimited
	policy  RetryPolicy
	logger  *slog.Logger
}

// NewResilientProvider wraps next. requestsPerMinute <= 0 disables rate limiting.
func NewResilientProvider(next domainllm.Provider, requestsPerMinute, burst int, policy RetryPolicy, logger *slog.Logger) *ResilientProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &ResilientProvider{next: next, policy: policy, logger: logger}
	if requestsPerMinute > 0 {
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
	return p
}

// Name returns the wrapped provider's name.
func (p *ResilientProvider) Name() string {
	return p.next.Name()
}

// Send implements Provider.
func (p *ResilientProvider) Send(ctx context.Context, req *domainllm.SendRequest) (*domainllm.ProviderResponse, error) {
	if !req.Options.Idempotent || p.policy.MaxRetries <= 0 {
		return p.attempt(ctx, req)
	}

	policy := backoff.Exponential(
		backoff.WithMinInterval(p.policy.MinInterval),
		backoff.WithMaxInterval(p.policy.MaxInterval),
		backoff.WithJitterFactor(0.1),
		backoff.WithMaxRetries(p.policy.MaxRetries),
	)
	b := policy.Start(ctx)

	var lastErr error
	attempt := 0
	for backoff.Continue(b) {
		attempt++
		resp, err := p.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var providerErr *domain.ProviderError
		if !errors.As(err, &providerErr) || !providerErr.Retryable() || ctx.Err() != nil {
			return nil, err
		}
		p.logger.Warn("provider call failed, retrying",
			"provider", p.next.Name(),
			"model", req.Model,
			"attempt", attempt,
			"kind", providerErr.Kind,
			"error", err,
		)
	}

	if lastErr == nil {
		// Context ended before the first attempt
		return nil, ctxProviderError(p.next.Name(), req.Model, ctx.Err())
	}
	return nil, lastErr
}

func (p *ResilientProvider) attempt(ctx context.Context, req *domainllm.SendRequest) (*domainllm.ProviderResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, ctxProviderError(p.next.Name(), req.Model, err)
		}
	}
	return p.next.Send(ctx, req)
}

func ctxProviderError(provider, model string, err error) *domain.ProviderError {
	if err == nil {
		err = context.Canceled
	}
	kind := domain.ProviderErrorNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ProviderErrorTimeout
	}
	// rate.Limiter reports a would-exceed-deadline wait as a plain error
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ProviderErrorRateLimit
	}
	return &domain.ProviderError{Provider: provider, Model: model, Kind: kind, Err: err}
}
