package adapters

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"council/internal/domain"
)

// callContext applies the per-call timeout, if any.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyError maps a transport failure to a typed ProviderError.
func classifyError(provider, model string, err error) *domain.ProviderError {
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}

	pe := &domain.ProviderError{Provider: provider, Model: model, Kind: domain.ProviderErrorNetwork, Err: err}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe.HTTPStatus = apiErr.StatusCode
		pe.Kind = kindForStatus(apiErr.StatusCode)
		return pe
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Kind = domain.ProviderErrorTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		pe.Kind = domain.ProviderErrorTimeout
	}
	return pe
}

func kindForStatus(status int) domain.ProviderErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ProviderErrorRateLimit
	case status == http.StatusRequestTimeout:
		return domain.ProviderErrorTimeout
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.ProviderErrorAuth
	case status >= 500:
		// includes Anthropic's 529 overloaded
		return domain.ProviderErrorUnavailable
	case status >= 400:
		return domain.ProviderErrorInvalidRequest
	default:
		return domain.ProviderErrorNetwork
	}
}

func malformed(provider, model string, err error) *domain.ProviderError {
	return &domain.ProviderError{Provider: provider, Model: model, Kind: domain.ProviderErrorMalformed, Err: err}
}

func invalidRequest(provider, model string, err error) *domain.ProviderError {
	return &domain.ProviderError{Provider: provider, Model: model, Kind: domain.ProviderErrorInvalidRequest, Err: err}
}
