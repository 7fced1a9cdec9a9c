package ports

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shawkridge/athena-sub007/internal/telemetry"
)

// BreakerSettings mirrors the trip policy used by the pack's gobreaker
// adopters: trip after 3 consecutive failures within a 10s window, stay
// open 30s before probing again.
func BreakerSettings(name string, logger telemetry.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn(context.Background(), "circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}
}

// BreakerLLMProvider wraps an LLMProvider with a gobreaker circuit breaker,
// tripping on repeated transient failures (spec §7 "Transient"). Permanent
// errors (ErrPermanent) do not count toward the trip threshold's intent but
// are not special-cased by gobreaker itself; callers distinguish via
// errors.As on RetryableError before retrying.
type BreakerLLMProvider struct {
	inner   LLMProvider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerLLMProvider wraps inner behind a circuit breaker named name.
func NewBreakerLLMProvider(inner LLMProvider, name string, logger telemetry.Logger) *BreakerLLMProvider {
	return &BreakerLLMProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(BreakerSettings(name, logger)),
	}
}

func (b *BreakerLLMProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return CompletionResult{}, NewRetryableError(err, b.breaker.Settings().Timeout)
		}
		return CompletionResult{}, err
	}
	return result.(CompletionResult), nil
}

var _ LLMProvider = (*BreakerLLMProvider)(nil)

// BreakerEmbeddingProvider wraps an EmbeddingProvider the same way.
type BreakerEmbeddingProvider struct {
	inner   EmbeddingProvider
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerEmbeddingProvider(inner EmbeddingProvider, name string, logger telemetry.Logger) *BreakerEmbeddingProvider {
	return &BreakerEmbeddingProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(BreakerSettings(name, logger)),
	}
}

func (b *BreakerEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewRetryableError(err, b.breaker.Settings().Timeout)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (b *BreakerEmbeddingProvider) Dimensions() int { return b.inner.Dimensions() }

var _ EmbeddingProvider = (*BreakerEmbeddingProvider)(nil)
