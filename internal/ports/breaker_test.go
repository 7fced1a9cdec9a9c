package ports_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/ports"
)

type failingLLM struct {
	err error
}

func (f *failingLLM) Complete(ctx context.Context, req ports.CompletionRequest) (ports.CompletionResult, error) {
	if f.err != nil {
		return ports.CompletionResult{}, f.err
	}
	return ports.CompletionResult{Text: "ok"}, nil
}

func TestBreakerLLMProviderPassesThroughOnSuccess(t *testing.T) {
	b := ports.NewBreakerLLMProvider(&failingLLM{}, "test", nil)
	res, err := b.Complete(context.Background(), ports.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
}

func TestBreakerLLMProviderTripsAndReturnsRetryable(t *testing.T) {
	underlying := &failingLLM{err: errors.New("boom")}
	b := ports.NewBreakerLLMProvider(underlying, "test-trip", nil)

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), ports.CompletionRequest{})
		require.Error(t, err)
	}

	_, err := b.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	var retryable *ports.RetryableError
	assert.True(t, errors.As(err, &retryable), "once the breaker trips open, further calls should surface a RetryableError")
}

type failingEmbedder struct {
	dims int
	err  error
}

func (f *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func (f *failingEmbedder) Dimensions() int { return f.dims }

func TestBreakerEmbeddingProviderPassesThroughOnSuccess(t *testing.T) {
	b := ports.NewBreakerEmbeddingProvider(&failingEmbedder{dims: 768}, "embed-test", nil)
	vecs, err := b.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 768, b.Dimensions())
}

func TestNewRetryableErrorUnwraps(t *testing.T) {
	inner := errors.New("transient")
	re := ports.NewRetryableError(inner, 0)
	assert.ErrorIs(t, re, inner)
	assert.Contains(t, re.Error(), "transient")
}
