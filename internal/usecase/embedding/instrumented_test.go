package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
)

type mockEmbedder struct {
	result   domain.EmbeddingResult
	err      error
	healthy  error
	calls    int
	deadline bool
}

func (m *mockEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	_, m.deadline = ctx.Deadline()
	return m.result, m.err
}

func (m *mockEmbedder) HealthCheck(_ context.Context) error { return m.healthy }

type plainMockEmbedder struct{}

func (plainMockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1}}, nil
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 4,
		TotalTokens:  4,
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 0, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
	if inner.deadline {
		t.Error("no deadline expected without timeout")
	}
}

func TestInstrumentedEmbedder_Timeout(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	p := NewInstrumentedEmbedder(inner, "test", "m", time.Second, zap.NewNop())

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inner.deadline {
		t.Error("expected a deadline on the inner call")
	}
}

func TestInstrumentedEmbedder_EmptyText(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "m", 0, zap.NewNop())

	_, err := p.Embed(context.Background(), "   ")
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if inner.calls != 0 {
		t.Error("inner must not be called for empty text")
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	tests := []struct {
		name  string
		inner error
	}{
		{"plain", errors.New("connection refused")},
		{"already classified", domain.ErrEmbeddingProviderError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewInstrumentedEmbedder(&mockEmbedder{err: tc.inner}, "test", "m", 0, zap.NewNop())
			_, err := p.Embed(context.Background(), "hello")
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
			}
			if !errors.Is(err, tc.inner) {
				t.Errorf("cause lost: %v", err)
			}
		})
	}
}

func TestInstrumentedEmbedder_EmptyVector(t *testing.T) {
	p := NewInstrumentedEmbedder(&mockEmbedder{}, "test", "m", 0, zap.NewNop())
	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	p := NewInstrumentedEmbedder(&mockEmbedder{healthy: errors.New("down")}, "test", "m", 0, zap.NewNop())
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("expected health error")
	}

	p = NewInstrumentedEmbedder(plainMockEmbedder{}, "test", "m", 0, zap.NewNop())
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health check must be healthy, got %v", err)
	}
}
