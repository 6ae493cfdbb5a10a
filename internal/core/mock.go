package core

import (
	"context"
	"sync/atomic"
)

// MockCompleter is a configurable Completer for tests.
// Set CompleteFunc to control behavior; nil returns an empty answer.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, template, contextText, question string) (string, error)

	calls atomic.Int32
}

func (m *MockCompleter) Complete(ctx context.Context, template, contextText, question string) (string, error) {
	m.calls.Add(1)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, template, contextText, question)
	}
	return "", nil
}

// Calls reports how many times Complete ran.
func (m *MockCompleter) Calls() int { return int(m.calls.Load()) }

// MockEmbedder is a configurable Embedder for tests.
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	calls atomic.Int32
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.5, 0.5}, nil
}

func (m *MockEmbedder) Calls() int { return int(m.calls.Load()) }
