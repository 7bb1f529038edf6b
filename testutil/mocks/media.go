package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentcrew/llm"
)

// =============================================================================
// 🧲 Embedding / Image mocks
// =============================================================================

// MockEmbedder returns a fixed vector for every input.
type MockEmbedder struct {
	mu     sync.Mutex
	Vector []float64
	Err    error
	Inputs [][]string
}

// NewMockEmbedder creates an embedder returning vector.
func NewMockEmbedder(vector ...float64) *MockEmbedder {
	return &MockEmbedder{Vector: vector}
}

func (m *MockEmbedder) Embed(_ context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inputs = append(m.Inputs, append([]string(nil), req.Input...))
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float64, len(req.Input))
	for i := range out {
		out[i] = append([]float64(nil), m.Vector...)
	}
	return &llm.EmbeddingResponse{Model: req.Model, Embeddings: out}, nil
}

// MockImageProvider returns URLs as the generated image.
type MockImageProvider struct {
	mu       sync.Mutex
	URLs     []string
	Err      error
	Requests []llm.ImageRequest
}

// NewMockImageProvider creates an image provider returning urls.
func NewMockImageProvider(urls ...string) *MockImageProvider {
	return &MockImageProvider{URLs: urls}
}

func (m *MockImageProvider) GenerateImage(_ context.Context, req *llm.ImageRequest) (*llm.ImageResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, *req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.ImageResponse{URLs: append([]string(nil), m.URLs...)}, nil
}

// LastRequest returns the most recent image request.
func (m *MockImageProvider) LastRequest() *llm.ImageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	r := m.Requests[len(m.Requests)-1]
	return &r
}
