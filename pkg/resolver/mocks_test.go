package resolver

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// --- Mocks ---

type mockFetcher struct {
	part     *domain.ImagePart
	err      error
	maxBytes int64
	calls    int
	lastURL  string
}

func (m *mockFetcher) FetchImage(ctx context.Context, rawURL, fallbackMime string) (*domain.ImagePart, error) {
	m.calls++
	m.lastURL = rawURL
	return m.part, m.err
}

func (m *mockFetcher) MaxBytes() int64 {
	if m.maxBytes > 0 {
		return m.maxBytes
	}
	return 10 << 20
}

type mockReader struct {
	data []byte
	err  error
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	return nil
}

type mockCache struct {
	data map[string]any
}

func (m *mockCache) Get(key string) (any, bool) {
	val, ok := m.data[key]
	return val, ok
}

func (m *mockCache) Set(key string, value any, d time.Duration) {
	m.data[key] = value
}
