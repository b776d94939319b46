package generator

import (
	"context"
	"sync"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// --- Mocks ---

type mockCredentialStore struct {
	key   string
	err   error
	calls int
}

func (m *mockCredentialStore) APIKey(ctx context.Context, userID string) (string, error) {
	m.calls++
	return m.key, m.err
}

type mockClientFactory struct {
	client ContentGenerator
	err    error
	calls  int
}

func (m *mockClientFactory) ClientFor(ctx context.Context, apiKey string) (ContentGenerator, error) {
	m.calls++
	return m.client, m.err
}

// mockContentGenerator は呼び出し回数に応じて応答を切り替えられる生成クライアントです。
type mockContentGenerator struct {
	mu           sync.Mutex
	calls        int
	lastContents []*genai.Content
	lastConfig   *genai.GenerateContentConfig
	generateFunc func(call int, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockContentGenerator) GenerateContents(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.lastContents = contents
	m.lastConfig = cfg
	m.mu.Unlock()
	return m.generateFunc(call, contents, cfg)
}

func (m *mockContentGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockBuilder struct {
	contents   []*genai.Content
	err        error
	lastPrompt string
}

func (m *mockBuilder) Build(ctx context.Context, prompt string, refs []domain.ReferenceImage, history []domain.HistoryEntry) ([]*genai.Content, error) {
	m.lastPrompt = prompt
	if m.err != nil {
		return nil, m.err
	}
	if m.contents != nil {
		return m.contents, nil
	}
	return []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(prompt)}}}, nil
}

type mockPartResolver struct {
	part  *domain.ImagePart
	err   error
	calls int
}

func (m *mockPartResolver) Resolve(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error) {
	m.calls++
	return m.part, m.err
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

type mockAIClient struct {
	uploadCalled bool
	deleteCalled bool
	lastFileName string
	uploadErr    error
}

func (m *mockAIClient) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
	m.uploadCalled = true
	if m.uploadErr != nil {
		return "", "", m.uploadErr
	}
	return "https://gemini.api/files/new-file-id", "files/new-file-id", nil
}

func (m *mockAIClient) DeleteFile(ctx context.Context, name string) error {
	m.deleteCalled = true
	m.lastFileName = name
	return nil
}

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	return nil, nil
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	return nil, nil
}

func (m *mockAIClient) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return nil, nil
}

// --- Response helpers ---

func imageResponse(data []byte, usage *genai.GenerateContentResponseUsageMetadata) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}}},
			},
		}},
		UsageMetadata: usage,
	}
}

func textOnlyResponse(text string, usage *genai.GenerateContentResponseUsageMetadata) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: text}},
			},
		}},
		UsageMetadata: usage,
	}
}

func standardUsage() *genai.GenerateContentResponseUsageMetadata {
	return &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     10,
		CandidatesTokenCount: 1290,
		TotalTokenCount:      1300,
	}
}
