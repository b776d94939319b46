package generator

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// genaiContentClient は google.golang.org/genai をラップした ContentGenerator 実装です。
type genaiContentClient struct {
	client *genai.Client
}

func (c *genaiContentClient) GenerateContents(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, cfg)
}

// GenaiClientFactory は APIキーごとに genai クライアントを構築する ClientFactory です。
type GenaiClientFactory struct{}

// ClientFor は指定された API キーで Gemini API バックエンドのクライアントを生成します。
func (f *GenaiClientFactory) ClientFor(ctx context.Context, apiKey string) (ContentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}
	return &genaiContentClient{client: client}, nil
}
