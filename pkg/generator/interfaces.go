package generator

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// CredentialStore はユーザーごとのプロバイダ資格情報を引き当てます。
// 保存時の暗号化・復号はこのサブシステムの外側で完結するブラックボックスです。
type CredentialStore interface {
	// APIKey は userID の API キーを返します。未登録の場合は空文字列を返します。
	APIKey(ctx context.Context, userID string) (string, error)
}

// ContentGenerator はマルチターンコンテンツでの生成呼び出しを抽象化します。
type ContentGenerator interface {
	GenerateContents(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory は資格情報ごとの ContentGenerator を構築します。
type ClientFactory interface {
	ClientFor(ctx context.Context, apiKey string) (ContentGenerator, error)
}

// ConversationBuilder は履歴と新規ターンをプロバイダのコンテンツ構造へ変換します。
type ConversationBuilder interface {
	Build(ctx context.Context, prompt string, refs []domain.ReferenceImage, history []domain.HistoryEntry) ([]*genai.Content, error)
}

// PartResolver は参照画像ソースを ImagePart に解決するインターフェースです。
type PartResolver interface {
	Resolve(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error)
}

// ImageCacher は、File API アセットの URI をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}
