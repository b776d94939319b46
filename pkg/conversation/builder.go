// Package conversation は会話履歴と新規ターンをプロバイダのマルチターン
// コンテンツ構造へ変換します。ターンの順序は生成結果を左右する会話文脈の
// 一部であり、入力の並びを厳密に維持します。
package conversation

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// PartResolver は参照画像ソースを ImagePart に解決するインターフェースです。
type PartResolver interface {
	Resolve(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error)
}

// Builder は履歴と新規ユーザーターンから []*genai.Content を構築します。
type Builder struct {
	resolver PartResolver
}

// NewBuilder は PartResolver を注入して Builder を初期化します。
func NewBuilder(resolver PartResolver) (*Builder, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	return &Builder{resolver: resolver}, nil
}

// Build は履歴の各ターンを元の順序のまま変換し、末尾に新規ユーザーターンを
// 追加します。各ターン内では画像パーツが先、テキストが最後です。
// 画像解決の失敗はリクエスト全体の失敗として即座に返します。
func (b *Builder) Build(ctx context.Context, prompt string, refs []domain.ReferenceImage, history []domain.HistoryEntry) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history)+1)

	for i, entry := range history {
		parts := make([]*genai.Part, 0, len(entry.ImageURLs)+1)
		// 画像は逐次解決して順序を維持する
		for _, imgURL := range entry.ImageURLs {
			part, err := b.resolver.Resolve(ctx, imgURL, "image/png")
			if err != nil {
				return nil, fmt.Errorf("履歴ターン %d の画像解決に失敗しました: %w", i, err)
			}
			parts = append(parts, toInlinePart(part))
		}
		if entry.Content != "" {
			parts = append(parts, genai.NewPartFromText(entry.Content))
		}
		contents = append(contents, &genai.Content{Role: mapRole(entry.Role), Parts: parts})
	}

	// 新規ユーザーターン: 参照画像が先、合成済みプロンプトが最後
	newParts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		part, err := b.resolver.Resolve(ctx, ref.ImageURL, "image/png")
		if err != nil {
			return nil, fmt.Errorf("参照画像の解決に失敗しました: %w", err)
		}
		newParts = append(newParts, toInlinePart(part))
	}
	newParts = append(newParts, genai.NewPartFromText(prompt))
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: newParts})

	return contents, nil
}

func mapRole(role domain.HistoryRole) string {
	if role == domain.HistoryRoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func toInlinePart(part *domain.ImagePart) *genai.Part {
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: part.MimeType,
			Data:     part.Data,
		},
	}
}
