package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// mockResolver はソース文字列をそのままバイト列として返す解決器です。
type mockResolver struct {
	failOn string
	order  []string
}

func (m *mockResolver) Resolve(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error) {
	if m.failOn != "" && source == m.failOn {
		return nil, errors.New("resolve failed")
	}
	m.order = append(m.order, source)
	return &domain.ImagePart{MimeType: "image/png", Data: []byte(source)}, nil
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()

	t.Run("履歴の順序とターン内のパーツ順序が維持されること", func(t *testing.T) {
		resolver := &mockResolver{}
		b, err := NewBuilder(resolver)
		require.NoError(t, err)

		history := []domain.HistoryEntry{
			{Role: domain.HistoryRoleUser, Content: "最初の依頼", ImageURLs: []string{"https://cdn.example.com/1.png", "https://cdn.example.com/2.png"}},
			{Role: domain.HistoryRoleAssistant, Content: "生成しました"},
			{Role: domain.HistoryRoleUser, Content: "もっと明るく"},
		}
		refs := []domain.ReferenceImage{{ImageURL: "https://cdn.example.com/ref.png", Role: domain.RoleHuman, Name: "Alice"}}

		contents, err := b.Build(ctx, "最終プロンプト", refs, history)

		require.NoError(t, err)
		require.Len(t, contents, 4, "history turns + new user turn")

		// ターン1: 画像2枚 → テキストの順
		first := contents[0]
		assert.Equal(t, genai.RoleUser, first.Role)
		require.Len(t, first.Parts, 3)
		assert.Equal(t, []byte("https://cdn.example.com/1.png"), first.Parts[0].InlineData.Data)
		assert.Equal(t, []byte("https://cdn.example.com/2.png"), first.Parts[1].InlineData.Data)
		assert.Equal(t, "最初の依頼", first.Parts[2].Text)

		// ターン2: assistant はプロバイダの model ロールに写像される
		assert.Equal(t, genai.RoleModel, contents[1].Role)
		require.Len(t, contents[1].Parts, 1)
		assert.Equal(t, "生成しました", contents[1].Parts[0].Text)

		assert.Equal(t, genai.RoleUser, contents[2].Role)

		// 最終ターン: 参照画像が先、プロンプトが最後
		last := contents[3]
		assert.Equal(t, genai.RoleUser, last.Role)
		require.Len(t, last.Parts, 2)
		assert.NotNil(t, last.Parts[0].InlineData)
		assert.Equal(t, "最終プロンプト", last.Parts[1].Text)

		// 画像は逐次・元の順序で解決される
		assert.Equal(t, []string{
			"https://cdn.example.com/1.png",
			"https://cdn.example.com/2.png",
			"https://cdn.example.com/ref.png",
		}, resolver.order)
	})

	t.Run("履歴もパーツもない場合は新規ターンのみになること", func(t *testing.T) {
		b, err := NewBuilder(&mockResolver{})
		require.NoError(t, err)

		contents, err := b.Build(ctx, "a red bicycle", nil, nil)

		require.NoError(t, err)
		require.Len(t, contents, 1)
		require.Len(t, contents[0].Parts, 1)
		assert.Equal(t, "a red bicycle", contents[0].Parts[0].Text)
	})

	t.Run("履歴画像の解決失敗はリクエスト全体の失敗になること", func(t *testing.T) {
		resolver := &mockResolver{failOn: "https://cdn.example.com/broken.png"}
		b, err := NewBuilder(resolver)
		require.NoError(t, err)

		history := []domain.HistoryEntry{
			{Role: domain.HistoryRoleUser, Content: "x", ImageURLs: []string{"https://cdn.example.com/broken.png"}},
		}
		_, err = b.Build(ctx, "prompt", nil, history)

		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "履歴ターン 0"), err.Error())
	})

	t.Run("参照画像の解決失敗もリクエスト全体の失敗になること", func(t *testing.T) {
		resolver := &mockResolver{failOn: "https://cdn.example.com/bad-ref.png"}
		b, err := NewBuilder(resolver)
		require.NoError(t, err)

		refs := []domain.ReferenceImage{{ImageURL: "https://cdn.example.com/bad-ref.png", Role: domain.RoleObject}}
		_, err = b.Build(ctx, "prompt", refs, nil)

		require.Error(t, err)
	})
}

func TestNewBuilder_RequiresResolver(t *testing.T) {
	_, err := NewBuilder(nil)
	assert.Error(t, err)
}
