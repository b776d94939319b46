// Package generator は、検証済みの参照画像と会話履歴からプロバイダの
// 生成リクエストを組み立て、呼び出し結果を正規化して返すオーケストレーターです。
// 境界の外へ error を投げず、失敗も必ず GenerationResult で返します。
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/genai"

	"github.com/shouni/gemini-studio-kit/pkg/composer"
	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// Service は生成オーケストレーターです。リクエスト間で共有する状態は
// 不変の設定と注入された依存のみで、論理リクエストごとの状態共有はありません。
type Service struct {
	credentials CredentialStore
	factory     ClientFactory
	builder     ConversationBuilder
	resolver    PartResolver
	model       string
}

// NewService は依存関係を注入して Service を初期化します。
func NewService(
	credentials CredentialStore,
	factory ClientFactory,
	builder ConversationBuilder,
	resolver PartResolver,
	model string,
) (*Service, error) {
	if credentials == nil {
		return nil, fmt.Errorf("credentials (CredentialStore) is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("factory (ClientFactory) is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("builder (ConversationBuilder) is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver (PartResolver) is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &Service{
		credentials: credentials,
		factory:     factory,
		builder:     builder,
		resolver:    resolver,
		model:       model,
	}, nil
}

// Generate は1つの論理リクエストを処理します。複数枚要求時は
// プロバイダに枚数パラメータが無いため、追加分を並列呼び出しで補います。
func (s *Service) Generate(ctx context.Context, userID, prompt string, opts domain.GenerationOptions) *domain.GenerationResult {
	opts = opts.Normalized()

	client, result := s.clientForUser(ctx, userID)
	if result != nil {
		return result
	}

	composed := composer.Compose(prompt, opts.References)
	contents, err := s.builder.Build(ctx, composed, opts.References, opts.History)
	if err != nil {
		// 検証・解決エラーは部分的な成功があり得ないため、リクエスト全体を中断する
		slog.WarnContext(ctx, "会話コンテンツの構築に失敗しました", "user_id", userID, "error", err)
		return domain.FailureResult(err.Error())
	}

	primary, err := s.call(ctx, client, contents, opts)
	if err != nil {
		return domain.FailureResult(classifyError(err))
	}
	if len(primary.images) == 0 {
		// プロバイダは拒否理由をテキストのみで返すことがあるため、それを失敗詳細とする
		msg := primary.text
		if msg == "" {
			msg = msgNoImage
		}
		return domain.FailureResultWithUsage(msg, primary.usage)
	}

	images := primary.images
	usage := primary.usage
	if opts.ImageCount > 1 && len(primary.images) == 1 {
		extraImages, extraUsages := s.fanOut(ctx, client, contents, opts, opts.ImageCount-1)
		images = append(images, extraImages...)
		for _, u := range extraUsages {
			if usage == nil {
				usage = &domain.GenerationUsage{}
			}
			usage.Add(u)
		}
	}

	return &domain.GenerationResult{
		Success: true,
		Images:  images,
		Text:    primary.text,
		Usage:   usage,
	}
}

// Refine は既存画像1枚と指示文から単一ターンの再生成を行います。
// 会話ビルダーとファンアウトは経由せず、常に1枚のみ生成します。
func (s *Service) Refine(ctx context.Context, userID, imageSource, instruction string, opts domain.GenerationOptions) *domain.GenerationResult {
	client, result := s.clientForUser(ctx, userID)
	if result != nil {
		return result
	}

	part, err := s.resolver.Resolve(ctx, imageSource, "image/png")
	if err != nil {
		slog.WarnContext(ctx, "修正対象画像の解決に失敗しました", "user_id", userID, "error", err)
		return domain.FailureResult(err.Error())
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: part.MimeType, Data: part.Data}},
			genai.NewPartFromText(instruction),
		},
	}}

	out, err := s.call(ctx, client, contents, opts)
	if err != nil {
		return domain.FailureResult(classifyError(err))
	}
	if len(out.images) == 0 {
		msg := out.text
		if msg == "" {
			msg = msgNoImage
		}
		return domain.FailureResultWithUsage(msg, out.usage)
	}

	return &domain.GenerationResult{
		Success: true,
		Images:  out.images[:1],
		Text:    out.text,
		Usage:   out.usage,
	}
}

// clientForUser は資格情報を引き当ててクライアントを構築します。
// 資格情報が無い場合はネットワーク呼び出しを行わず即座に失敗します。
func (s *Service) clientForUser(ctx context.Context, userID string) (ContentGenerator, *domain.GenerationResult) {
	apiKey, err := s.credentials.APIKey(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "資格情報の取得に失敗しました", "user_id", userID, "error", err)
		return nil, domain.FailureResult(msgUnexpected)
	}
	if apiKey == "" {
		return nil, domain.FailureResult(msgNoCredential)
	}

	client, err := s.factory.ClientFor(ctx, apiKey)
	if err != nil {
		slog.ErrorContext(ctx, "クライアントの構築に失敗しました", "user_id", userID, "error", err)
		return nil, domain.FailureResult(msgUnexpected)
	}
	return client, nil
}

// call は1回の生成呼び出しを実行して正規化します。
// マルチターンの継続署名を不要にするため thinking は常に無効化します。
// これはこの会話フローの正しさに必要な設定であり、最適化ではありません。
func (s *Service) call(ctx context.Context, client ContentGenerator, contents []*genai.Content, opts domain.GenerationOptions) (*callOutput, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](0),
		},
	}
	if opts.AspectRatio != "" || opts.Resolution != "" {
		cfg.ImageConfig = &genai.ImageConfig{
			AspectRatio: opts.AspectRatio,
			ImageSize:   opts.Resolution,
		}
	}

	resp, err := client.GenerateContents(ctx, s.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	return normalizeResponse(resp), nil
}

// fanOut は同一コンテンツでの追加呼び出しを並列実行します。
// 追加呼び出しはベストエフォートであり、個々の失敗はログに残して破棄します。
// 呼び出し元の ctx を引き継ぐため、論理リクエストのキャンセルは
// 実行中の追加呼び出しにも伝播します。
func (s *Service) fanOut(ctx context.Context, client ContentGenerator, contents []*genai.Content, opts domain.GenerationOptions, count int) ([]domain.ImagePart, []*domain.GenerationUsage) {
	outputs := make([]*callOutput, count)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.call(ctx, client, contents, opts)
			if err != nil {
				slog.WarnContext(ctx, "追加生成呼び出しが失敗しました", "index", i, "error", err)
				return
			}
			if len(out.images) == 0 {
				slog.WarnContext(ctx, "追加生成呼び出しが画像を返しませんでした", "index", i)
				return
			}
			outputs[i] = out
		}(i)
	}
	wg.Wait()

	var images []domain.ImagePart
	var usages []*domain.GenerationUsage
	for _, out := range outputs {
		if out == nil {
			continue
		}
		images = append(images, out.images...)
		if out.usage != nil {
			usages = append(usages, out.usage)
		}
	}
	return images, usages
}
