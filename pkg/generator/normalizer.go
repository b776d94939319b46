package generator

import (
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// 分類済みエラーの利用者向けメッセージ。
// 文言の安定性のため、分類はメッセージ文字列ではなく
// プロバイダのステータスコードに基づいて行います。
const (
	msgNoCredential      = "APIキーが設定されていません"
	msgInvalidCredential = "APIキーが無効です。設定を確認してください"
	msgRateLimited       = "レート制限に達しました。しばらく待ってから再試行してください"
	msgSafetyBlocked     = "安全フィルターによりリクエストがブロックされました"
	msgNoImage           = "画像が生成されませんでした"
	msgUnexpected        = "画像生成中に予期しないエラーが発生しました"
)

// callOutput は1回のプロバイダ呼び出しの正規化結果です。
type callOutput struct {
	images []domain.ImagePart
	text   string
	usage  *domain.GenerationUsage
}

// normalizeResponse は最初の候補のコンテンツパーツを走査し、
// インラインバイナリを ImagePart に、テキストパーツを順序どおり連結します。
func normalizeResponse(resp *genai.GenerateContentResponse) *callOutput {
	out := &callOutput{}
	if resp == nil {
		return out
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var texts []string
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				out.images = append(out.images, domain.ImagePart{
					MimeType: mimeType,
					Data:     part.InlineData.Data,
				})
				continue
			}
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		out.text = strings.Join(texts, "")
	}

	out.usage = normalizeUsage(resp.UsageMetadata)
	return out
}

func normalizeUsage(meta *genai.GenerateContentResponseUsageMetadata) *domain.GenerationUsage {
	if meta == nil {
		return nil
	}
	usage := &domain.GenerationUsage{
		PromptTokenCount:     meta.PromptTokenCount,
		CandidatesTokenCount: meta.CandidatesTokenCount,
		TotalTokenCount:      meta.TotalTokenCount,
	}
	for _, detail := range meta.PromptTokensDetails {
		if detail == nil {
			continue
		}
		usage.Modalities = append(usage.Modalities, domain.ModalityTokens{
			Modality:   string(detail.Modality),
			TokenCount: detail.TokenCount,
		})
	}
	for _, detail := range meta.CandidatesTokensDetails {
		if detail == nil {
			continue
		}
		usage.Modalities = append(usage.Modalities, domain.ModalityTokens{
			Modality:   string(detail.Modality),
			TokenCount: detail.TokenCount,
		})
	}
	return usage
}

// classifyError はプロバイダのエラーを安定した利用者向けメッセージに分類します。
func classifyError(err error) string {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return msgInvalidCredential
		case apiErr.Code == 429:
			return msgRateLimited
		case apiErr.Code == 400 && isSafetyMessage(apiErr.Message):
			return msgSafetyBlocked
		default:
			if apiErr.Message != "" {
				return apiErr.Message
			}
			return msgUnexpected
		}
	}
	return msgUnexpected
}

func isSafetyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "blocked") ||
		strings.Contains(lower, "prohibited")
}
