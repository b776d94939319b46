package domain

import "strings"

// ImagePart は解決済み参照画像の正規化表現（バイト列とMIMEタイプ）です。
// Data は設定された最大参照サイズを超えず、MimeType は常に image/ で始まります。
type ImagePart struct {
	MimeType string
	Data     []byte
}

// IsImage は MimeType が画像系かどうかを返します。
func (p ImagePart) IsImage() bool {
	return strings.HasPrefix(p.MimeType, "image/")
}

// GenerationOptions は1回の論理生成リクエストのオプションです。
type GenerationOptions struct {
	Resolution  string
	AspectRatio string
	ImageCount  int
	References  []ReferenceImage
	History     []HistoryEntry
}

// Normalized は ImageCount の下限（1枚）を保証したコピーを返します。
func (o GenerationOptions) Normalized() GenerationOptions {
	if o.ImageCount < 1 {
		o.ImageCount = 1
	}
	return o
}

// ModalityTokens はモダリティ別のトークン数内訳です。
type ModalityTokens struct {
	Modality   string `json:"modality"`
	TokenCount int32  `json:"token_count"`
}

// GenerationUsage は論理リクエスト全体（複数API呼び出しを含む）の
// トークン使用量の集計です。
type GenerationUsage struct {
	PromptTokenCount     int32            `json:"prompt_token_count"`
	CandidatesTokenCount int32            `json:"candidates_token_count"`
	TotalTokenCount      int32            `json:"total_token_count"`
	Modalities           []ModalityTokens `json:"modalities,omitempty"`
}

// Add は別の呼び出し分の使用量を合算します。
// モダリティ別内訳は複数呼び出し間で意味のあるマージが定義できないため、
// 合算時には破棄します（単一呼び出しの結果にのみ残ります）。
func (u *GenerationUsage) Add(other *GenerationUsage) {
	if other == nil {
		return
	}
	u.PromptTokenCount += other.PromptTokenCount
	u.CandidatesTokenCount += other.CandidatesTokenCount
	u.TotalTokenCount += other.TotalTokenCount
	u.Modalities = nil
}

// GenerationResult は呼び出し元へ返す判別結果です。
// このサブシステムは境界の外へ error を投げず、失敗も必ずこの構造体で返します。
type GenerationResult struct {
	Success bool             `json:"success"`
	Images  []ImagePart      `json:"-"`
	Text    string           `json:"text,omitempty"`
	Error   string           `json:"error,omitempty"`
	Usage   *GenerationUsage `json:"usage,omitempty"`
}

// FailureResult は失敗結果を生成します。
func FailureResult(msg string) *GenerationResult {
	return &GenerationResult{Success: false, Error: msg}
}

// FailureResultWithUsage は使用量付きの失敗結果を生成します。
// プロバイダが拒否理由をテキストのみで返した場合でも課金情報は保全します。
func FailureResultWithUsage(msg string, usage *GenerationUsage) *GenerationResult {
	return &GenerationResult{Success: false, Error: msg, Usage: usage}
}
