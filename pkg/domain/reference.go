package domain

// ReferenceRole は参照画像の役割を表す列挙型です。
// 文字列比較での分岐を避け、switch による網羅的な分岐を可能にします。
type ReferenceRole string

const (
	// RoleHuman は人物参照（キャラクター一貫性の維持に利用）です。
	RoleHuman ReferenceRole = "human"
	// RoleObject は物体参照です。
	RoleObject ReferenceRole = "object"
	// RoleLogo はロゴ参照です。物体参照と同じ扱いで合成されます。
	RoleLogo ReferenceRole = "logo"
	// RoleProduct は商品参照（プロンプトで明示的に主役化される）です。
	RoleProduct ReferenceRole = "product"
	// RoleTemplate はデザインテンプレート参照（スワップモード）です。
	// ワイヤー上の値は互換性のため "reference" を維持します。
	RoleTemplate ReferenceRole = "reference"
)

// ParseReferenceRole は外部入力の役割文字列を ReferenceRole に変換します。
// 未知の値は RoleObject として扱います（後方互換のためのフォールバック）。
func ParseReferenceRole(s string) ReferenceRole {
	switch ReferenceRole(s) {
	case RoleHuman, RoleObject, RoleLogo, RoleProduct, RoleTemplate:
		return ReferenceRole(s)
	default:
		return RoleObject
	}
}

// ReferenceImage は生成リクエストに添付される参照画像の定義です。
// リクエストごとに構築される一時的な値オブジェクトで、永続化されません。
type ReferenceImage struct {
	ImageURL string        `json:"image_url"`
	Role     ReferenceRole `json:"type"`
	Name     string        `json:"name,omitempty"`
}

// HistoryRole は会話履歴内の発話者を表します。
type HistoryRole string

const (
	HistoryRoleUser      HistoryRole = "user"
	HistoryRoleAssistant HistoryRole = "assistant"
)

// HistoryEntry は過去の会話1ターンを保持します。
// 順序が意味を持つため、呼び出し元の並びを必ず維持してください。
type HistoryEntry struct {
	Role      HistoryRole `json:"role"`
	Content   string      `json:"content"`
	ImageURLs []string    `json:"image_urls,omitempty"`
}
