// Package composer は参照画像の役割に基づいてベースプロンプトを補強します。
// 純粋関数のみで構成され、I/O は行いません。
package composer

import (
	"strings"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

// Compose は参照画像の役割ごとの指示をベースプロンプトへ合成します。
//
// デザインテンプレート参照（スワップモード）が1枚でも含まれる場合、
// 呼び出し元のプロンプトに「1枚目の画像」等の位置指定が既に含まれている
// 前提のため、一切の加筆を行わずそのまま返します。
// それ以外は [人物プレフィックス] base [商品サフィックス] [物体サフィックス]
// の順で合成します。同一入力に対する出力はバイト単位で同一です。
func Compose(base string, refs []domain.ReferenceImage) string {
	var humans []string
	var objects int
	var product *domain.ReferenceImage

	for i := range refs {
		ref := refs[i]
		switch ref.Role {
		case domain.RoleTemplate:
			// スワップモード: 位置指定の希釈を避ける
			return base
		case domain.RoleHuman:
			if ref.Name != "" {
				humans = append(humans, ref.Name)
			} else {
				humans = append(humans, "the person")
			}
		case domain.RoleProduct:
			if product == nil {
				product = &ref
			}
		case domain.RoleObject, domain.RoleLogo:
			objects++
		}
	}

	prompt := base

	if product != nil {
		name := product.Name
		if name == "" {
			name = "the product"
		}
		prompt += " Feature " + name + " prominently in the image."
	}

	if len(humans) > 0 {
		prompt = "Use the provided reference images of " + strings.Join(humans, ", ") +
			" for character consistency. " + prompt
	}

	if objects > 0 {
		prompt += " Include the objects as shown in the reference images."
	}

	return prompt
}
