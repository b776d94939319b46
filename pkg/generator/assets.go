package generator

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"

	"github.com/shouni/gemini-studio-kit/pkg/imgutil"
)

const (
	cacheKeyFileAPIURI  = "fileapi_uri:"
	cacheKeyFileAPIName = "fileapi_name:"

	// assetCompressionQuality は File API へ送る前の JPEG 再圧縮品質です。
	assetCompressionQuality = 75
)

// ReferenceAssets は同じ参照画像を複数ターンで再利用する呼び出し元のために、
// 解決済み画像を Gemini File API へアップロードして URI で参照させる
// アセット管理コンポーネントです。
type ReferenceAssets struct {
	aiClient   gemini.GenerativeModel
	resolver   PartResolver
	cache      ImageCacher
	expiration time.Duration
	maxInline  int64
}

// NewReferenceAssets は依存関係を注入して ReferenceAssets を初期化します。
// cache は nil を許容（キャッシュなし動作）。
func NewReferenceAssets(aiClient gemini.GenerativeModel, resolver PartResolver, cache ImageCacher, cacheTTL time.Duration, maxInline int64) (*ReferenceAssets, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	return &ReferenceAssets{
		aiClient:   aiClient,
		resolver:   resolver,
		cache:      cache,
		expiration: cacheTTL,
		maxInline:  maxInline,
	}, nil
}

// Upload は参照ソースを解決して File API にアップロードし、URI を返します。
// 既にアップロード済みのソースはキャッシュから即座に返します。
func (a *ReferenceAssets) Upload(ctx context.Context, source string) (string, error) {
	cacheKeyURI := cacheKeyFileAPIURI + source
	if a.cache != nil {
		if val, ok := a.cache.Get(cacheKeyURI); ok {
			if uri, ok := val.(string); ok {
				return uri, nil
			}
		}
	}

	part, err := a.resolver.Resolve(ctx, source, "image/png")
	if err != nil {
		return "", err
	}

	data := part.Data
	mimeType := part.MimeType
	// インライン上限を超える画像は JPEG 再圧縮で縮小してから送る
	if compressed := imgutil.ShrinkToFit(data, a.maxInline, assetCompressionQuality); len(compressed) < len(data) {
		data = compressed
		mimeType = "image/jpeg"
	}

	uri, fileName, err := a.aiClient.UploadFile(ctx, data, mimeType, path.Base(source))
	if err != nil {
		return "", fmt.Errorf("File API へのアップロードに失敗しました: %w", err)
	}

	// URI（参照用）と Name（削除用）の両方をキャッシュ
	if a.cache != nil {
		a.cache.Set(cacheKeyURI, uri, a.expiration)
		a.cache.Set(cacheKeyFileAPIName+source, fileName, a.expiration)
	}

	return uri, nil
}

// Release はキャッシュされたファイル名を使用して File API からファイルを削除します。
func (a *ReferenceAssets) Release(ctx context.Context, source string) error {
	if a.cache != nil {
		if val, ok := a.cache.Get(cacheKeyFileAPIName + source); ok {
			if name, ok := val.(string); ok {
				// 正しいファイル名 (files/xxxx) で削除を実行
				return a.aiClient.DeleteFile(ctx, name)
			}
		}
	}

	// キャッシュミスした場合、ソース文字列からは Delete API を叩けないためエラーを返す
	return fmt.Errorf("cannot determine file name for deletion, file not found in cache: %s", source)
}
