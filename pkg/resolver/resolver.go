// Package resolver は多様な参照画像ソース（インライン data URI、
// アップロード参照、リモート URL、gs:// バケット）を正規化された
// domain.ImagePart に変換します。
package resolver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
	"github.com/shouni/gemini-studio-kit/pkg/fetch"
	"github.com/shouni/gemini-studio-kit/pkg/safeurl"
)

// ErrUnsupportedSource は解釈できない参照ソースを表します。
var ErrUnsupportedSource = errors.New("解釈できない参照画像ソースです")

// dataURIPattern は data:<mime>;base64,<payload> 形式に一致します。
var dataURIPattern = regexp.MustCompile(`^data:([a-zA-Z0-9.+/-]+);base64,(.+)$`)

// ImageFetcher はリモート画像取得を抽象化するインターフェースです。
// fetch.SecureClient がこれを満たします。
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL, fallbackMime string) (*domain.ImagePart, error)
	MaxBytes() int64
}

// ImageCacher は解決済み参照画像のキャッシュ操作を抽象化するインターフェースです。
type ImageCacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}

// Resolver は参照ソースの形状で分岐し、検証とサイズ制限を適用しながら
// ImagePart を構築します。
type Resolver struct {
	validator     *safeurl.Validator
	fetcher       ImageFetcher
	reader        remoteio.InputReader
	cache         ImageCacher
	cacheTTL      time.Duration
	baseURL       string
	uploadsPrefix string
}

// NewResolver は依存関係を注入して Resolver を初期化します。
// reader は gs:// ソースを使わない場合に限り nil を許容します。
// cache は nil を許容します（キャッシュなし動作）。
func NewResolver(
	validator *safeurl.Validator,
	fetcher ImageFetcher,
	reader remoteio.InputReader,
	cache ImageCacher,
	cacheTTL time.Duration,
	baseURL string,
	uploadsPrefix string,
) (*Resolver, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if uploadsPrefix == "" {
		return nil, fmt.Errorf("uploadsPrefix is required")
	}
	return &Resolver{
		validator:     validator,
		fetcher:       fetcher,
		reader:        reader,
		cache:         cache,
		cacheTTL:      cacheTTL,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		uploadsPrefix: uploadsPrefix,
	}, nil
}

// Resolve はソース文字列を ImagePart に変換します。
// ソースの形状で分岐します:
//   - data URI: ネットワーク I/O なしで直接デコード
//   - アップロード参照: 自アプリのベース URL に解決してリモート取得
//   - http/https: バリデーター通過後にリモート取得
//   - gs://: remoteio 経由で読み取り
//   - それ以外: fallbackMime 付きの生 base64 として解釈（互換の最終手段）
func (r *Resolver) Resolve(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error) {
	if r.cache != nil {
		if cached, found := r.cache.Get(source); found {
			if part, ok := cached.(*domain.ImagePart); ok {
				return part, nil
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "source_len", len(source))
		}
	}

	part, err := r.resolve(ctx, source, fallbackMime)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(source, part, r.cacheTTL)
	}
	return part, nil
}

func (r *Resolver) resolve(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error) {
	switch {
	case strings.HasPrefix(source, "data:"):
		return r.resolveDataURI(source)
	case strings.HasPrefix(source, r.uploadsPrefix):
		return r.resolveUploadRef(ctx, source, fallbackMime)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return r.resolveRemote(ctx, source, fallbackMime)
	case strings.HasPrefix(source, "gs://"):
		return r.resolveBucket(ctx, source)
	default:
		return r.resolveRawBase64(source, fallbackMime)
	}
}

func (r *Resolver) resolveDataURI(source string) (*domain.ImagePart, error) {
	m := dataURIPattern.FindStringSubmatch(source)
	if m == nil {
		return nil, fmt.Errorf("%w: data URI の形式が不正です", ErrUnsupportedSource)
	}
	mimeType := m[1]
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", fetch.ErrUnsupportedContentType, mimeType)
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: base64 デコード失敗", ErrUnsupportedSource)
	}
	if int64(len(data)) > r.fetcher.MaxBytes() {
		return nil, fetch.ErrTooLarge
	}
	return &domain.ImagePart{MimeType: mimeType, Data: data}, nil
}

func (r *Resolver) resolveUploadRef(ctx context.Context, source, fallbackMime string) (*domain.ImagePart, error) {
	// パストラバーサルはアップロード領域外への脱出を許すため一律拒否
	if strings.Contains(source, "..") {
		return nil, fmt.Errorf("%w: パストラバーサルを検知しました", ErrUnsupportedSource)
	}
	return r.resolveRemote(ctx, r.baseURL+source, fallbackMime)
}

func (r *Resolver) resolveRemote(ctx context.Context, rawURL, fallbackMime string) (*domain.ImagePart, error) {
	if _, err := r.validator.Validate(ctx, rawURL); err != nil {
		return nil, err
	}
	return r.fetcher.FetchImage(ctx, rawURL, fallbackMime)
}

func (r *Resolver) resolveBucket(ctx context.Context, uri string) (*domain.ImagePart, error) {
	if r.reader == nil {
		return nil, fmt.Errorf("%w: gs:// ソースは設定されていません", ErrUnsupportedSource)
	}
	rc, err := r.reader.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("バケット読み取りに失敗しました: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.fetcher.MaxBytes()+1))
	if err != nil {
		return nil, fmt.Errorf("バケット読み取りに失敗しました: %w", err)
	}
	if int64(len(data)) > r.fetcher.MaxBytes() {
		return nil, fetch.ErrTooLarge
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", fetch.ErrUnsupportedContentType, mimeType)
	}
	return &domain.ImagePart{MimeType: mimeType, Data: data}, nil
}

func (r *Resolver) resolveRawBase64(source, fallbackMime string) (*domain.ImagePart, error) {
	data, err := base64.StdEncoding.DecodeString(source)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 デコード失敗", ErrUnsupportedSource)
	}
	if int64(len(data)) > r.fetcher.MaxBytes() {
		return nil, fetch.ErrTooLarge
	}
	if fallbackMime == "" || !strings.HasPrefix(fallbackMime, "image/") {
		fallbackMime = "image/png"
	}
	return &domain.ImagePart{MimeType: fallbackMime, Data: data}, nil
}
