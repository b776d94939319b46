// Package fetch は参照画像取得用の堅牢化 HTTP クライアントを提供します。
// httpkit.ClientInterface のドロップイン実装として、リダイレクト拒否・
// サイズ上限・Content-Type 検査を追加しています。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/gemini-studio-kit/pkg/domain"
)

var (
	ErrFetchFailed = errors.New("参照画像の取得に失敗しました")
	// ErrRedirectNotAllowed: リダイレクト追従は SSRF の典型的な迂回経路のため、
	// 3xx 応答は追従せず常にエラーとします。
	ErrRedirectNotAllowed     = errors.New("リダイレクトは許可されていません")
	ErrTooLarge               = errors.New("参照画像が最大サイズを超えています")
	ErrUnsupportedContentType = errors.New("画像ではないコンテンツタイプです")
)

const (
	// DefaultMaxBytes は参照画像1枚あたりの既定上限です。
	DefaultMaxBytes = 10 << 20 // 10MiB
	// DefaultTimeout は1回の取得全体のタイムアウトです。
	// 低速・悪意あるリモートホストがリクエスト全体を停滞させないための上限です。
	DefaultTimeout = 10 * time.Second
)

// SecureClient は net/http をラップした画像取得クライアントです。
// httpkit.ClientInterface (FetchBytes) を満たします。
type SecureClient struct {
	httpClient *http.Client
	maxBytes   int64
}

// Option は SecureClient の構築オプションです。
type Option func(*SecureClient)

// WithMaxBytes は取得サイズ上限を設定します。
func WithMaxBytes(n int64) Option {
	return func(c *SecureClient) { c.maxBytes = n }
}

// WithTimeout は取得タイムアウトを設定します。
func WithTimeout(d time.Duration) Option {
	return func(c *SecureClient) { c.httpClient.Timeout = d }
}

// NewSecureClient は SecureClient を初期化します。
func NewSecureClient(opts ...Option) *SecureClient {
	c := &SecureClient{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// リダイレクトは手動処理: 追従せず最後の応答をそのまま返させる
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxBytes は設定済みのサイズ上限を返します。
func (c *SecureClient) MaxBytes() int64 { return c.maxBytes }

// FetchImage は URL から画像を取得し、宣言された Content-Type とともに返します。
// Content-Type が空の場合は fallbackMime を採用します。
func (c *SecureClient) FetchImage(ctx context.Context, rawURL, fallbackMime string) (*domain.ImagePart, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, ErrRedirectNotAllowed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status=%d", ErrFetchFailed, resp.StatusCode)
	}

	// Content-Length ヘッダで先にサイズを確認し、超過時は本文を読まずに打ち切る
	if resp.ContentLength > c.maxBytes {
		return nil, ErrTooLarge
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = fallbackMime
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mimeType)
	}

	// ヘッダが欠落・虚偽の可能性があるため、実際の読み取り量でも再検査する
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, ErrTooLarge
	}

	return &domain.ImagePart{MimeType: mimeType, Data: data}, nil
}

// FetchBytes は httpkit.ClientInterface 互換の取得メソッドです。
func (c *SecureClient) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	part, err := c.FetchImage(ctx, rawURL, "image/png")
	if err != nil {
		return nil, err
	}
	return part.Data, nil
}
