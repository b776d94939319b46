// Package safeurl は SSRF (Server-Side Request Forgery) および DNS リバインディング
// 対策として、参照画像URLの取得可否を判定するバリデーターを提供します。
// ホスト名の文字列検証だけでは検証後に内部アドレスへ解決され得るため、
// 名前解決されたすべての IP アドレスを明示的に検査します。
package safeurl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"
)

// 検証失敗の種別。最初に違反した規則で即座に fail closed します。
var (
	ErrInvalidURL            = errors.New("不正なURLです")
	ErrCredentialsNotAllowed = errors.New("URLへの認証情報の埋め込みは許可されていません")
	ErrSchemeNotAllowed      = errors.New("許可されていないスキームです")
	ErrHostNotAllowed        = errors.New("許可されていないホストです")
	ErrPrivateAddress        = errors.New("制限されたネットワークへのアクセスを検知しました")
	ErrHostUnresolvable      = errors.New("画像ホストの名前解決に失敗しました")
)

// IPResolver はテストで名前解決を差し替えるためのインターフェースです。
// *net.Resolver がこれを満たします。
type IPResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Config はバリデーターの不変設定です。起動時に一度だけ構築し、
// 以降は変更しません（ホットパス内での環境変数参照は行いません）。
type Config struct {
	// AppHost はアプリケーション自身の公開ホスト名です。
	AppHost string
	// UploadsPrefix は AppHost 配下で取得を許可するパス接頭辞です。
	// 自アプリの任意ルートが「画像」として取得されるのを防ぎます。
	UploadsPrefix string
	// TrustedSuffixes は信頼するストレージプロバイダのドメイン接尾辞です。
	TrustedSuffixes []string
	// AllowLoopback は非本番モードでのみ true にし、
	// localhost / ループバックへの http アクセスを許可します。
	AllowLoopback bool
	// ResolveTimeout は名前解決のタイムアウトです。ゼロ値は 2 秒です。
	ResolveTimeout time.Duration
	// Resolver は名前解決の実装です。nil の場合は net.DefaultResolver を使います。
	Resolver IPResolver
}

// Validator は URL 取得可否の判定器です。構築後の状態は不変で、
// 複数のリクエストから並行に利用できます。
type Validator struct {
	cfg Config
}

// NewValidator は設定を注入して Validator を初期化します。
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.AppHost == "" {
		return nil, fmt.Errorf("AppHost is required")
	}
	if cfg.UploadsPrefix == "" {
		return nil, fmt.Errorf("UploadsPrefix is required")
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 2 * time.Second
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	return &Validator{cfg: cfg}, nil
}

// Validate は URL を検証し、安全と判断した場合のみパース済み URL を返します。
// 規則は順に適用され、最初の違反で即座に失敗します。
func (v *Validator) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, ErrInvalidURL
	}

	// user:pass@host 形式は攻撃によく使われるため一律拒否
	if parsed.User != nil {
		return nil, ErrCredentialsNotAllowed
	}

	host := parsed.Hostname()
	if err := v.checkScheme(parsed.Scheme, host); err != nil {
		return nil, err
	}
	if err := v.checkHostAllowed(host, parsed.Path); err != nil {
		return nil, err
	}

	// リテラル IP は名前解決せずその場で検査する
	if ip := net.ParseIP(host); ip != nil {
		if err := v.checkIP(ip); err != nil {
			return nil, err
		}
		return parsed, nil
	}

	if v.cfg.AllowLoopback && host == "localhost" {
		return parsed, nil
	}

	// DNS リバインディング対策: すべてのアドレスレコードを解決して検査する。
	// 解決失敗・タイムアウトは fail closed。
	if err := v.checkResolvedIPs(ctx, host); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (v *Validator) checkScheme(scheme, host string) error {
	switch scheme {
	case "https":
		return nil
	case "http":
		// 非本番モードのループバックのみ http を許容する狭い例外
		if v.cfg.AllowLoopback && isLoopbackHost(host) {
			return nil
		}
		return ErrSchemeNotAllowed
	default:
		return ErrSchemeNotAllowed
	}
}

func (v *Validator) checkHostAllowed(host, path string) error {
	if host == v.cfg.AppHost {
		// 自ホストはアップロード領域のみ許可
		if !strings.HasPrefix(path, v.cfg.UploadsPrefix) {
			return ErrHostNotAllowed
		}
		return nil
	}
	if v.cfg.AllowLoopback && isLoopbackHost(host) {
		return nil
	}
	for _, suffix := range v.cfg.TrustedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return nil
		}
	}
	return ErrHostNotAllowed
}

func (v *Validator) checkResolvedIPs(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.ResolveTimeout)
	defer cancel()

	addrs, err := v.cfg.Resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		// 内部ネットワーク構成の漏洩を避けるため、詳細はログにのみ残す
		slog.WarnContext(ctx, "参照画像ホストの名前解決に失敗しました", "host", host, "error", err)
		return ErrHostUnresolvable
	}
	for _, addr := range addrs {
		if err := v.checkIP(addr.IP); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkIP(ip net.IP) error {
	if ip.IsLoopback() {
		if v.cfg.AllowLoopback {
			return nil
		}
		return ErrPrivateAddress
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return ErrPrivateAddress
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
