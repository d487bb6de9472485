package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind 区分 access 与 refresh 两类令牌。
//
// kind 写进签名负载里，refresh 令牌不能当 access 使用，反之亦然。
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalidToken 签名不合法、负载损坏、已过期或 kind 不匹配时返回。
//
// 对外不区分具体原因。
var ErrInvalidToken = errors.New("invalid or expired token")

type claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// Issuer 签发和校验 JWT。
//
// 密钥与有效期在构造时一次性传入，调用期间不读任何进程级状态。
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer 创建 Issuer。
//
// 参数:
//   - secret: HS256 签名密钥
//   - accessTTL: access 令牌有效期（分钟级）
//   - refreshTTL: refresh 令牌有效期（天级）
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue 为 subject 签发指定类型的令牌，有效期取构造时的配置。
func (i *Issuer) Issue(subject string, kind Kind) (string, error) {
	ttl := i.accessTTL
	if kind == KindRefresh {
		ttl = i.refreshTTL
	}
	return i.IssueWithTTL(subject, kind, ttl)
}

// IssueWithTTL 以显式有效期签发令牌。
func (i *Issuer) IssueWithTTL(subject string, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: string(kind),
	})
	return tok.SignedString(i.secret)
}

// Pair 签发一对新的 access + refresh 令牌。
func (i *Issuer) Pair(subject string) (access string, refresh string, err error) {
	access, err = i.Issue(subject, KindAccess)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.Issue(subject, KindRefresh)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Verify 校验令牌并返回 subject。
//
// 签名错误、负载损坏、过期、kind 不匹配统一返回 ErrInvalidToken。
func (i *Issuer) Verify(tokenString string, expected Kind) (string, error) {
	parsed := &claims{}
	tok, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	if parsed.Kind != string(expected) {
		return "", ErrInvalidToken
	}
	if parsed.Subject == "" {
		return "", ErrInvalidToken
	}
	return parsed.Subject, nil
}
