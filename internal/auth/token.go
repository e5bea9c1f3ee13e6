package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// CookieName はセッショントークンを保持するCookie名。
const CookieName = "auth_token"

// DefaultTokenTTL はトークンの既定有効期間（7日）。
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken はトークンの署名・形式・有効期限のいずれかが不正な場合に返す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はセッショントークンに含めるクレーム。
// 認可判定にはクレームの値ではなく、再取得したアカウントを使う。
type Claims struct {
	UserID  int64  `json:"userId"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// TokenManager はHS256署名のセッショントークンを発行・検証する。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption はTokenManagerの設定を変更する。
type TokenOption func(*TokenManager)

// WithTokenClock は現在時刻の取得関数を差し替える。テスト用。
func WithTokenClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager はTokenManagerを生成する。ttlが0以下の場合は既定値を使う。
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenOption) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	m := &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL はトークンの有効期間を返す。Cookieの有効期限に使う。
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue はアカウントのセッショントークンを発行する。
func (m *TokenManager) Issue(account *model.Account) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:  account.ID,
		Email:   account.Email,
		IsAdmin: account.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、クレームを返す。
// 不正なトークンにはErrInvalidTokenをラップしたエラーを返す。
func (m *TokenManager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
