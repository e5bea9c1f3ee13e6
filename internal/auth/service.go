// Package auth はパスワード認証、セッショントークン、リクエストの識別を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/repository"
)

// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しない場合の原因エラー。
var ErrInvalidCredentials = errors.New("invalid credentials")

func invalidCredentials() error {
	return model.NewUnauthorizedError("Invalid credentials").WithCause(ErrInvalidCredentials)
}

// dummyHash はアカウントが存在しない場合にも照合時間を揃えるためのハッシュ。
var dummyHash, _ = HashPassword("gooddrive-dummy-password")

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	tokens   *TokenManager
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository, tokens *TokenManager) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login はメールアドレスとパスワードを照合し、アカウントとセッショントークンを返す。
// アカウントが存在しない、無効化されている、パスワードが一致しない場合は
// いずれもErrInvalidCredentialsを原因とするUnauthorizedエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Account, string, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, "", fmt.Errorf("failed to find account: %w", err)
	}

	if account == nil || !account.IsActive {
		VerifyPassword(dummyHash, password)
		return nil, "", invalidCredentials()
	}
	if !VerifyPassword(account.PasswordHash, password) {
		slog.Info("login rejected", slog.Int64("account_id", account.ID))
		return nil, "", invalidCredentials()
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("account logged in", slog.Int64("account_id", account.ID))
	return account, token, nil
}

// CreateAdmin は管理者アカウントを作成する。既存の場合は権限とパスワードを更新する。
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.UpsertAdmin(ctx, email, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to save admin account: %w", err)
	}

	slog.Info("admin account ensured",
		slog.Int64("account_id", account.ID),
		slog.String("email", account.Email),
	)
	return account, nil
}
