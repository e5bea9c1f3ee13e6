// Package handler はHTTPハンドラーを提供する。
//
// ハンドラーはmiddleware.HandlerFunc形式でエラーを返し、
// 分類とエラーレスポンスの書き込みはパイプラインに任せる。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avtodeleer/gooddrive/internal/auth"
	"github.com/avtodeleer/gooddrive/internal/middleware"
	"github.com/avtodeleer/gooddrive/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Account, string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	TokenTTL     time.Duration
}

// AuthHandler はログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	validate *validator.Validate
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.TokenTTL <= 0 {
		config.TokenTTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{
		service:  service,
		config:   config,
		validate: newValidator(),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=255"`
}

type accountResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	IsAdmin   bool   `json:"isAdmin"`
	IsStaff   bool   `json:"isStaff"`
	Token     string `json:"token,omitempty"`
}

// Login はメールアドレスとパスワードで認証し、トークンをCookieに設定する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Email = auth.NormalizeEmail(req.Email)
	if err := h.validate.Struct(req); err != nil {
		return err
	}

	account, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setTokenCookie(w, token, int(h.config.TokenTTL.Seconds()))

	writeData(w, http.StatusOK, accountResponse{
		ID:        account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		IsAdmin:   account.IsAdmin,
		IsStaff:   account.IsStaff,
		Token:     token,
	})
	return nil
}

// Logout はトークンCookieを削除する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	h.setTokenCookie(w, "", -1)
	writeData(w, http.StatusOK, nil)
	return nil
}

// Me は現在のリクエストに紐付くアカウント情報を返す。
// GET /api/auth/verify（/api/auth/meは同じ応答の別名）
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) error {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		return model.NewUnauthorizedError("Not authenticated")
	}

	writeData(w, http.StatusOK, accountResponse{
		ID:        identity.AccountID,
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		IsAdmin:   identity.IsAdmin,
		IsStaff:   identity.IsStaff,
	})
	return nil
}

// setTokenCookie はトークンCookieを設定する。maxAgeが負の場合は削除になる。
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
