// Package middleware はHTTPミドルウェアとリクエスト受付パイプラインを提供する。
package middleware

import (
	"context"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストに識別結果を格納するためのキー。
	identityContextKey = contextKey("identity")
	// errorSinkContextKey はハンドラーのエラーをパイプラインに渡すためのキー。
	errorSinkContextKey = contextKey("error_sink")
	// requestLogContextKey はアクセスログに追記する値を格納するためのキー。
	requestLogContextKey = contextKey("request_log")
)

// IdentityFromContext はリクエストコンテキストから識別結果を取得する。
// 匿名リクエストではnilを返す。
func IdentityFromContext(ctx context.Context) *model.SessionIdentity {
	identity, _ := ctx.Value(identityContextKey).(*model.SessionIdentity)
	return identity
}

// ContextWithIdentity はコンテキストに識別結果を注入する。
// テストやパイプライン以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.SessionIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// RequireIdentity は認証済みの識別結果を返す。匿名の場合はUnauthorizedエラーを返す。
func RequireIdentity(ctx context.Context) (*model.SessionIdentity, error) {
	identity := IdentityFromContext(ctx)
	if identity == nil {
		return nil, model.NewUnauthorizedError("Authentication required")
	}
	return identity, nil
}

// RequireAdmin は管理者の識別結果を返す。
// 匿名の場合はUnauthorized、管理者でない場合はForbiddenエラーを返す。
func RequireAdmin(ctx context.Context) (*model.SessionIdentity, error) {
	identity, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if !identity.IsAdmin {
		return nil, model.NewForbiddenError("Admin access required")
	}
	return identity, nil
}
