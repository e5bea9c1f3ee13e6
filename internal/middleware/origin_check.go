package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// NewOriginCheckMiddleware は状態変更リクエストのOriginヘッダーを検証するミドルウェアを返す。
// Cookie認証と組み合わせたクロスサイトからのフォーム送信を防ぐ。
// Originヘッダーのないリクエスト（同一オリジンのナビゲーションやCLI）は通過させる。
func NewOriginCheckMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if n := normalizeOrigin(o); n != "" {
			allowed[n] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" || allowed[normalizeOrigin(origin)] {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("cross-site request rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			reportError(w, r, model.NewForbiddenError("Cross-site request forbidden"))
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// normalizeOrigin はURLからscheme://hostの形式のオリジンを取り出す。
func normalizeOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
