package middleware

import "net/http"

// SetCORSHeaders は指定されたオリジンに対するCORSヘッダーを設定する。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
func SetCORSHeaders(h http.Header, allowedOrigin string) {
	h.Set("Access-Control-Allow-Origin", allowedOrigin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", "86400")
	h.Add("Vary", "Origin")
}

// PreflightHandler はOPTIONSプリフライトリクエストに204で応答する。
// CORSヘッダーはパイプラインの装飾で付与される。
func PreflightHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
