package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// Stackは開発環境でpanicを捕捉した場合のみ設定される。
type ErrorResponseBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// isAPIPath はJSONで応答するAPIパスかどうかを判定する。
func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// WriteError は分類済みエラーをレスポンスとして書き込む。
// APIパスにはJSON、それ以外のパスには最小限のテキストで応答する。
// RateLimitedの場合はRetry-Afterヘッダーを付与する。
func WriteError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	writeError(w, r, apiErr, "")
}

func writeError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError, stack string) {
	h := w.Header()
	h.Set("X-Error-Code", apiErr.Code)
	if apiErr.Kind == model.KindRateLimited {
		h.Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	h.Del("Content-Length")

	status := apiErr.HTTPStatus()
	if !isAPIPath(r.URL.Path) {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		fmt.Fprintf(w, "%d %s\n", status, apiErr.Message)
		return
	}

	h.Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Error:   apiErr.Message,
		Code:    apiErr.Code,
		Details: apiErr.Details,
		Stack:   stack,
	})
}
