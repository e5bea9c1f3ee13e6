// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// ErrorKind はクライアントに返すエラーの分類を表す。
// 1つのエラーは必ず1つのKindを持ち、KindからHTTPステータスが一意に決まる。
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInternal     ErrorKind = "internal"
)

// kindStatus はKindからHTTPステータスへの固定マッピング。
var kindStatus = map[ErrorKind]int{
	KindValidation:   http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindRateLimited:  http.StatusTooManyRequests,
	KindInternal:     http.StatusInternalServerError,
}

// HTTPStatus はKindに対応するHTTPステータスコードを返す。
// 未知のKindは500として扱う。
func (k ErrorKind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FieldIssue はバリデーションエラーの項目単位の詳細を表す。
type FieldIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// APIError は統一エラーフォーマットを表す。
// ハンドラーやサービスが返したエラーはすべてAPIErrorに分類されてからレスポンスになる。
type APIError struct {
	Kind    ErrorKind
	Code    string // 機械可読なエラーコード
	Message string // 人間向けのメッセージ
	Details any    // 任意の詳細。ValidationではFieldIssueのスライス
	// RetryAfter はRateLimitedの場合のみ設定される再試行までの秒数。
	RetryAfter int

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は分類前の元のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// HTTPStatus はエラーのHTTPステータスコードを返す。
func (e *APIError) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// WithCause は元のエラーを保持したAPIErrorを返す。
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDuplicateEntry    = "DUPLICATE_ENTRY"
	ErrCodeForeignKey        = "FOREIGN_KEY_ERROR"
	ErrCodeRequiredField     = "REQUIRED_FIELD_MISSING"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeDatabase          = "DATABASE_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string, details any) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// idが空の場合はリソース名のみのメッセージになる。
func NewNotFoundError(resource string, id string) *APIError {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s with id %s not found", resource, id)
	}
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeNotFound,
		Message: msg,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	if message == "" {
		message = "Unauthorized"
	}
	return &APIError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(message string) *APIError {
	if message == "" {
		message = "Forbidden"
	}
	return &APIError{
		Kind:    KindForbidden,
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewConflictError は一意制約違反などの競合エラーを生成する。
func NewConflictError(message string, details any) *APIError {
	return &APIError{
		Kind:    KindConflict,
		Code:    ErrCodeDuplicateEntry,
		Message: message,
		Details: details,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
// retryAfterSecondsは1以上に丸める。
func NewRateLimitedError(retryAfterSeconds int) *APIError {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &APIError{
		Kind:       KindRateLimited,
		Code:       ErrCodeRateLimitExceeded,
		Message:    "Too many requests",
		RetryAfter: retryAfterSeconds,
	}
}

// NewInternalError は内部エラーを生成する。
// detailsは本番以外の環境でのみクライアントに返される。
func NewInternalError(details any) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Code:    ErrCodeInternal,
		Message: "Internal server error",
		Details: details,
	}
}
