// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はカタログ由来のテキストからHTMLを除去し、
// フィードや外部公開面へ安全なプレーンテキストとして出力する。
// bluemondayのStrictPolicyで全タグを落とした後、実体参照を戻して
// 出力側のエンコーダに一度だけエスケープさせる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はHTMLからプレーンテキストを取り出すインターフェースを定義する。
type ContentSanitizer interface {
	// Sanitize は全てのタグを除去し、連続する空白を1つにまとめたテキストを返す。
	// script, styleの中身は捨てる。空文字列の入力には空文字列を返す。
	Sanitize(rawHTML string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はStrictPolicyを使うContentSanitizerを生成する。
// 返り値は複数のgoroutineから同時に使ってよい。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(rawHTML))
	return strings.Join(strings.Fields(text), " ")
}

// Truncate はテキストをrune単位でmaxまでに切り詰める。切り詰めた場合は末尾に"…"を付ける。
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
