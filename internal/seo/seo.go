// Package seo はサイトマップとRSSフィードを生成する。
//
// いずれもカタログの現在の内容から毎回組み立てる。
// 生成結果のキャッシュはHTTPレスポンスのCache-Controlに任せる。
package seo

import (
	"context"
	"strings"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/security"
)

// ContentType はサイトマップとRSSのレスポンスに使うContent-Type。
const ContentType = "application/xml; charset=utf-8"

// CacheControl はサイトマップとRSSのレスポンスに使うCache-Control。
const CacheControl = "public, max-age=3600"

// BrandLister はブランド一覧を取得する。
type BrandLister interface {
	List(ctx context.Context) ([]*model.Brand, error)
}

// PartLister は公開対象の部品一覧を取得する。
type PartLister interface {
	ListAvailable(ctx context.Context) ([]*model.Part, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Part, error)
}

// Generator はサイトマップとRSSフィードを生成する。
type Generator struct {
	baseURL   string
	brands    BrandLister
	parts     PartLister
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// Option はGeneratorの設定を変更する。
type Option func(*Generator)

// WithClock は生成日時の取得に使う関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator はGeneratorを生成する。baseURL末尾の"/"は取り除く。
func NewGenerator(baseURL string, brands BrandLister, parts PartLister, sanitizer security.ContentSanitizer, opts ...Option) *Generator {
	g := &Generator{
		baseURL:   strings.TrimRight(baseURL, "/"),
		brands:    brands,
		parts:     parts,
		sanitizer: sanitizer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) productURL(id int64) string {
	return g.baseURL + "/product/" + formatID(id)
}
