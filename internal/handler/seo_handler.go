package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/avtodeleer/gooddrive/internal/seo"
)

// FeedGenerator はサイトマップとRSSの生成インターフェース。
type FeedGenerator interface {
	Sitemap(ctx context.Context) ([]byte, error)
	RSS(ctx context.Context) ([]byte, error)
}

// SEOHandler は/sitemap.xmlと/rss.xmlのHTTPハンドラー。
type SEOHandler struct {
	generator FeedGenerator
}

// NewSEOHandler はSEOHandlerを生成する。
func NewSEOHandler(generator FeedGenerator) *SEOHandler {
	return &SEOHandler{generator: generator}
}

// Sitemap はサイトマップを返す。
// GET /sitemap.xml
func (h *SEOHandler) Sitemap(w http.ResponseWriter, r *http.Request) error {
	body, err := h.generator.Sitemap(r.Context())
	if err != nil {
		return fmt.Errorf("generate sitemap: %w", err)
	}
	writeXML(w, body)
	return nil
}

// RSS はRSSフィードを返す。
// GET /rss.xml
func (h *SEOHandler) RSS(w http.ResponseWriter, r *http.Request) error {
	body, err := h.generator.RSS(r.Context())
	if err != nil {
		return fmt.Errorf("generate rss: %w", err)
	}
	writeXML(w, body)
	return nil
}

func writeXML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", seo.ContentType)
	w.Header().Set("Cache-Control", seo.CacheControl)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
