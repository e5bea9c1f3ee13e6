package seo

import (
	"bytes"
	"cmp"
	"context"
	"encoding/xml"
	"fmt"
	"slices"
	"strconv"

	"github.com/avtodeleer/gooddrive/internal/model"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type staticPage struct {
	path       string
	changeFreq string
	priority   string
}

var staticPages = []staticPage{
	{"/", "daily", "1.0"},
	{"/catalog", "daily", "0.9"},
	{"/cart", "weekly", "0.7"},
	{"/checkout", "weekly", "0.7"},
}

// Sitemap は静的ページ、ブランド別カタログ、在庫のある部品ページを列挙したサイトマップを返す。
// 部品は更新日時の新しい順に並べる。
func (g *Generator) Sitemap(ctx context.Context) ([]byte, error) {
	brands, err := g.brands.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	parts, err := g.parts.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}

	today := g.now().UTC().Format(dateLayout)
	set := urlSet{Xmlns: sitemapNamespace}

	for _, p := range staticPages {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        g.baseURL + p.path,
			LastMod:    today,
			ChangeFreq: p.changeFreq,
			Priority:   p.priority,
		})
	}

	for _, b := range brands {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        g.baseURL + "/catalog?brand=" + formatID(b.ID),
			LastMod:    today,
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}

	slices.SortStableFunc(parts, func(a, b *model.Part) int {
		return cmp.Compare(b.UpdatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	})
	for _, p := range parts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        g.productURL(p.ID),
			LastMod:    p.UpdatedAt.UTC().Format(dateLayout),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}

	return encodeXML(set)
}

const dateLayout = "2006-01-02"

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func encodeXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
