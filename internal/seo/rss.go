package seo

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/security"
)

// RSSItemLimit はRSSフィードに載せる部品の件数。
const RSSItemLimit = 50

const (
	rssTitle          = "GoodDrive - Автозапчасти"
	rssDescription    = "Новые поступления автозапчастей в интернет-магазине GoodDrive"
	rssTTLMinutes     = 60
	descriptionMaxLen = 500
)

type rssDocument struct {
	XMLName      xml.Name   `xml:"rss"`
	Version      string     `xml:"version,attr"`
	XmlnsAtom    string     `xml:"xmlns:atom,attr"`
	XmlnsDC      string     `xml:"xmlns:dc,attr"`
	XmlnsContent string     `xml:"xmlns:content,attr"`
	Channel      rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate"`
	AtomLink      atomLink  `xml:"atom:link"`
	Copyright     string    `xml:"copyright"`
	TTL           int       `xml:"ttl"`
	Items         []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	GUID        rssGUID       `xml:"guid"`
	Description string        `xml:"description"`
	Creator     string        `xml:"dc:creator"`
	PubDate     string        `xml:"pubDate"`
	Category    string        `xml:"category,omitempty"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
	Content     cdata         `xml:"content:encoded"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// RSS は在庫のある部品を新しい順にRSSItemLimit件並べたRSS 2.0フィードを返す。
func (g *Generator) RSS(ctx context.Context) ([]byte, error) {
	parts, err := g.parts.ListRecent(ctx, RSSItemLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent parts: %w", err)
	}

	now := g.now().UTC()
	doc := rssDocument{
		Version:      "2.0",
		XmlnsAtom:    "http://www.w3.org/2005/Atom",
		XmlnsDC:      "http://purl.org/dc/elements/1.1/",
		XmlnsContent: "http://purl.org/rss/1.0/modules/content/",
		Channel: rssChannel{
			Title:         rssTitle,
			Link:          g.baseURL,
			Description:   rssDescription,
			Language:      "ru",
			LastBuildDate: now.Format(time.RFC1123Z),
			AtomLink: atomLink{
				Href: g.baseURL + "/rss.xml",
				Rel:  "self",
				Type: "application/rss+xml",
			},
			Copyright: fmt.Sprintf("© %d GoodDrive. Все права защищены.", now.Year()),
			TTL:       rssTTLMinutes,
		},
	}

	for _, p := range parts {
		doc.Channel.Items = append(doc.Channel.Items, g.rssItem(p))
	}

	return encodeXML(doc)
}

func (g *Generator) rssItem(p *model.Part) rssItem {
	link := g.productURL(p.ID)
	description := g.describe(p)

	item := rssItem{
		Title:       p.Title,
		Link:        link,
		GUID:        rssGUID{IsPermaLink: "true", Value: link},
		Description: description,
		Creator:     "GoodDrive",
		PubDate:     p.CreatedAt.UTC().Format(time.RFC1123Z),
		Category:    p.BrandName,
		Content:     cdata{Value: contentHTML(p, description, link)},
	}
	if p.ImageURL != "" {
		item.Enclosure = &rssEnclosure{URL: p.ImageURL, Type: "image/jpeg"}
	}
	return item
}

// describe は部品説明からHTMLを除去して返す。説明が空なら"<title> от <brand>"を返す。
func (g *Generator) describe(p *model.Part) string {
	description := g.sanitizer.Sanitize(p.Description)
	if description == "" {
		return fallbackDescription(p)
	}
	return security.Truncate(description, descriptionMaxLen)
}

func fallbackDescription(p *model.Part) string {
	if p.BrandName == "" {
		return p.Title
	}
	return p.Title + " от " + p.BrandName
}

func contentHTML(p *model.Part, description, link string) string {
	var b strings.Builder
	b.WriteString("<div>")
	if p.ImageURL != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="%s" style="max-width: 400px; height: auto;"/>`,
			html.EscapeString(p.ImageURL), html.EscapeString(p.Title))
	}
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(p.Title))
	fmt.Fprintf(&b, "<p><strong>Бренд:</strong> %s</p>", html.EscapeString(p.BrandName))
	fmt.Fprintf(&b, "<p><strong>Цена:</strong> %.2f ₽</p>", p.PriceOpt)
	fmt.Fprintf(&b, "<p><strong>Наличие:</strong> %d шт</p>", p.Available)
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(description))
	fmt.Fprintf(&b, `<p><a href="%s">Подробнее →</a></p>`, html.EscapeString(link))
	b.WriteString("</div>")
	return b.String()
}
