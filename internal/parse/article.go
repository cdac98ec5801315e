// Package parse provides the built-in content extractors.
package parse

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

// ArticleSelectors names the CSS selectors for one site's article layout.
type ArticleSelectors struct {
	Header   string
	Text     string
	Category string
	Time     string
	// TimeLayout is the Go reference layout for the publication timestamp.
	// Empty disables time parsing.
	TimeLayout string
}

// ArticleParser extracts one structured record per page using goquery.
type ArticleParser struct {
	sel ArticleSelectors
}

// NewArticle builds an ArticleParser. The text selector is required; a
// page we cannot locate text in yields a parse error rather than an empty
// record.
func NewArticle(sel ArticleSelectors) (*ArticleParser, error) {
	if sel.Text == "" {
		return nil, fmt.Errorf("text selector is required")
	}
	return &ArticleParser{sel: sel}, nil
}

// Parse extracts header, body text, categories and publication time.
func (p *ArticleParser) Parse(_ context.Context, rec pipeline.Record, raw []byte) ([]pipeline.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := pipeline.Record{URL: rec.URL, BlobURI: rec.BlobURI, Format: rec.Format}

	out.Text = collapseWhitespace(doc.Find(p.sel.Text).Text())
	if out.Text == "" {
		return nil, fmt.Errorf("no text matched selector %q", p.sel.Text)
	}
	if p.sel.Header != "" {
		out.Header = collapseWhitespace(doc.Find(p.sel.Header).First().Text())
	}
	if p.sel.Category != "" {
		doc.Find(p.sel.Category).Each(func(_ int, s *goquery.Selection) {
			if c := strings.TrimSpace(s.Text()); c != "" {
				out.Category = append(out.Category, c)
			}
		})
	}
	if p.sel.Time != "" && p.sel.TimeLayout != "" {
		raw := strings.TrimSpace(doc.Find(p.sel.Time).First().Text())
		if raw == "" {
			raw, _ = doc.Find(p.sel.Time).First().Attr("datetime")
		}
		if ts, err := time.Parse(p.sel.TimeLayout, strings.TrimSpace(raw)); err == nil {
			out.Time = &ts
		}
	}

	return []pipeline.Record{out}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
