package parse

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

// TranslationSelectors names the CSS selectors for one site's parallel-text
// layout. Source and target are matched positionally: the Nth source
// element pairs with the Nth target element.
type TranslationSelectors struct {
	Source string
	Target string
}

// TranslationConfig controls the pair extractor.
type TranslationConfig struct {
	Selectors  TranslationSelectors
	SourceLang string
	TargetLang string
	// Category labels the corpus domain (news, legal, subtitles) on every
	// emitted pair. When empty, the page's own category carries through.
	Category         string
	QualityThreshold float64
}

// TranslationParser extracts aligned sentence pairs from a page. Pairs
// below the quality threshold are still emitted, flagged low-quality, so a
// later pass can revisit the scoring without refetching.
type TranslationParser struct {
	cfg   TranslationConfig
	newID func() string
}

// NewTranslation builds a TranslationParser.
func NewTranslation(cfg TranslationConfig) (*TranslationParser, error) {
	if cfg.Selectors.Source == "" || cfg.Selectors.Target == "" {
		return nil, fmt.Errorf("source and target selectors are required")
	}
	return &TranslationParser{cfg: cfg, newID: uuid.NewString}, nil
}

// Parse returns one record per aligned pair.
func (p *TranslationParser) Parse(_ context.Context, rec pipeline.Record, raw []byte) ([]pipeline.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	sources := textsOf(doc, p.cfg.Selectors.Source)
	targets := textsOf(doc, p.cfg.Selectors.Target)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no source segments matched selector %q", p.cfg.Selectors.Source)
	}
	if len(sources) != len(targets) {
		return nil, fmt.Errorf("segment count mismatch: %d source vs %d target", len(sources), len(targets))
	}

	category := rec.Category
	if p.cfg.Category != "" {
		category = []string{p.cfg.Category}
	}

	records := make([]pipeline.Record, 0, len(sources))
	for i := range sources {
		score := ScoreTranslation(sources[i], targets[i])
		records = append(records, pipeline.Record{
			URL:           rec.URL,
			BlobURI:       rec.BlobURI,
			Category:      category,
			SourceText:    sources[i],
			TargetText:    targets[i],
			SourceLang:    p.cfg.SourceLang,
			TargetLang:    p.cfg.TargetLang,
			QualityScore:  score,
			LowQuality:    score < p.cfg.QualityThreshold,
			TranslationID: p.newID(),
		})
	}
	return records, nil
}

func textsOf(doc *goquery.Document, selector string) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.Join(strings.Fields(s.Text()), " "))
	})
	return out
}
