// Package sites wires the built-in collaborators into a registry. Each site
// is described declaratively through step options rather than code, so
// adding a news source is a configuration change.
package sites

import (
	"fmt"

	"github.com/gpiradze/webharvest/internal/crawlgen"
	"github.com/gpiradze/webharvest/internal/parse"
	"github.com/gpiradze/webharvest/internal/scrape"
	"github.com/gpiradze/webharvest/internal/stage"
)

// Register installs the built-in factories for website. The factories read
// their site specifics from the step options' extra map:
//
//	crawler: "link" (default) or "sequence"
//	found_pattern, follow_pattern    link crawler regexes
//	url_template, first_id, last_id  sequence crawler bounds
//	scraper: "http" (default) or "headless"
//	text_selector, header_selector, category_selector,
//	time_selector, time_layout       article parser
//	source_selector, target_selector translation parser
//	category                         translation domain label
func Register(r *stage.Registry, website string) {
	r.RegisterCrawler(website, newCrawler)
	r.RegisterScraper(website, newScraper)
	r.RegisterParser(website, newParser)
}

func newCrawler(opts stage.Options) (stage.Crawler, error) {
	switch extraString(opts.Extra, "crawler", "link") {
	case "sequence":
		return crawlgen.NewSequence(crawlgen.SequenceConfig{
			URLTemplate: extraString(opts.Extra, "url_template", ""),
			First:       extraInt(opts.Extra, "first_id", 1),
			Last:        extraInt(opts.Extra, "last_id", 0),
			Batch:       extraInt(opts.Extra, "batch", 0),
		})
	case "link":
		return crawlgen.NewLink(crawlgen.LinkConfig{
			UserAgent:     opts.UserAgent,
			Timeout:       opts.Timeout,
			FoundPattern:  extraString(opts.Extra, "found_pattern", ""),
			FollowPattern: extraString(opts.Extra, "follow_pattern", ""),
		})
	default:
		return nil, fmt.Errorf("unknown crawler kind %q", opts.Extra["crawler"])
	}
}

func newScraper(opts stage.Options) (stage.Scraper, error) {
	switch extraString(opts.Extra, "scraper", "http") {
	case "headless":
		return scrape.NewHeadless(scrape.HeadlessConfig{
			MaxParallel:       extraInt(opts.Extra, "max_parallel", 1),
			UserAgent:         opts.UserAgent,
			NavigationTimeout: opts.Timeout,
		})
	case "http":
		return scrape.NewHTTP(scrape.Config{
			UserAgent: opts.UserAgent,
			Timeout:   opts.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown scraper kind %q", opts.Extra["scraper"])
	}
}

func newParser(opts stage.Options) (stage.Parser, error) {
	if opts.TranslationMode {
		return parse.NewTranslation(parse.TranslationConfig{
			Selectors: parse.TranslationSelectors{
				Source: extraString(opts.Extra, "source_selector", ""),
				Target: extraString(opts.Extra, "target_selector", ""),
			},
			SourceLang:       opts.SourceLang,
			TargetLang:       opts.TargetLang,
			Category:         extraString(opts.Extra, "category", ""),
			QualityThreshold: opts.QualityThreshold,
		})
	}
	return parse.NewArticle(parse.ArticleSelectors{
		Header:     extraString(opts.Extra, "header_selector", ""),
		Text:       extraString(opts.Extra, "text_selector", ""),
		Category:   extraString(opts.Extra, "category_selector", ""),
		Time:       extraString(opts.Extra, "time_selector", ""),
		TimeLayout: extraString(opts.Extra, "time_layout", ""),
	})
}

func extraString(extra map[string]any, key, def string) string {
	if v, ok := extra[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func extraInt(extra map[string]any, key string, def int) int {
	switch v := extra[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
