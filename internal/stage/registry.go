package stage

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options carries the per-step knobs a collaborator factory may consult.
type Options struct {
	Logger           *zap.Logger
	UserAgent        string
	Timeout          time.Duration
	TranslationMode  bool
	SourceLang       string
	TargetLang       string
	QualityThreshold float64
	Extra            map[string]any
}

// CrawlerFactory builds a Crawler for one site.
type CrawlerFactory func(opts Options) (Crawler, error)

// ScraperFactory builds a Scraper for one site.
type ScraperFactory func(opts Options) (Scraper, error)

// ParserFactory builds a Parser for one site.
type ParserFactory func(opts Options) (Parser, error)

// Registry maps site names to collaborator factories. A pipeline definition
// names its site; the orchestrator looks the factories up here. An unknown
// name is a configuration mistake and aborts the step.
type Registry struct {
	crawlers map[string]CrawlerFactory
	scrapers map[string]ScraperFactory
	parsers  map[string]ParserFactory
}

func NewRegistry() *Registry {
	return &Registry{
		crawlers: make(map[string]CrawlerFactory),
		scrapers: make(map[string]ScraperFactory),
		parsers:  make(map[string]ParserFactory),
	}
}

func (r *Registry) RegisterCrawler(site string, f CrawlerFactory) {
	r.crawlers[site] = f
}

func (r *Registry) RegisterScraper(site string, f ScraperFactory) {
	r.scrapers[site] = f
}

func (r *Registry) RegisterParser(site string, f ParserFactory) {
	r.parsers[site] = f
}

func (r *Registry) Crawler(site string, opts Options) (Crawler, error) {
	f, ok := r.crawlers[site]
	if !ok {
		return nil, fmt.Errorf("no crawler registered for site %q", site)
	}
	return f(opts)
}

func (r *Registry) Scraper(site string, opts Options) (Scraper, error) {
	f, ok := r.scrapers[site]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for site %q", site)
	}
	return f(opts)
}

func (r *Registry) Parser(site string, opts Options) (Parser, error) {
	f, ok := r.parsers[site]
	if !ok {
		return nil, fmt.Errorf("no parser registered for site %q", site)
	}
	return f(opts)
}
