// Package crawlgen provides the built-in identifier discoverers: a Colly
// link crawler for listing pages and a sequence generator for sites with
// numeric article IDs.
package crawlgen

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/gpiradze/webharvest/internal/stage"
)

// LinkConfig controls the link crawler.
type LinkConfig struct {
	UserAgent string
	Timeout   time.Duration
	// FoundPattern selects links to emit for the next step. Empty matches
	// every same-host link.
	FoundPattern string
	// FollowPattern selects links to enqueue for further discovery,
	// typically pagination. Empty follows nothing.
	FollowPattern string
}

// LinkCrawler visits one page and classifies its anchors into found
// identifiers and follow-up pages.
type LinkCrawler struct {
	cfg           LinkConfig
	found         *regexp.Regexp
	follow        *regexp.Regexp
	baseCollector *colly.Collector
}

// NewLink builds a LinkCrawler, compiling the configured patterns.
func NewLink(cfg LinkConfig) (*LinkCrawler, error) {
	lc := &LinkCrawler{cfg: cfg}
	var err error
	if cfg.FoundPattern != "" {
		if lc.found, err = regexp.Compile(cfg.FoundPattern); err != nil {
			return nil, fmt.Errorf("compile found pattern: %w", err)
		}
	}
	if cfg.FollowPattern != "" {
		if lc.follow, err = regexp.Compile(cfg.FollowPattern); err != nil {
			return nil, fmt.Errorf("compile follow pattern: %w", err)
		}
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	lc.baseCollector = c
	return lc, nil
}

// Discover fetches pageURL and returns the matched links. Duplicate hrefs
// within one page are collapsed here; cross-page dedup is the frontier's
// job.
func (lc *LinkCrawler) Discover(ctx context.Context, pageURL string) ([]string, []string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, stage.Permanent(fmt.Errorf("parse page url: %w", err))
	}

	var (
		follow, found []string
		seen          = map[string]struct{}{}
		fetchErr      error
	)

	collector := lc.baseCollector.Clone()
	if lc.cfg.UserAgent != "" {
		collector.UserAgent = lc.cfg.UserAgent
	}
	timeout := lc.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		abs, err := base.Parse(href)
		if err != nil || (abs.Scheme != "http" && abs.Scheme != "https") {
			return
		}
		link := abs.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}

		if lc.follow != nil && lc.follow.MatchString(link) {
			follow = append(follow, link)
		}
		switch {
		case lc.found != nil:
			if lc.found.MatchString(link) {
				found = append(found, link)
			}
		case abs.Host == base.Host:
			found = append(found, link)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &stage.StatusError{Code: r.StatusCode, URL: pageURL}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("discover canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, nil, fetchErr
		}
		if err != nil {
			return nil, nil, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		return follow, found, nil
	}
}
