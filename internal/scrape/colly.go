// Package scrape provides the built-in page downloaders.
package scrape

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/gpiradze/webharvest/internal/stage"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// HTTPScraper downloads pages over plain HTTP using a Colly collector.
type HTTPScraper struct {
	cfg           Config
	baseCollector *colly.Collector
}

// NewHTTP builds an HTTPScraper.
func NewHTTP(cfg Config) *HTTPScraper {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &HTTPScraper{cfg: cfg, baseCollector: c}
}

// Scrape executes a single GET. Non-2xx responses are reported as
// StatusError so callers can tell throttling apart from dead pages.
func (s *HTTPScraper) Scrape(ctx context.Context, url string) (string, []byte, error) {
	var (
		format   string
		content  []byte
		fetchErr error
	)

	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		format = formatFromContentType(r.Headers.Get("Content-Type"))
		content = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &stage.StatusError{Code: r.StatusCode, URL: url}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", nil, fmt.Errorf("scrape canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return "", nil, fetchErr
		}
		if err != nil {
			return "", nil, fmt.Errorf("visit %s: %w", url, err)
		}
		return format, content, nil
	}
}

func formatFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "html"
	}
	switch {
	case strings.Contains(mt, "json"):
		return "json"
	case strings.Contains(mt, "xml"):
		return "xml"
	case strings.HasPrefix(mt, "text/plain"):
		return "txt"
	default:
		return "html"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
