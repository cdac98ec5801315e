// Package stage wraps the pluggable crawl/scrape/parse collaborators into
// the uniform unit-of-work contract the worker pool drives.
package stage

import (
	"context"
	"fmt"

	"github.com/gpiradze/webharvest/internal/pipeline"
	"github.com/gpiradze/webharvest/internal/rawstore"
)

// Crawler discovers identifiers. Given a frontier URL it returns further
// URLs to enqueue and URLs ready to be emitted for the next step. The two
// sets may overlap.
type Crawler interface {
	Discover(ctx context.Context, url string) (follow []string, found []string, err error)
}

// Scraper downloads one identifier's raw content and reports its format.
type Scraper interface {
	Scrape(ctx context.Context, url string) (format string, content []byte, err error)
}

// Parser converts previously fetched raw content into structured records.
// One input may yield multiple records (e.g. several translation pairs per
// page).
type Parser interface {
	Parse(ctx context.Context, rec pipeline.Record, raw []byte) ([]pipeline.Record, error)
}

// NewCrawlStage adapts a Crawler.
func NewCrawlStage(name string, c Crawler) pipeline.Stage {
	return &crawlStage{name: name, crawler: c}
}

type crawlStage struct {
	name    string
	crawler Crawler
}

func (s *crawlStage) Name() string { return s.name }

func (s *crawlStage) Execute(ctx context.Context, task pipeline.Task) pipeline.TaskResult {
	follow, found, err := s.crawler.Discover(ctx, task.Payload.URL)
	if err != nil {
		return failure(err, task)
	}
	newTasks := make([]pipeline.Task, 0, len(follow))
	for _, u := range follow {
		newTasks = append(newTasks, pipeline.NewTask(pipeline.Record{URL: u}))
	}
	records := make([]pipeline.Record, 0, len(found))
	for _, u := range found {
		records = append(records, pipeline.Record{URL: u})
	}
	return pipeline.Succeed(records, newTasks...)
}

// NewScrapeStage adapts a Scraper, persisting fetched content to the raw
// store and emitting a record pointing at the blob.
func NewScrapeStage(name string, s Scraper, blobs rawstore.Store) pipeline.Stage {
	return &scrapeStage{name: name, scraper: s, blobs: blobs}
}

type scrapeStage struct {
	name    string
	scraper Scraper
	blobs   rawstore.Store
}

func (s *scrapeStage) Name() string { return s.name }

func (s *scrapeStage) Execute(ctx context.Context, task pipeline.Task) pipeline.TaskResult {
	url := task.Payload.URL
	format, content, err := s.scraper.Scrape(ctx, url)
	if err != nil {
		return failure(err, task)
	}
	path := rawstore.BlobPath(url, format, content)
	uri, err := s.blobs.Put(ctx, path, rawstore.ContentTypeFor(format), content)
	if err != nil {
		// Blob storage trouble is infrastructure, not a property of the
		// task; give it the retry budget.
		return pipeline.Retry(fmt.Sprintf("store content: %v", err))
	}
	return pipeline.Succeed([]pipeline.Record{{URL: url, BlobURI: uri, Format: format}})
}

// NewParseStage adapts a Parser, loading the record's raw content from the
// blob store first.
func NewParseStage(name string, p Parser, blobs rawstore.Store) pipeline.Stage {
	return &parseStage{name: name, parser: p, blobs: blobs}
}

type parseStage struct {
	name   string
	parser Parser
	blobs  rawstore.Store
}

func (s *parseStage) Name() string { return s.name }

func (s *parseStage) Execute(ctx context.Context, task pipeline.Task) pipeline.TaskResult {
	rec := task.Payload
	var raw []byte
	if rec.BlobURI != "" {
		var err error
		raw, err = s.blobs.Get(ctx, rec.BlobURI)
		if err != nil {
			return pipeline.Retry(fmt.Sprintf("load content: %v", err))
		}
	}
	records, err := s.parser.Parse(ctx, rec, raw)
	if err != nil {
		// Parsers work on already-fetched bytes; an error means the
		// content is unparseable, which retrying cannot fix.
		res := pipeline.Terminal(err.Error())
		res.Records = []pipeline.Record{{URL: rec.URL, Error: err.Error()}}
		return res
	}
	return pipeline.Succeed(records)
}

// failure converts a crawl/scrape collaborator error into a task result,
// attaching an error record on terminal failures so they appear in the
// output collection.
func failure(err error, task pipeline.Task) pipeline.TaskResult {
	if Classify(err) == ClassTerminal {
		res := pipeline.Terminal(err.Error())
		res.Records = []pipeline.Record{{URL: task.Payload.URL, Error: err.Error()}}
		return res
	}
	return pipeline.Retry(err.Error())
}
