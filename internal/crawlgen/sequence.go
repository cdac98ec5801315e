package crawlgen

import (
	"context"
	"fmt"
	"strings"
)

// SequenceConfig controls the numeric-ID generator.
type SequenceConfig struct {
	// URLTemplate must contain one %d verb for the article ID.
	URLTemplate string
	First       int
	Last        int
	// Batch is how many IDs one Discover call emits; the remainder is
	// reached through a follow task so progress survives checkpoints.
	Batch int
}

// Sequence discovers article URLs by counting through numeric IDs instead
// of walking listing pages. Some sites expose no archive but serve
// /news/<n> for every n up to the newest article.
type Sequence struct {
	cfg SequenceConfig
}

// NewSequence validates the template and bounds.
func NewSequence(cfg SequenceConfig) (*Sequence, error) {
	if strings.Count(cfg.URLTemplate, "%d") != 1 {
		return nil, fmt.Errorf("url template must contain exactly one %%d: %q", cfg.URLTemplate)
	}
	if cfg.First < 0 || cfg.Last < cfg.First {
		return nil, fmt.Errorf("invalid id range [%d, %d]", cfg.First, cfg.Last)
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 1000
	}
	return &Sequence{cfg: cfg}, nil
}

// Discover interprets the task URL as a cursor of the form "seq:<n>" and
// emits the next batch of article URLs plus a follow cursor. A seed URL
// that is not a cursor starts the range from the beginning.
func (s *Sequence) Discover(_ context.Context, cursor string) ([]string, []string, error) {
	start := s.cfg.First
	if n, ok := parseCursor(cursor); ok {
		start = n
	}
	if start > s.cfg.Last {
		return nil, nil, nil
	}

	end := start + s.cfg.Batch - 1
	if end > s.cfg.Last {
		end = s.cfg.Last
	}

	found := make([]string, 0, end-start+1)
	for id := start; id <= end; id++ {
		found = append(found, fmt.Sprintf(s.cfg.URLTemplate, id))
	}

	var follow []string
	if end < s.cfg.Last {
		follow = []string{fmt.Sprintf("seq:%d", end+1)}
	}
	return follow, found, nil
}

func parseCursor(s string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(s, "seq:%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
