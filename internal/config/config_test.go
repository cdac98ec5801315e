package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
website: rustavi2
storage:
  provider: gcs
  gcs_bucket: harvest-raw
checkpoint:
  provider: file
  dir: /var/lib/webharvest/checkpoints
events:
  provider: memory
status:
  enabled: true
  addr: ":9090"
logging:
  development: false
steps:
  - name: Crawler
    output: data/rustavi2/crawler.jsonl
    options:
      start_urls: ["https://rustavi2.ge/ka/news"]
      max_retries: 5
      backoff_min: 0.5
      backoff_max: 3
      backoff_factor: 2.5
      num_processes: 8
      checkpoint_count: 50
      sleep_time: 0.25
  - name: Scraper
    input: data/rustavi2/crawler.jsonl
    output: data/rustavi2/scraper.jsonl
  - name: Parser
    input: data/rustavi2/scraper.jsonl
    output: data/rustavi2/parser.jsonl
    options:
      translation_mode: true
      source_lang: ka
      target_lang: en
      quality_threshold: 0.5
`

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "rustavi2", cfg.Website)
	assert.Equal(t, "gcs", cfg.Storage.Provider)
	assert.Equal(t, "harvest-raw", cfg.Storage.GCSBucket)
	assert.True(t, cfg.Status.Enabled)
	assert.False(t, cfg.Logging.Development)

	require.Len(t, cfg.Steps, 3)
	crawl := cfg.Steps[0]
	assert.Equal(t, "Crawler", crawl.Name)
	assert.Equal(t, 5, crawl.Options.RetryBudget())
	assert.Equal(t, 500*time.Millisecond, crawl.Options.BackoffMinDuration())
	assert.Equal(t, 3*time.Second, crawl.Options.BackoffMaxDuration())
	assert.Equal(t, 250*time.Millisecond, crawl.Options.SleepDuration())
	assert.Equal(t, 8, crawl.Options.NumProcesses)
	assert.Equal(t, 50, crawl.Options.CheckpointCount)

	parser := cfg.Steps[2]
	assert.True(t, parser.Options.TranslationMode)
	assert.Equal(t, 0.5, parser.Options.QualityCutoff())
}

func TestLoadAppliesStepDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
website: example
steps:
  - name: Scraper
    input: in.jsonl
    output: out.jsonl
`))
	require.NoError(t, err)

	o := cfg.Steps[0].Options
	assert.Equal(t, 3, o.RetryBudget())
	assert.Equal(t, 1.0, o.BackoffMin)
	assert.Equal(t, 5.0, o.BackoffMax)
	assert.Equal(t, 2.0, o.BackoffFactor)
	assert.Equal(t, 4, o.NumProcesses)
	assert.Equal(t, 100, o.CheckpointCount)
	assert.Equal(t, 15*time.Second, o.Timeout())
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, "file", cfg.Checkpoint.Provider)
	assert.Equal(t, "none", cfg.Events.Provider)
}

func TestLoadKeepsExplicitZeroes(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
website: example
steps:
  - name: Scraper
    input: in.jsonl
    output: out.jsonl
    options:
      max_retries: 0
      quality_threshold: 0
`))
	require.NoError(t, err)

	o := cfg.Steps[0].Options
	assert.Equal(t, 0, o.RetryBudget(), "zero retries is a valid budget, not an absent key")
	assert.Equal(t, 0.0, o.QualityCutoff(), "a zero cutoff flags nothing, and stays zero")
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing website", "steps:\n  - name: Crawler\n    output: out.jsonl\n", "website"},
		{"no steps", "website: x\n", "at least one step"},
		{"missing output", "website: x\nsteps:\n  - name: Crawler\n", "output"},
		{
			"bad backoff range",
			"website: x\nsteps:\n  - name: Crawler\n    output: o\n    options:\n      backoff_min: 5\n      backoff_max: 1\n",
			"backoff range",
		},
		{
			"bad factor",
			"website: x\nsteps:\n  - name: Crawler\n    output: o\n    options:\n      backoff_factor: 0.5\n",
			"backoff_factor",
		},
		{
			"gcs without bucket",
			"website: x\nstorage:\n  provider: gcs\nsteps:\n  - name: Crawler\n    output: o\n",
			"gcs_bucket",
		},
		{
			"postgres without dsn",
			"website: x\ncheckpoint:\n  provider: postgres\nsteps:\n  - name: Crawler\n    output: o\n",
			"checkpoint.dsn",
		},
		{
			"unknown events provider",
			"website: x\nevents:\n  provider: kafka\nsteps:\n  - name: Crawler\n    output: o\n",
			"events.provider",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
