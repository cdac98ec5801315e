package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out", "crawler.jsonl")

	w, err := NewWriter(out, filepath.Join(dir, "tmp"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Append(ctx, []pipeline.Record{
		{URL: "https://example.ge/news/1"},
		{URL: "https://example.ge/news/2"},
	}))
	require.NoError(t, w.Append(ctx, []pipeline.Record{{URL: "https://example.ge/news/3"}}))
	assert.Equal(t, 3, w.Count())

	assert.False(t, Exists(out), "nothing published before finalize")
	require.NoError(t, w.Finalize())
	assert.True(t, Exists(out))

	records, err := ReadAll(out)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "https://example.ge/news/1", records[0].URL)
}

func TestWriterMergesWithExistingByURL(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "scraper.jsonl")

	first, err := NewWriter(out, dir)
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/a", Text: "old a"},
		{URL: "https://example.ge/b", Text: "old b"},
	}))
	require.NoError(t, first.Finalize())

	second, err := NewWriter(out, dir)
	require.NoError(t, err)
	require.NoError(t, second.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/b", Text: "new b"},
		{URL: "https://example.ge/c", Text: "new c"},
	}))
	require.NoError(t, second.Finalize())

	records, err := ReadAll(out)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byURL := map[string]string{}
	for _, rec := range records {
		byURL[rec.URL] = rec.Text
	}
	assert.Equal(t, "old a", byURL["https://example.ge/a"])
	assert.Equal(t, "new b", byURL["https://example.ge/b"], "rerun replaces the stale row")
	assert.Equal(t, "new c", byURL["https://example.ge/c"])
}

func TestWriterKeepsTranslationRows(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "parser.jsonl")

	w, err := NewWriter(out, dir)
	require.NoError(t, err)
	// Two pairs from the same page share a URL but are distinct rows.
	require.NoError(t, w.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/t/1", TranslationID: "id-1", SourceText: "a"},
		{URL: "https://example.ge/t/1", TranslationID: "id-2", SourceText: "b"},
	}))
	require.NoError(t, w.Finalize())

	records, err := ReadAll(out)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestWriterSweepsAbandonedScratchFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out", "scraper.jsonl")
	tmp := filepath.Join(dir, "tmp")

	// First run completes task A, checkpoints it, then dies before
	// finalizing. Its scratch file stays behind in tmp.
	first, err := NewWriter(out, tmp)
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/a", Text: "from run 1"},
	}))

	// The resumed run never re-attempts A; it only processes B.
	second, err := NewWriter(out, tmp)
	require.NoError(t, err)
	require.NoError(t, second.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/b", Text: "from run 2"},
	}))
	require.NoError(t, second.Finalize())

	records, err := ReadAll(out)
	require.NoError(t, err)
	byURL := map[string]string{}
	for _, rec := range records {
		byURL[rec.URL] = rec.Text
	}
	assert.Equal(t, "from run 1", byURL["https://example.ge/a"],
		"records written before the crash still land in the output")
	assert.Equal(t, "from run 2", byURL["https://example.ge/b"])

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "both scratch files removed after the merge")
}

func TestWriterSweepRecentRunWins(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "scraper.jsonl")
	tmp := filepath.Join(dir, "tmp")

	stale, err := NewWriter(out, tmp)
	require.NoError(t, err)
	require.NoError(t, stale.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/a", Text: "stale"},
	}))

	w, err := NewWriter(out, tmp)
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/a", Text: "current"},
	}))
	require.NoError(t, w.Finalize())

	records, err := ReadAll(out)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "current", records[0].Text)
}

func TestWriterSweepSkipsTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "scraper.jsonl")
	tmp := filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(tmp, 0o755))

	// A crash mid-write can cut the last line short; the complete records
	// before it are still recovered.
	leftover := filepath.Join(tmp, "scraper.jsonl.scratch.123")
	require.NoError(t, os.WriteFile(leftover,
		[]byte("{\"url\":\"https://example.ge/a\"}\n{\"url\":\"https://exam"), 0o644))

	w, err := NewWriter(out, tmp)
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), []pipeline.Record{
		{URL: "https://example.ge/b"},
	}))
	require.NoError(t, w.Finalize())

	records, err := ReadAll(out)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestWriterDiscardLeavesOutputAlone(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.jsonl")

	w, err := NewWriter(out, dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), []pipeline.Record{{URL: "https://example.ge/a"}}))
	w.Discard()

	assert.False(t, Exists(out))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file removed")
}

func TestReadAllSkipsBlankLinesAndRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"url\":\"https://a\"}\n\n{\"url\":\"https://b\"}\n"), 0o644))

	records, err := ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o644))
	_, err = ReadAll(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
