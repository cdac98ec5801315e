package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		StepID:       "rustavi2/Scraper",
		ConfigDigest: "digest-1",
		Version:      3,
		SavedAt:      time.Unix(1700000000, 0).UTC(),
		Completed:    []string{"https://example.com/a", "https://example.com/b"},
		Failed:       []Failure{{Key: "https://example.com/404", Reason: "status 404"}},
		Pending: []pipeline.Task{{
			Key:          "https://example.com/c",
			Payload:      pipeline.Record{URL: "https://example.com/c"},
			Attempt:      2,
			InitialDelay: 1500 * time.Millisecond,
			NextEligible: time.Unix(1700000100, 0).UTC(),
		}},
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	want := sampleSnapshot()
	require.NoError(t, store.Save(context.Background(), want))

	got, err := store.Load(context.Background(), want.StepID)
	require.NoError(t, err)
	require.Equal(t, want.Completed, got.Completed)
	require.Equal(t, want.Failed, got.Failed)
	require.Equal(t, want.Version, got.Version)
	require.Len(t, got.Pending, 1)
	require.Equal(t, 2, got.Pending[0].Attempt)
	require.Equal(t, 1500*time.Millisecond, got.Pending[0].InitialDelay)
}

func TestFileStore_LoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "nope/Crawler")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_SaveLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ".json", filepath.Ext(entries[0].Name()))
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	snap := sampleSnapshot()
	require.NoError(t, store.Save(context.Background(), snap))
	require.NoError(t, store.Delete(context.Background(), snap.StepID))
	require.NoError(t, store.Delete(context.Background(), snap.StepID))

	_, err = store.Load(context.Background(), snap.StepID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfigDigest_DetectsDrift(t *testing.T) {
	t.Parallel()

	d1, err := ConfigDigest([]string{"https://example.com/1"}, map[string]any{"max_retries": 3})
	require.NoError(t, err)
	d2, err := ConfigDigest([]string{"https://example.com/2"}, map[string]any{"max_retries": 3})
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)

	snap := sampleSnapshot()
	snap.ConfigDigest = d1
	require.NoError(t, Verify(snap, d1))
	require.ErrorIs(t, Verify(snap, d2), ErrConfigDrift)
}
