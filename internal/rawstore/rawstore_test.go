package rawstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobPath_StablePerContent(t *testing.T) {
	t.Parallel()

	a := BlobPath("https://example.com/page", "html", []byte("<html>a</html>"))
	b := BlobPath("https://example.com/page", "html", []byte("<html>a</html>"))
	c := BlobPath("https://example.com/page", "html", []byte("<html>b</html>"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Contains(t, a, "example.com/")
	require.Contains(t, a, ".html")
}

func TestLocal_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	content := []byte("<html>page body</html>")
	uri, err := store.Put(context.Background(), "example.com/abc.html", "text/html", content)
	require.NoError(t, err)
	require.Contains(t, uri, "file://")

	got, err := store.Get(context.Background(), uri)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestLocal_RejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestMemory_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	uri, err := store.Put(context.Background(), "example.com/x.json", "application/json", []byte(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, "mem://example.com/x.json", uri)

	got, err := store.Get(context.Background(), uri)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(got))

	_, err = store.Get(context.Background(), "mem://missing")
	require.Error(t, err)
}
