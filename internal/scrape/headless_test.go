package scrape

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeadlessLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHeadless(HeadlessConfig{MaxParallel: -1})
	require.Error(t, err)

	h, err := NewHeadless(HeadlessConfig{MaxParallel: 2})
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, 2, cap(h.limiter))
	assert.Equal(t, 45*time.Second, h.cfg.NavigationTimeout)
}

func TestDocumentMetaCapturesMainDocument(t *testing.T) {
	t.Parallel()

	meta := newDocumentMeta()
	assert.Equal(t, http.StatusOK, meta.status())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	assert.Equal(t, http.StatusOK, meta.status(), "sub-resource status ignored")

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403},
	})
	assert.Equal(t, http.StatusForbidden, meta.status())
}
