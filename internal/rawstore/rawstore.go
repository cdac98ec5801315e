// Package rawstore persists raw fetched content between the scrape and
// parse steps.
package rawstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"mime"
	"net/url"
)

// Store writes raw artifacts and reads them back by URI.
type Store interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// BlobPath derives a stable storage path for a fetched page: the URL's host
// plus a content digest, so re-fetches of identical content land on the
// same object.
func BlobPath(pageURL, format string, content []byte) string {
	host := "unknown"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}
	ext := format
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%x.%s", host, sha256.Sum256(content), ext)
}

// ContentTypeFor maps a format label to a MIME type for storage metadata.
func ContentTypeFor(format string) string {
	switch format {
	case "html":
		return "text/html; charset=utf-8"
	case "json":
		return "application/json"
	case "pdf":
		return "application/pdf"
	default:
		if t := mime.TypeByExtension("." + format); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
