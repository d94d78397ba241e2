package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Fetcher returns the raw bytes behind an artifact URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FileFetcher reads plain paths and file:// URIs from local disk.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	path := strings.TrimPrefix(uri, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return data, nil
}

// Router dispatches on the URI scheme. URIs without a scheme are local files.
type Router struct {
	fetchers map[string]Fetcher
}

func NewRouter() *Router {
	return &Router{
		fetchers: map[string]Fetcher{
			"":     FileFetcher{},
			"file": FileFetcher{},
		},
	}
}

// Register binds scheme to f, replacing any existing binding.
func (r *Router) Register(scheme string, f Fetcher) {
	r.fetchers[scheme] = f
}

func (r *Router) Fetch(ctx context.Context, uri string) ([]byte, error) {
	scheme := Scheme(uri)
	f, ok := r.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for scheme %q (uri %s)", scheme, uri)
	}
	return f.Fetch(ctx, uri)
}

// Scheme returns the lower-cased URI scheme, or "" for bare paths.
func Scheme(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(uri[:i])
}

// SplitBucketKey parses "<scheme>://bucket/key/parts" into bucket and key.
func SplitBucketKey(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid artifact uri %s: %w", uri, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("artifact uri %s must look like %s://bucket/key", uri, u.Scheme)
	}
	return bucket, key, nil
}
