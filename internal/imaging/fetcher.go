package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves raw image bytes by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// OwnedFetcher is a Fetcher that only serves URLs it issued, such as a blob
// store serving its own public URLs.
type OwnedFetcher interface {
	Fetcher
	Owns(url string) bool
}

// maxFetchBytes caps remote downloads.
const maxFetchBytes = 20 << 20

// HTTPFetcher downloads images over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("fetch image: body exceeds %d bytes", maxFetchBytes)
	}
	return data, nil
}

// RoutingFetcher sends URLs owned by the primary store there and everything
// else to the fallback.
type RoutingFetcher struct {
	owned    OwnedFetcher
	fallback Fetcher
}

func NewRoutingFetcher(owned OwnedFetcher, fallback Fetcher) *RoutingFetcher {
	return &RoutingFetcher{owned: owned, fallback: fallback}
}

func (f *RoutingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.owned != nil && f.owned.Owns(url) {
		return f.owned.Fetch(ctx, url)
	}
	if f.fallback == nil {
		return nil, fmt.Errorf("no fetcher for %s", url)
	}
	return f.fallback.Fetch(ctx, url)
}
