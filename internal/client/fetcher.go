package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrDownloadFailed wraps every input fetch failure (network or non-2xx).
var ErrDownloadFailed = errors.New("download failed")

// Fetcher retrieves source media referenced by URL.
type Fetcher interface {
	Download(ctx context.Context, url, destPath string) (int64, error)
	FetchBytes(ctx context.Context, url string, maxBytes int64) ([]byte, string, error)
}

// HTTPFetcher downloads over plain HTTP(S).
type HTTPFetcher struct {
	httpClient *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPFetcher{httpClient: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) open(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned status %d", ErrDownloadFailed, url, resp.StatusCode)
	}
	return resp, nil
}

// Download streams url into destPath. A partial file is removed on error.
func (f *HTTPFetcher) Download(ctx context.Context, url, destPath string) (int64, error) {
	resp, err := f.open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return 0, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	return n, nil
}

// FetchBytes reads the whole body, refusing anything larger than maxBytes.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	resp, err := f.open(ctx, url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrDownloadFailed, url, maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
