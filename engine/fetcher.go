package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/streamtv/cachepool/commons"
)

// Fetcher fetches resources from the network. Implementations must honor
// context cancellation and deadlines.
type Fetcher interface {
	// Fetch downloads the whole resource
	Fetch(ctx context.Context, url string) (*Resource, error)
	// FetchRange downloads length bytes starting at offset
	FetchRange(ctx context.Context, url string, offset int64, length int64) (*Resource, error)
}

// HTTPFetcher is a Fetcher on top of net/http
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
}

// NewHTTPFetcher creates a new HTTPFetcher. baseURL is prepended to
// path-only resource references; it may be empty when all references
// are absolute URLs.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (fetcher *HTTPFetcher) resolveURL(resourceRef string) string {
	if strings.HasPrefix(resourceRef, "http://") || strings.HasPrefix(resourceRef, "https://") {
		return resourceRef
	}
	return fetcher.baseURL + resourceRef
}

// Fetch downloads the whole resource
func (fetcher *HTTPFetcher) Fetch(ctx context.Context, url string) (*Resource, error) {
	return fetcher.do(ctx, url, -1, -1)
}

// FetchRange downloads length bytes starting at offset
func (fetcher *HTTPFetcher) FetchRange(ctx context.Context, url string, offset int64, length int64) (*Resource, error) {
	return fetcher.do(ctx, url, offset, length)
}

func (fetcher *HTTPFetcher) do(ctx context.Context, url string, offset int64, length int64) (*Resource, error) {
	fullURL := fetcher.resolveURL(url)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, commons.NewNetworkError(url, err)
	}

	if offset >= 0 && length > 0 {
		request.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	}

	response, err := fetcher.client.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, commons.NewCanceledError(url)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, commons.NewNetworkTimeoutError(url, err)
		}
		return nil, commons.NewNetworkError(url, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusBadRequest {
		return nil, commons.NewNetworkError(url, fmt.Errorf("unexpected status %d", response.StatusCode))
	}

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, commons.NewCanceledError(url)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, commons.NewNetworkTimeoutError(url, err)
		}
		return nil, commons.NewNetworkError(url, err)
	}

	return &Resource{
		URL:         url,
		ContentType: response.Header.Get("Content-Type"),
		Payload:     payload,
		TotalSize:   totalSizeOf(response),
	}, nil
}

// totalSizeOf extracts the full resource size from a range response,
// or the content length for a full response
func totalSizeOf(response *http.Response) int64 {
	contentRange := response.Header.Get("Content-Range")
	if len(contentRange) > 0 {
		// Content-Range: bytes 0-1023/146515
		parts := strings.Split(contentRange, "/")
		if len(parts) == 2 && parts[1] != "*" {
			size, err := strconv.ParseInt(parts[1], 10, 64)
			if err == nil {
				return size
			}
		}
	}

	if response.ContentLength >= 0 {
		return response.ContentLength
	}

	return -1
}
