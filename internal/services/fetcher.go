package services

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Fetcher downloads raw page markup with bounded retries. It is the shared
// "fetch with retry" collaborator used by the regex and JSON-LD extraction
// tiers when no scraped markdown is available.
type Fetcher struct {
	httpClient  *http.Client
	userAgents  []string
	retryConfig RetryConfig
	maxBodySize int64
}

// RetryConfig defines retry behavior for failed requests.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// FetchResult is a fetched page body plus response metadata.
type FetchResult struct {
	URL        string
	Body       string
	StatusCode int
	FetchedIn  time.Duration
}

// NewFetcher creates a fetcher with browser-like TLS settings and a small
// bounded retry count.
func NewFetcher() *Fetcher {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},
		DisableKeepAlives: false,
		IdleConnTimeout:   90 * time.Second,
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		retryConfig: RetryConfig{
			MaxRetries:    2,
			InitialDelay:  1 * time.Second,
			MaxDelay:      8 * time.Second,
			BackoffFactor: 2.0,
		},
		maxBodySize: 2 << 20, // 2MB is plenty for event pages
	}
}

// NewFetcherWithTimeout creates a fetcher with a custom per-request timeout.
func NewFetcherWithTimeout(timeout time.Duration) *Fetcher {
	f := NewFetcher()
	f.httpClient.Timeout = timeout
	return f
}

// Fetch downloads a page, retrying transient failures with exponential
// backoff. Client errors (4xx) are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= f.retryConfig.MaxRetries; attempt++ {
		result, err := f.attemptFetch(ctx, url)
		if err == nil {
			result.FetchedIn = time.Since(start)
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		// 4xx responses and malformed URLs will not improve on retry
		if strings.Contains(err.Error(), "status 4") {
			break
		}
		if attempt < f.retryConfig.MaxRetries {
			delay := f.calculateDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", f.retryConfig.MaxRetries+1, lastErr)
}

func (f *Fetcher) attemptFetch(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgents[rand.Intn(len(f.userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8,fr;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &FetchResult{
		URL:        url,
		Body:       string(body),
		StatusCode: resp.StatusCode,
	}, nil
}

// calculateDelay computes backoff with jitter for the next retry.
func (f *Fetcher) calculateDelay(attempt int) time.Duration {
	delay := float64(f.retryConfig.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= f.retryConfig.BackoffFactor
	}
	if delay > float64(f.retryConfig.MaxDelay) {
		delay = float64(f.retryConfig.MaxDelay)
	}
	jitter := delay * 0.2 * rand.Float64()
	return time.Duration(delay + jitter)
}
