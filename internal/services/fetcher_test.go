package services

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher() *Fetcher {
	f := NewFetcher()
	f.retryConfig = RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
	return f
}

func TestFetchReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected a User-Agent header on outgoing requests")
		}
		w.Write([]byte("<html><title>Hannover Messe 2026</title></html>"))
	}))
	defer server.Close()

	result, err := newTestFetcher().Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(result.Body, "Hannover Messe") {
		t.Errorf("Expected body to contain page content, got %q", result.Body)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", result.StatusCode)
	}
	if result.FetchedIn <= 0 {
		t.Error("Expected FetchedIn to be populated")
	}
}

func TestFetchDecodesGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("<html>compressed event page</html>"))
		gz.Close()
	}))
	defer server.Close()

	result, err := newTestFetcher().Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(result.Body, "compressed event page") {
		t.Errorf("Expected decompressed body, got %q", result.Body)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected exactly 1 attempt for a 4xx response, got %d", got)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html>recovered</html>"))
	}))
	defer server.Close()

	result, err := newTestFetcher().Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected retries to recover, got error: %v", err)
	}
	if !strings.Contains(result.Body, "recovered") {
		t.Errorf("Expected the final successful body, got %q", result.Body)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestFetchRejectsEmptyURL(t *testing.T) {
	if _, err := newTestFetcher().Fetch(context.Background(), ""); err == nil {
		t.Error("Expected error for empty URL")
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := newTestFetcher().Fetch(ctx, server.URL); err == nil {
		t.Fatal("Expected error when context deadline expires")
	}
	if time.Since(start) > time.Second {
		t.Error("Expected cancellation to abort the fetch promptly")
	}
}
