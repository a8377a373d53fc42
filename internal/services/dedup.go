package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ongoingRequest is one in-flight external call shared by every caller that
// computed the same fingerprint. The first caller runs the call and closes
// done; everyone else waits on it.
type ongoingRequest struct {
	fingerprint string
	requestID   string
	startedAt   time.Time
	done        chan struct{}
	result      interface{}
	err         error
}

// RequestDeduplicator collapses concurrent identical external calls into a
// single execution. Entries expire after 5 minutes and are purged by a
// periodic sweep, so an abandoned call cannot pin its fingerprint forever.
type RequestDeduplicator struct {
	mu       sync.Mutex
	inflight map[string]*ongoingRequest
	maxAge   time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRequestDeduplicator creates a deduplicator and starts its sweep loop.
func NewRequestDeduplicator() *RequestDeduplicator {
	d := &RequestDeduplicator{
		inflight: make(map[string]*ongoingRequest),
		maxAge:   5 * time.Minute,
		stopCh:   make(chan struct{}),
	}
	go d.sweepLoop()
	return d
}

// Fingerprint computes the canonical identity of an external call: service,
// endpoint, and sorted key=value params.
func Fingerprint(service, endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(service)
	b.WriteString("|")
	b.WriteString(endpoint)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(strings.ToLower(k))
		b.WriteString("=")
		b.WriteString(strings.TrimSpace(params[k]))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])[:16]
}

// Do executes fn once per fingerprint. Concurrent callers with the same
// fingerprint block until the first caller's fn returns and then share its
// result. Completed entries are removed immediately; stale ones by the sweep.
func (d *RequestDeduplicator) Do(fingerprint string, fn func() (interface{}, error)) (interface{}, error) {
	d.mu.Lock()
	if existing, ok := d.inflight[fingerprint]; ok && time.Since(existing.startedAt) < d.maxAge {
		d.mu.Unlock()
		log.Printf("[DEDUP] Reusing in-flight request %s for fingerprint %s", existing.requestID, fingerprint)
		<-existing.done
		return existing.result, existing.err
	}

	req := &ongoingRequest{
		fingerprint: fingerprint,
		requestID:   uuid.NewString(),
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	d.inflight[fingerprint] = req
	d.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				req.err = fmt.Errorf("deduplicated call panicked: %v", r)
			}
		}()
		req.result, req.err = fn()
	}()

	close(req.done)

	d.mu.Lock()
	if d.inflight[fingerprint] == req {
		delete(d.inflight, fingerprint)
	}
	d.mu.Unlock()

	return req.result, req.err
}

// InFlightCount returns the number of live entries, for diagnostics.
func (d *RequestDeduplicator) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Stop terminates the sweep loop.
func (d *RequestDeduplicator) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *RequestDeduplicator) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stopCh:
			return
		}
	}
}

// sweep drops entries older than maxAge. Waiters on a swept entry still get
// their result when the underlying call finishes; the entry just no longer
// absorbs new callers.
func (d *RequestDeduplicator) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for fp, req := range d.inflight {
		if time.Since(req.startedAt) >= d.maxAge {
			delete(d.inflight, fp)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[DEDUP] Swept %d stale in-flight entries (%d remain)", removed, len(d.inflight))
	}
}
