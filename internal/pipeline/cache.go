// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// CachingTransport is a time-boxed response cache for idempotent GET
// calls, keyed by method and URL. Repeated runs over the same query reuse
// cached source responses instead of re-hitting the APIs. Safe for
// concurrent use; an entry is never served past its expiry.
type CachingTransport struct {
	Base   http.RoundTripper
	Expiry time.Duration

	// now is overridable in tests.
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	status   int
	header   http.Header
	body     []byte
	storedAt time.Time
}

// NewCachingTransport wraps base with a cache holding entries for expiry.
func NewCachingTransport(base http.RoundTripper, expiry time.Duration) *CachingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CachingTransport{
		Base:    base,
		Expiry:  expiry,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// RoundTrip serves fresh cached responses and forwards everything else.
func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.Expiry <= 0 {
		return t.Base.RoundTrip(req)
	}

	key := req.Method + " " + req.URL.String()

	t.mu.RLock()
	entry, ok := t.entries[key]
	t.mu.RUnlock()
	if ok && t.now().Sub(entry.storedAt) < t.Expiry {
		return entry.response(req), nil
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Only successful responses are worth replaying.
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	entry = cacheEntry{
		status:   resp.StatusCode,
		header:   resp.Header.Clone(),
		body:     body,
		storedAt: t.now(),
	}
	t.mu.Lock()
	t.entries[key] = entry
	t.mu.Unlock()

	return entry.response(req), nil
}

func (e cacheEntry) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode: e.status,
		Status:     http.StatusText(e.status),
		Header:     e.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(e.body)),
		Request:    req,
	}
}
