package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/54b3r/docrag-go/internal/logging"
)

// hit sends one POST /api/chat from addr through h and returns the status.
func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	// rps is low enough that no token refills during the test.
	rl, stop := newRateLimiter(0.001, 3, logging.Discard())
	defer stop()
	h := rl.middleware(okHandler())

	for i := range 3 {
		if w := hit(h, "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: expected 200, got %d", i, w.Code)
		}
	}

	w := hit(h, "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error == "" {
		t.Errorf("expected JSON error body, got %q", w.Body.String())
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, logging.Discard())
	defer stop()
	h := rl.middleware(okHandler())

	hit(h, "192.168.1.1:1111")
	if w := hit(h, "192.168.1.1:2222"); w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP on another port should share the bucket, got %d", w.Code)
	}
	if w := hit(h, "192.168.1.2:1111"); w.Code != http.StatusOK {
		t.Errorf("second IP: expected 200, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"127.0.0.1:54321": "127.0.0.1",
		"10.0.0.1:80":     "10.0.0.1",
		"[::1]:8080":      "::1",
		"noport":          "noport",
	}
	for addr, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		if got := clientIP(req); got != want {
			t.Errorf("RemoteAddr %q: expected %q, got %q", addr, want, got)
		}
	}
}

func TestRateLimit_EvictsStaleEntries(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(10, 10, logging.Discard())
	defer stop()

	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")
	if rl.size() != 2 {
		t.Fatalf("want 2 tracked IPs, got %d", rl.size())
	}

	rl.evict(time.Now().Add(-time.Hour))
	if rl.size() != 2 {
		t.Errorf("recent entries must survive, got %d", rl.size())
	}

	rl.evict(time.Now().Add(time.Second))
	if rl.size() != 0 {
		t.Errorf("want all entries evicted, got %d", rl.size())
	}

	stop()
	stop()
}
