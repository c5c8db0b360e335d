package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestRateLimitHandler tests that a source exceeding its budget gets 429
// while a distinct source is unaffected.
func TestRateLimitHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewRateLimitHandler(next, 1, 1, time.Minute)

	status := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := status("10.0.0.1:1234"); got != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", got)
	}
	if got := status("10.0.0.1:1234"); got != http.StatusTooManyRequests {
		t.Fatalf("expected second request limited, got %d", got)
	}
	if got := status("10.0.0.2:1234"); got != http.StatusOK {
		t.Fatalf("expected other source allowed, got %d", got)
	}
}

// TestRateLimitHandlerDisabled tests that rps <= 0 passes everything through.
func TestRateLimitHandlerDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewRateLimitHandler(next, 0, 0, time.Minute)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

// TestClientIPForwarded tests that forwarding headers take precedence over
// the socket address.
func TestClientIPForwarded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected socket host, got %q", got)
	}

	req.Header.Set("X-Real-Ip", "203.0.113.9")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected X-Real-Ip, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
