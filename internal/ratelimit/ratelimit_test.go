package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestParseBypassListAndContains(t *testing.T) {
	list := ParseBypassList("127.0.0.1, 10.0.0.0/8, ::1")

	if !list.Contains("127.0.0.1") {
		t.Fatalf("expected exact IP match")
	}
	if !list.Contains("10.2.3.4") {
		t.Fatalf("expected CIDR match")
	}
	if !list.Contains("[::1]:1234") {
		t.Fatalf("expected IPv6 match")
	}
	if list.Contains("192.168.1.2") {
		t.Fatalf("unexpected match for non-whitelisted IP")
	}
}

func TestMiddlewareBypass(t *testing.T) {
	bypass := ParseBypassList("127.0.0.1")
	limiter := NewIPLimiter(0, 0)
	hits := 0
	handler := Middleware(limiter, bypass, zap.NewNop(), func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		handler(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("unexpected status for bypassed IP: %d", w.Code)
		}
	}

	if hits != 3 {
		t.Fatalf("expected handler hits=3, got %d", hits)
	}
}

func TestMiddlewareBlocksWhenTokensExhausted(t *testing.T) {
	bypass := ParseBypassList("")
	limiter := NewIPLimiter(0, 1)
	handler := Middleware(limiter, bypass, zap.NewNop(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	req.RemoteAddr = "203.0.113.5:1111"

	first := httptest.NewRecorder()
	handler(first, req)
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", second.Code)
	}
}
