package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"sealedchat/internal/names"
)

func TestBearerTokenStripsPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/rooms/abcd", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
}

func TestBearerTokenEmptyWithoutHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/rooms/abcd", nil)
	if got := bearerToken(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestHandleNameSuggestReturnsName(t *testing.T) {
	a := &API{names: names.NewGenerator(), log: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/names/suggest", nil)
	rec := httptest.NewRecorder()

	a.handleNameSuggest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected a non-empty response body")
	}
}

func TestHandleInternalStatsDisabledReturnsNotFound(t *testing.T) {
	a := &API{enableInternalStats: false, log: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
	rec := httptest.NewRecorder()

	a.handleInternalStats(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleInternalStatsRequiresToken(t *testing.T) {
	a := &API{enableInternalStats: true, internalStatsToken: "secret", log: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
	rec := httptest.NewRecorder()

	a.handleInternalStats(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleInternalStatsSucceedsWithToken(t *testing.T) {
	a := &API{enableInternalStats: true, internalStatsToken: "secret", log: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
	req.Header.Set("X-Internal-Token", "secret")
	rec := httptest.NewRecorder()

	a.handleInternalStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
