package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, generalBurst, relationshipBurst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:       rate.Limit(1.0 / 60.0),
		GeneralBurst:      generalBurst,
		RelationshipRate:  rate.Limit(1.0 / 60.0),
		RelationshipBurst: relationshipBurst,
		CleanupInterval:   time.Hour,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func serveAs(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/follows", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralBurst != 120 || cfg.RelationshipBurst != 30 {
		t.Errorf("bursts = %d/%d, want 120/30", cfg.GeneralBurst, cfg.RelationshipBurst)
	}
	if cfg.GeneralRate != rate.Limit(2) {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.RelationshipRate != rate.Limit(0.5) {
		t.Errorf("RelationshipRate = %v, want 0.5", cfg.RelationshipRate)
	}
}

func TestRateLimiter_GeneralExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, 2, 2)
	handler := rl.GeneralMiddleware()(okHandler)

	for i := range 2 {
		if rec := serveAs(handler, "user-1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}

	rec := serveAs(handler, "user-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if body := decodeErrorBody(t, rec); body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}

	// 別ユーザーは影響を受けない
	if rec := serveAs(handler, "user-2"); rec.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimiter_PoolsAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(t, 5, 1)
	relationship := rl.RelationshipMiddleware()(okHandler)
	general := rl.GeneralMiddleware()(okHandler)

	if rec := serveAs(relationship, "user-1"); rec.Code != http.StatusOK {
		t.Fatalf("first relationship request: status = %d", rec.Code)
	}
	if rec := serveAs(relationship, "user-1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second relationship request: status = %d, want 429", rec.Code)
	}
	if rec := serveAs(general, "user-1"); rec.Code != http.StatusOK {
		t.Errorf("general request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	if got := rl.RelationshipLimiterCount(); got != 1 {
		t.Errorf("RelationshipLimiterCount = %d, want 1", got)
	}
	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_Unauthenticated(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	rec := serveAs(rl.GeneralMiddleware()(okHandler), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	serveAs(rl.GeneralMiddleware()(okHandler), "user-1")
	serveAs(rl.RelationshipMiddleware()(okHandler), "user-1")

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Fatal("fresh entries should survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.GeneralLimiterCount() != 0 || rl.RelationshipLimiterCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", rl.GeneralLimiterCount(), rl.RelationshipLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
