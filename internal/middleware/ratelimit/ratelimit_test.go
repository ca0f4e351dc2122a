package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestAllowWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewLimiter(Config{RequestsPerMinute: 2, Clock: clock})
	defer rl.Stop()

	for i, want := range []bool{true, true, false} {
		if got := rl.Allow("1.2.3.4"); got != want {
			t.Fatalf("request %d: Allow = %v, want %v", i+1, got, want)
		}
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients have their own budget")
	}

	clock.Advance(20 * time.Second)
	if got := rl.RetryAfter("1.2.3.4"); got != 40 {
		t.Errorf("RetryAfter = %d, want 40", got)
	}

	clock.Advance(40 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("window should have reset")
	}
	if rl.ActiveClients() != 2 {
		t.Errorf("ActiveClients = %d, want 2", rl.ActiveClients())
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewLimiter(Config{RequestsPerMinute: 5, Clock: clock})
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	clock.Advance(11 * time.Minute)
	rl.Allow("5.6.7.8")
	rl.cleanupStaleEntries()

	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddlewareOnlyLimitsConfiguredMethods(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, Methods: []string{http.MethodPost}, Clock: clockwork.NewFakeClock()})
	defer rl.Stop()

	var retries []int
	h := rl.Middleware(
		func(*http.Request) string { return "client" },
		func(w http.ResponseWriter, _ *http.Request, retry int) {
			retries = append(retries, retry)
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodPost, http.StatusNoContent},
		{http.MethodPost, http.StatusTooManyRequests},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodGet, http.StatusNoContent},
	}
	for i, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/birds", nil))
		if rec.Code != tt.want {
			t.Errorf("request %d (%s): status = %d, want %d", i+1, tt.method, rec.Code, tt.want)
		}
	}
	if len(retries) != 1 || retries[0] != 60 {
		t.Errorf("retries = %v, want [60]", retries)
	}
}
