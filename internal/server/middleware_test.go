package server

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimitExceeded(t *testing.T) {
	h := NewRateLimiter(1, 1, nil).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, req)
	if rr1.Code != http.StatusOK {
		t.Fatalf("first call = %d, want 200", rr1.Code)
	}
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("second call = %d, want 429", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var body map[string]string
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("body = %q (%v)", rr2.Body.String(), err)
	}

	other := httptest.NewRequest(http.MethodGet, "/limited", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	h.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Errorf("other client = %d, want 200", rr3.Code)
	}
}

// A client cannot pick its own bucket by sending a fresh X-Forwarded-For on every request.
func TestRateLimit_IgnoresSpoofedForwardedFor(t *testing.T) {
	h := NewRateLimiter(1, 1, testProxies()).Middleware(okHandler())

	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/auth/confirm-email", nil)
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		want := http.StatusTooManyRequests
		if i == 0 {
			want = http.StatusOK
		}
		if rr.Code != want {
			t.Errorf("request %d with X-Forwarded-For %s = %d, want %d", i, xff, rr.Code, want)
		}
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewRateLimiter(1, 1, nil)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(10 * time.Minute)
	l.Allow("b")
	now = now.Add(6 * time.Minute)

	if n := l.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if _, ok := l.buckets["b"]; !ok {
		t.Error("recent bucket was dropped")
	}
	if !l.Allow("a") {
		t.Error("swept client should start with a full bucket")
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy", "Content-Security-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := AccessLog(zap.New(core), testProxies(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/log-test" || fields["status"] != int64(http.StatusTeapot) || fields["client_ip"] != "203.0.113.9" {
		t.Errorf("fields = %v", fields)
	}
}

func testProxies() TrustedProxies {
	return TrustedProxies{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        []string
		remoteAddr string
		want       string
	}{
		{"untrusted peer ignores header", []string{"192.168.1.1"}, "203.0.113.7:1", "203.0.113.7"},
		{"trusted peer", []string{"192.168.1.1"}, "10.0.0.1:1", "192.168.1.1"},
		{"rightmost untrusted hop wins", []string{" 198.51.100.4 , 192.168.1.1, 10.0.0.3"}, "10.0.0.1:1", "192.168.1.1"},
		{"repeated headers", []string{"198.51.100.4", "192.168.1.1"}, "10.0.0.1:1", "192.168.1.1"},
		{"all hops trusted", []string{"10.0.0.9, 10.0.0.3"}, "10.0.0.1:1", "10.0.0.9"},
		{"garbage hop", []string{"not-an-ip"}, "10.0.0.1:1", "10.0.0.1"},
		{"trusted peer without header", nil, "10.0.0.1:1", "10.0.0.1"},
		{"ipv6 proxy", []string{"192.168.1.1"}, "[::1]:8080", "192.168.1.1"},
		{"remote addr", nil, "203.0.113.7:1234", "203.0.113.7"},
		{"no port", nil, "203.0.113.7", "203.0.113.7"},
		{"empty", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if got := testProxies().ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP_NoTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	req.Header.Set("X-Forwarded-For", "192.168.1.1")
	var none TrustedProxies
	if got := none.ClientIP(req); got != "10.0.0.1" {
		t.Errorf("ClientIP = %q, want the peer address", got)
	}
}
