package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSReflectsOrigin(t *testing.T) {
	h := CORS(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/today", nil)
	req.Header.Set("Origin", "http://kiosk.local")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "http://kiosk.local" {
		t.Errorf("expected origin to be reflected, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	pre := httptest.NewRequest(http.MethodOptions, "/api/today", nil)
	rr = httptest.NewRecorder()
	CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	})).ServeHTTP(rr, pre)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rr.Code)
	}
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rr.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Limit(okHandler)
	codes := make([]int, 0, 3)
	var retryAfter string
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/notify/test", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		rr := httptest.NewRecorder()
		h(rr, req)
		codes = append(codes, rr.Code)
		retryAfter = rr.Header().Get("Retry-After")
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected codes %v", codes)
	}
	if ra := retryAfter; ra != "30" {
		t.Errorf("Retry-After = %q, want 30", ra)
	}

	// Other clients have their own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/notify/test", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != 200 {
		t.Errorf("expected a fresh bucket, got %d", rr.Code)
	}

	// Tokens refill over time.
	now = now.Add(31 * time.Second)
	req = httptest.NewRequest(http.MethodPost, "/api/notify/test", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != 200 {
		t.Errorf("expected refill after 30s, got %d", rr.Code)
	}

	now = now.Add(time.Hour)
	rl.evictIdle()
	if len(rl.buckets) != 0 {
		t.Errorf("expected idle buckets to be evicted, have %d", len(rl.buckets))
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.2:5555"
	if got := extractIP(req); got != "192.168.1.2" {
		t.Errorf("got %q", got)
	}
	req.Header.Set("X-Real-IP", "172.16.0.1")
	if got := extractIP(req); got != "172.16.0.1" {
		t.Errorf("got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 10.1.1.1 , 10.0.0.1")
	if got := extractIP(req); got != "10.1.1.1" {
		t.Errorf("got %q", got)
	}
}

func TestBasicAuth(t *testing.T) {
	auth, err := NewBasicAuth("admin", "s3cret", "/health")
	if err != nil {
		t.Fatal(err)
	}
	h := auth.Wrap(okHandler)

	tests := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{"no credentials", "/api/today", "", "", http.StatusUnauthorized},
		{"wrong password", "/api/today", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "/api/today", "root", "s3cret", http.StatusUnauthorized},
		{"valid", "/api/today", "admin", "s3cret", http.StatusOK},
		{"exempt", "/health", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected a WWW-Authenticate challenge")
			}
		})
	}
}

func TestBasicAuthAcceptsHash(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	if !IsHash(hash) {
		t.Fatalf("expected bcrypt prefix, got %q", hash)
	}
	auth, err := NewBasicAuth("admin", hash)
	if err != nil {
		t.Fatal(err)
	}
	if err := auth.Verify("admin", "pw"); err != nil {
		t.Errorf("expected hash to verify: %v", err)
	}
	if _, err := NewBasicAuth("admin", ""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestRequestLogComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	h := Logging(rl.Limit(okHandler))
	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/today", nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %q", buf.String())
	}
	for _, l := range lines {
		if !strings.Contains(l, `"component":"middleware"`) {
			t.Errorf("log line without middleware component: %s", l)
		}
	}
}
