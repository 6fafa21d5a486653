package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

type memWindows struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func newMemWindows() *memWindows { return &memWindows{hits: map[string]int64{}} }

func (m *memWindows) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.hits[key]++
	return m.hits[key], nil
}

func (m *memWindows) RateLimitKey(parts ...string) string {
	return "rl:" + strings.Join(parts, ":")
}

func bodyCheckingOKHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if r.Method == http.MethodPost && !strings.Contains(string(body), `"email"`) {
			t.Fatalf("body not restored: %s", body)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func login(handler http.Handler, ip, email string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = ip + ":5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestThrottlePerEmailIgnoresCaseAndAddress(t *testing.T) {
	store := newMemWindows()
	handler := Throttle("login", time.Minute, store, nil, PerEmail(2))(bodyCheckingOKHandler(t))

	if rec := login(handler, "1.1.1.1", "Ana@Example.com"); rec.Code != http.StatusOK {
		t.Fatalf("first attempt: %d", rec.Code)
	}
	if rec := login(handler, "2.2.2.2", " ana@example.com "); rec.Code != http.StatusOK {
		t.Fatalf("second attempt: %d", rec.Code)
	}
	rec := login(handler, "3.3.3.3", "ANA@example.com")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected code %s", code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}
	for key := range store.hits {
		if strings.Contains(key, "example.com") {
			t.Fatalf("email stored in clear: %s", key)
		}
	}
}

func TestThrottlePerIP(t *testing.T) {
	handler := Throttle("register", time.Minute, newMemWindows(), nil, PerIP(1), PerEmail(0))(bodyCheckingOKHandler(t))

	if rec := login(handler, "5.6.7.8", "a@example.com"); rec.Code != http.StatusOK {
		t.Fatalf("first attempt: %d", rec.Code)
	}
	if rec := login(handler, "5.6.7.8", "b@example.com"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := login(handler, "9.9.9.9", "c@example.com"); rec.Code != http.StatusOK {
		t.Fatalf("other address should pass: %d", rec.Code)
	}
}

func TestThrottleStoreFailure(t *testing.T) {
	store := newMemWindows()
	store.err = errors.New("redis down")
	handler := Throttle("login", time.Minute, store, nil, PerIP(5))(bodyCheckingOKHandler(t))

	rec := login(handler, "1.1.1.1", "a@example.com")
	if code := errorCode(t, rec); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %d %s", rec.Code, code)
	}
}

func TestThrottleDisabled(t *testing.T) {
	handler := Throttle("login", 0, newMemWindows(), nil, PerIP(1))(bodyCheckingOKHandler(t))
	for i := 0; i < 3; i++ {
		if rec := login(handler, "1.1.1.1", "a@example.com"); rec.Code != http.StatusOK {
			t.Fatalf("disabled throttle rejected attempt %d", i)
		}
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		headers map[string]string
		remote  string
		want    string
	}{
		{map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"}, "1.1.1.1:80", "10.0.0.1"},
		{map[string]string{"X-Real-IP": "10.0.0.3"}, "1.1.1.1:80", "10.0.0.3"},
		{nil, "1.1.1.1:80", "1.1.1.1"},
		{nil, "pipe", "pipe"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		if got := clientIP(req); got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, got)
		}
	}
}
