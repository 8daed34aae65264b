package kassasync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func newAuthServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode auth body: %v", err)
		}
		n := atomic.AddInt32(calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("tok-%s-%d", body["apiKey"], n),
			"expires_in":   3600,
		})
	}))
}

func TestGetValidAccessToken_ReusesCachedToken(t *testing.T) {
	var calls int32
	srv := newAuthServer(t, &calls)
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client())

	first, err := m.GetValidAccessToken(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	second, err := m.GetValidAccessToken(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached token to be reused, got %q then %q", first, second)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 auth call, got %d", got)
	}
}

func TestGetValidAccessToken_RefreshesExpiredToken(t *testing.T) {
	var calls int32
	srv := newAuthServer(t, &calls)
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client())
	clock := time.Now()
	m.now = func() time.Time { return clock }

	first, err := m.GetValidAccessToken(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("first token: %v", err)
	}

	// Advance past the token's lifetime.
	clock = clock.Add(2 * time.Hour)

	second, err := m.GetValidAccessToken(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh token after expiry, got the same one")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 auth calls, got %d", got)
	}
}

func TestGetValidAccessToken_CachesPerAPIKey(t *testing.T) {
	var calls int32
	srv := newAuthServer(t, &calls)
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client())

	tokA, err := m.GetValidAccessToken(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("token a: %v", err)
	}
	tokB, err := m.GetValidAccessToken(context.Background(), "key-b")
	if err != nil {
		t.Fatalf("token b: %v", err)
	}
	if tokA == tokB {
		t.Fatalf("expected distinct tokens per api key")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 auth calls, got %d", got)
	}

	// Both keys stay cached independently.
	if tok, err := m.GetValidAccessToken(context.Background(), "key-a"); err != nil || tok != tokA {
		t.Fatalf("key-a cache miss: tok=%q err=%v", tok, err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected no extra auth calls, got %d", got)
	}
}

func TestGetValidAccessToken_MissingAPIKey(t *testing.T) {
	old := os.Getenv("KASSA_API_KEY")
	os.Unsetenv("KASSA_API_KEY")
	defer os.Setenv("KASSA_API_KEY", old)

	m := NewTokenManager("http://unused", http.DefaultClient)
	if _, err := m.GetValidAccessToken(context.Background(), ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGetValidAccessToken_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, srv.Client())
	_, err := m.GetValidAccessToken(context.Background(), "bad-key")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", authErr.Status)
	}
}
