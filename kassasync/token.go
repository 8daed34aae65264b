package kassasync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ristobook/ristobook_backend/config"
)

const (
	tokenCachePrefix = "kassasync:token:"

	// tokenExpirySkew keeps a token from being handed out moments before it
	// expires mid-request.
	tokenExpirySkew = 30 * time.Second

	defaultTokenTTLSeconds = 3600
)

// StoredToken is the cached bearer token. Replaced on refresh, never mutated;
// any token handed to a caller satisfies ExpiresAt > now.
type StoredToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenManager acquires, caches and refreshes KassaCloud bearer tokens.
// Entries are keyed by a hash of the API key, so a caller supplying an
// override key never observes a token minted for a different key. The whole
// read-refresh-write cycle runs under one mutex; concurrent syncs trigger at
// most one refresh per key. Tokens are also written through to Redis so a
// restarted process reuses a still-valid token.
type TokenManager struct {
	mu      sync.Mutex
	baseURL string
	http    *http.Client
	entries map[string]StoredToken
	now     func() time.Time
}

func NewTokenManager(baseURL string, httpClient *http.Client) *TokenManager {
	return &TokenManager{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		entries: map[string]StoredToken{},
		now:     time.Now,
	}
}

// GetValidAccessToken returns a bearer token for the given API key (or the
// process-configured KASSA_API_KEY when the override is empty), refreshing it
// from the auth endpoint when absent or expired.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, apiKeyOverride string) (string, error) {
	apiKey := strings.TrimSpace(apiKeyOverride)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("KASSA_API_KEY"))
	}
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := tokenCacheKey(apiKey)
	if tok, ok := m.entries[key]; ok && m.isValid(tok) {
		return tok.Token, nil
	}

	var cached StoredToken
	if ok, err := config.GetRedisObject(key, &cached); err == nil && ok && m.isValid(cached) {
		m.entries[key] = cached
		return cached.Token, nil
	}

	tok, err := m.requestToken(ctx, apiKey)
	if err != nil {
		return "", err
	}

	m.entries[key] = tok
	if ttl := tok.ExpiresAt.Sub(m.now()); ttl > 0 {
		_ = config.SetRedisObject(key, tok, ttl)
	}
	return tok.Token, nil
}

func (m *TokenManager) isValid(tok StoredToken) bool {
	return tok.Token != "" && m.now().Add(tokenExpirySkew).Before(tok.ExpiresAt)
}

func (m *TokenManager) requestToken(ctx context.Context, apiKey string) (StoredToken, error) {
	body, _ := json.Marshal(map[string]string{"apiKey": apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return StoredToken{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return StoredToken{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StoredToken{}, &AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var parsed authResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return StoredToken{}, err
	}
	if parsed.AccessToken == "" {
		return StoredToken{}, errors.New("kassacloud auth response missing access_token")
	}

	ttl := parsed.ExpiresIn
	if ttl <= 0 {
		ttl = defaultTokenTTLSeconds
	}
	return StoredToken{
		Token:     parsed.AccessToken,
		ExpiresAt: m.now().Add(time.Duration(ttl) * time.Second),
	}, nil
}

func tokenCacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return tokenCachePrefix + hex.EncodeToString(sum[:])
}
