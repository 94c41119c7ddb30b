package inbenta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
)

func authResponse(expiresIn int64) map[string]any {
	return map[string]any{
		"accessToken": "token-1",
		"expiration":  time.Now().Unix() + expiresIn,
		"expires_in":  expiresIn,
		"apis": map[string]string{
			"chatbot":        "https://chatbot.example.test",
			"chatbot-editor": "https://editor.example.test",
		},
	}
}

func newAuthServer(t *testing.T, calls *atomic.Int64, respond func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/auth", r.URL.Path)
		respond(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEnsureValidSkipsFreshToken(t *testing.T) {
	var calls atomic.Int64
	server := newAuthServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authResponse(300))
	})

	m := NewTokenManager(Credentials{APIKey: "key", Secret: "secret"}, ScopeChatbot,
		TokenManagerOptions{BaseURL: server.URL})

	prev := &Token{
		AccessToken: "still-good",
		Expiration:  time.Now().Unix() + 120,
		ExpiresIn:   1200,
	}

	token, err := m.EnsureValid(context.Background(), prev)
	require.NoError(t, err)
	assert.Same(t, prev, token)
	assert.Equal(t, int64(0), calls.Load())
}

func TestEnsureValidAuthenticatesWhenMissingOrStale(t *testing.T) {
	tests := []struct {
		name string
		prev *Token
	}{
		{"no previous token", nil},
		{"empty access token", &Token{Expiration: time.Now().Unix() + 120}},
		{"stale token", &Token{AccessToken: "old", Expiration: time.Now().Unix() + 2}},
		{"expired token", &Token{AccessToken: "old", Expiration: time.Now().Unix() - 60}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int64
			server := newAuthServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "key", r.Header.Get("X-Inbenta-Key"))

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "secret", body["secret"])
				assert.NotContains(t, body, "user_personal_secret")

				json.NewEncoder(w).Encode(authResponse(300))
			})

			m := NewTokenManager(Credentials{APIKey: "key", Secret: "secret"}, ScopeChatbot,
				TokenManagerOptions{BaseURL: server.URL})

			token, err := m.EnsureValid(context.Background(), tc.prev)
			require.NoError(t, err)
			assert.Equal(t, int64(1), calls.Load())
			assert.Equal(t, "token-1", token.AccessToken)
			assert.Equal(t, "https://chatbot.example.test", token.APIs.Chatbot)

			// The replacement token amortizes the next call.
			again, err := m.EnsureValid(context.Background(), token)
			require.NoError(t, err)
			assert.Same(t, token, again)
			assert.Equal(t, int64(1), calls.Load())
		})
	}
}

func TestEnsureValidSendsPersonalSecret(t *testing.T) {
	var calls atomic.Int64
	server := newAuthServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "secret", body["secret"])
		assert.Equal(t, "personal", body["user_personal_secret"])
		json.NewEncoder(w).Encode(authResponse(300))
	})

	m := NewTokenManager(
		Credentials{APIKey: "key", Secret: "secret", PersonalSecret: "personal"},
		ScopeEditor,
		TokenManagerOptions{BaseURL: server.URL},
	)

	_, err := m.EnsureValid(context.Background(), nil)
	require.NoError(t, err)
}

func TestEnsureValidFailures(t *testing.T) {
	tests := []struct {
		name        string
		scope       Scope
		respond     func(w http.ResponseWriter, r *http.Request)
		wantMessage string
	}{
		{
			name:  "non-success status",
			scope: ScopeChatbot,
			respond: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantMessage: "got error response: 401/Unauthorized",
		},
		{
			name:  "platform message preferred",
			scope: ScopeChatbot,
			respond: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"message": "API key quota exceeded"},
				})
			},
			wantMessage: "API key quota exceeded",
		},
		{
			name:  "missing access token",
			scope: ScopeChatbot,
			respond: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"apis": map[string]string{"chatbot": "https://chatbot.example.test"},
				})
			},
			wantMessage: "Access token not found in auth response",
		},
		{
			name:  "missing chatbot endpoint",
			scope: ScopeChatbot,
			respond: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"accessToken": "token-1"})
			},
			wantMessage: "Chatbot API not found in auth response",
		},
		{
			name:  "missing editor endpoint",
			scope: ScopeEditor,
			respond: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"accessToken": "token-1",
					"apis":        map[string]string{"chatbot": "https://chatbot.example.test"},
				})
			},
			wantMessage: "No Chatbot Editor API endpoint available for these credentials",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int64
			server := newAuthServer(t, &calls, tc.respond)

			m := NewTokenManager(Credentials{APIKey: "key", Secret: "secret"}, tc.scope,
				TokenManagerOptions{BaseURL: server.URL})

			_, err := m.EnsureValid(context.Background(), nil)
			require.Error(t, err)
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeAuth, appErr.Code)
			assert.Contains(t, appErr.Message, tc.wantMessage)
		})
	}
}

type fakeTokenCache struct {
	tokens map[string]*Token
	puts   int
}

func newFakeTokenCache() *fakeTokenCache {
	return &fakeTokenCache{tokens: map[string]*Token{}}
}

func (c *fakeTokenCache) Get(_ context.Context, key string) (*Token, error) {
	token, ok := c.tokens[key]
	if !ok {
		return nil, apperrors.NotFound("token")
	}
	return token, nil
}

func (c *fakeTokenCache) Put(_ context.Context, key string, token *Token, _ time.Duration) error {
	c.tokens[key] = token
	c.puts++
	return nil
}

func TestEnsureValidUsesCache(t *testing.T) {
	var calls atomic.Int64
	server := newAuthServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authResponse(300))
	})

	cache := newFakeTokenCache()
	creds := Credentials{APIKey: "key", Secret: "secret"}

	first := NewTokenManager(creds, ScopeEditor,
		TokenManagerOptions{BaseURL: server.URL, Cache: cache})
	_, err := first.EnsureValid(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, cache.puts)

	// A second manager (fresh process) finds the cached token and
	// issues no auth call.
	second := NewTokenManager(creds, ScopeEditor,
		TokenManagerOptions{BaseURL: server.URL, Cache: cache})
	token, err := second.EnsureValid(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, "token-1", token.AccessToken)
}

func TestTokenFresh(t *testing.T) {
	now := time.Now()

	var nilToken *Token
	assert.False(t, nilToken.Fresh(now))
	assert.False(t, (&Token{Expiration: now.Unix() + 300}).Fresh(now))
	assert.False(t, (&Token{AccessToken: "x", Expiration: now.Unix() + 2}).Fresh(now))
	assert.True(t, (&Token{AccessToken: "x", Expiration: now.Unix() + 30}).Fresh(now))
}
