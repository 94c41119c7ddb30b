package inbenta

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
	"github.com/convobench/inbenta-relay-go/internal/gate"
)

// TokenSource hands out a usable token, re-authenticating only when the
// previous one is stale.
type TokenSource interface {
	EnsureValid(ctx context.Context, prev *Token) (*Token, error)
}

// TokenCache persists tokens across processes so a fresh run can reuse
// an unexpired token instead of re-authenticating.
type TokenCache interface {
	Get(ctx context.Context, key string) (*Token, error)
	Put(ctx context.Context, key string, token *Token, ttl time.Duration) error
}

// TokenManager owns the access token lifecycle for one set of
// credentials and one scope.
type TokenManager struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	scope      Scope
	gate       gate.Gate
	cache      TokenCache
}

// TokenManagerOptions tune a TokenManager; zero values select the
// defaults (public auth base URL, 30s HTTP timeout, no gating, no
// cache).
type TokenManagerOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Gate       gate.Gate
	Cache      TokenCache
}

func NewTokenManager(creds Credentials, scope Scope, opts TokenManagerOptions) *TokenManager {
	m := &TokenManager{
		httpClient: opts.HTTPClient,
		baseURL:    opts.BaseURL,
		creds:      creds,
		scope:      scope,
		gate:       opts.Gate,
	}
	if m.httpClient == nil {
		m.httpClient = defaultHTTPClient()
	}
	if m.baseURL == "" {
		m.baseURL = DefaultAuthBaseURL
	}
	if m.gate == nil {
		m.gate = gate.Nop{}
	}
	m.cache = opts.Cache
	return m
}

// EnsureValid returns prev unchanged when it still has at least
// MinTokenTTL of validity left; otherwise it performs exactly one auth
// round-trip and returns the replacement token.
func (m *TokenManager) EnsureValid(ctx context.Context, prev *Token) (*Token, error) {
	now := time.Now()

	if prev == nil || prev.AccessToken == "" {
		if cached := m.fromCache(ctx, now); cached != nil {
			return cached, nil
		}
		log.Debug().Msg("authentication required, no access token")
	} else {
		remaining := prev.Remaining(now)
		if remaining >= MinTokenTTL {
			log.Debug().
				Dur("remaining", remaining).
				Int64("expiresIn", prev.ExpiresIn).
				Msg("skipping authentication, access token still valid")
			return prev, nil
		}
		log.Debug().
			Dur("remaining", remaining).
			Int64("expiresIn", prev.ExpiresIn).
			Msg("authentication required, access token stale")
	}

	token, err := m.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		ttl := token.Remaining(time.Now()) - MinTokenTTL
		if ttl > 0 {
			if err := m.cache.Put(ctx, m.cacheKey(), token, ttl); err != nil {
				log.Warn().Err(err).Msg("failed to cache access token")
			}
		}
	}
	return token, nil
}

func (m *TokenManager) fromCache(ctx context.Context, now time.Time) *Token {
	if m.cache == nil {
		return nil
	}
	token, err := m.cache.Get(ctx, m.cacheKey())
	if err != nil {
		log.Warn().Err(err).Msg("token cache lookup failed")
		return nil
	}
	if !token.Fresh(now) {
		return nil
	}
	log.Debug().
		Dur("remaining", token.Remaining(now)).
		Msg("reusing cached access token")
	return token
}

func (m *TokenManager) authenticate(ctx context.Context) (*Token, error) {
	body := map[string]string{}
	if m.creds.Secret != "" {
		body["secret"] = m.creds.Secret
	}
	if m.creds.PersonalSecret != "" {
		body["user_personal_secret"] = m.creds.PersonalSecret
	}

	url := fmt.Sprintf("%s/%s%s", m.baseURL, m.creds.version(), pathAuth)
	headers := map[string]string{headerAPIKey: m.creds.APIKey}

	start := time.Now()
	var token Token
	err := m.gate.Run(ctx, func() error {
		return doJSON(ctx, m.httpClient, http.MethodPost, url, headers, body, &token, apperrors.ErrCodeAuth)
	})
	if err != nil {
		log.Error().Err(err).Str("scope", string(m.scope)).Msg("authentication failed")
		return nil, err
	}

	if token.AccessToken == "" {
		return nil, apperrors.Auth("Access token not found in auth response")
	}
	if token.endpointFor(m.scope) == "" {
		if m.scope == ScopeEditor {
			return nil, apperrors.Auth("No Chatbot Editor API endpoint available for these credentials")
		}
		return nil, apperrors.Auth("Chatbot API not found in auth response")
	}

	log.Info().
		Str("scope", string(m.scope)).
		Int64("expiresIn", token.ExpiresIn).
		Dur("elapsed", time.Since(start)).
		Msg("authenticated")
	return &token, nil
}

func (m *TokenManager) cacheKey() string {
	return fmt.Sprintf("inbenta:token:%s:%s", m.scope, m.creds.APIKey)
}
