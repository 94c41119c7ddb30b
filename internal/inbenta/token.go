package inbenta

import "time"

// MinTokenTTL is the smallest remaining validity window a token may
// have and still be used. The platform rejects calls made right at the
// expiry boundary, so a token this close to expiring is re-issued.
const MinTokenTTL = 5 * time.Second

// Scope selects which discovered endpoint a token must carry.
type Scope string

const (
	ScopeChatbot Scope = "chatbot"
	ScopeEditor  Scope = "chatbot-editor"
)

// Endpoints are the API base URLs discovered during authentication.
type Endpoints struct {
	Chatbot       string `json:"chatbot"`
	ChatbotEditor string `json:"chatbot-editor"`
}

// Token is one issued access token with its expiry. Tokens are
// replaced wholesale on refresh, never mutated.
type Token struct {
	AccessToken string    `json:"accessToken"`
	Expiration  int64     `json:"expiration"`
	ExpiresIn   int64     `json:"expires_in"`
	APIs        Endpoints `json:"apis"`
}

// Remaining reports the validity window left at the given instant.
func (t *Token) Remaining(now time.Time) time.Duration {
	return time.Unix(t.Expiration, 0).Sub(now)
}

// Fresh reports whether the token can still be used for a call.
func (t *Token) Fresh(now time.Time) bool {
	return t != nil && t.AccessToken != "" && t.Remaining(now) >= MinTokenTTL
}

func (t *Token) endpointFor(scope Scope) string {
	switch scope {
	case ScopeEditor:
		return t.APIs.ChatbotEditor
	default:
		return t.APIs.Chatbot
	}
}
