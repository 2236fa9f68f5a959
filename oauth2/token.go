package oauth2

import (
	"slices"
	"strings"
	"time"
)

// DefaultLeeway is how much remaining lifetime a cached token must have before
// it is handed out. Tokens closer to expiry than this are refreshed, so they
// cannot expire mid-request.
const DefaultLeeway = 60 * time.Second

// Token is an access token as granted by the authorization server.
// Tokens are immutable: a refresh produces a new Token, the old one is
// discarded wholesale.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// Expiry is the moment the access token stops being accepted.
	// A zero Expiry means the server did not report a lifetime.
	Expiry time.Time
	// Scopes is the granted scope set, split from the space-separated scope
	// field of the token response.
	Scopes []string
}

// Valid reports whether the token can still be used, requiring at least
// leeway of remaining lifetime.
func (t *Token) Valid(leeway time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Until(t.Expiry) > leeway
}

// Type returns the token type to use in the Authorization header, defaulting
// to "Bearer" when the server did not report one.
func (t *Token) Type() string {
	if t.TokenType == "" {
		return "Bearer"
	}
	return t.TokenType
}

// HasScope reports whether scope is part of the granted scope set.
func (t *Token) HasScope(scope string) bool {
	if t == nil {
		return false
	}
	return slices.Contains(t.Scopes, scope)
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}
