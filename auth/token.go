package auth

import (
	"strings"
	"time"
)

// DefaultExpirySkew defines the default clock-skew buffer applied when
// checking a Token's validity: a token is valid only while now is before
// expiresAt minus the skew.
const DefaultExpirySkew = 10 * time.Second

// Token is an access token issued by a successful code exchange or
// refresh.  At most one token is retained per scope: the global scope or
// each distinct tenant.
type Token struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`

	// ExpiresIn is the issued lifetime in seconds.
	ExpiresIn int `json:"expiresIn"`

	// ExpiresAt is the absolute expiry, fixed at issuance as now plus
	// ExpiresIn.
	ExpiresAt time.Time `json:"expiresAt"`

	Scopes       []string `json:"scopes"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	Tenant       string   `json:"tenant,omitempty"`
}

// RedactedToken is the redacted string for a Token's secrets.
const RedactedToken = "[REDACTED]"

// String redacts the token's secrets.  The JSON form is not redacted: it
// is what the token manager persists.
func (t *Token) String() string {
	if t == nil {
		return ""
	}
	return "Token{AccessToken: " + RedactedToken + ", Tenant: " + t.Tenant + "}"
}

// Expired returns true when the token's expiry, less the skew buffer, has
// passed.  Supported options: WithExpirySkew, WithNow
func (t *Token) Expired(opt ...Option) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return true
	}
	opts := getTokenOpts(opt...)
	return !opts.withNowFunc().Before(t.ExpiresAt.Add(-opts.withExpirySkew))
}

// Valid returns true when the token carries an access token that has not
// expired.  Supported options: WithExpirySkew, WithNow
func (t *Token) Valid(opt ...Option) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return !t.Expired(opt...)
}

// newToken builds a Token from a provider token response, fixing the
// absolute expiry at issuance.
func newToken(resp *TokenResponse, tenant string, now func() time.Time) *Token {
	return &Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		ExpiresAt:    now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scopes:       strings.Fields(resp.Scope),
		RefreshToken: resp.RefreshToken,
		Tenant:       tenant,
	}
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides
// passed in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
