package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToken_Valid(t *testing.T) {
	t.Parallel()
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	token := &Token{
		AccessToken: "accesstoken",
		ExpiresIn:   1000,
		ExpiresAt:   issued.Add(1000 * time.Second),
	}
	tests := []struct {
		name      string
		token     *Token
		now       time.Time
		skew      time.Duration
		wantValid bool
	}{
		{
			name:      "fresh",
			token:     token,
			now:       issued,
			skew:      DefaultExpirySkew,
			wantValid: true,
		},
		{
			name:      "just-inside-the-skew-window",
			token:     token,
			now:       issued.Add(1000*time.Second - DefaultExpirySkew - time.Nanosecond),
			skew:      DefaultExpirySkew,
			wantValid: true,
		},
		{
			name:      "at-the-skew-boundary",
			token:     token,
			now:       issued.Add(1000*time.Second - DefaultExpirySkew),
			skew:      DefaultExpirySkew,
			wantValid: false,
		},
		{
			name:      "expired",
			token:     token,
			now:       issued.Add(2000 * time.Second),
			skew:      DefaultExpirySkew,
			wantValid: false,
		},
		{
			name:      "zero-skew-honors-exact-expiry",
			token:     token,
			now:       issued.Add(1000*time.Second - time.Nanosecond),
			skew:      0,
			wantValid: true,
		},
		{
			name:      "missing-access-token",
			token:     &Token{ExpiresAt: issued.Add(time.Hour)},
			now:       issued,
			skew:      DefaultExpirySkew,
			wantValid: false,
		},
		{
			name:      "zero-expiry",
			token:     &Token{AccessToken: "accesstoken"},
			now:       issued,
			skew:      DefaultExpirySkew,
			wantValid: false,
		},
		{
			name:      "nil-token",
			token:     nil,
			now:       issued,
			skew:      DefaultExpirySkew,
			wantValid: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			got := tt.token.Valid(WithNow(func() time.Time { return tt.now }), WithExpirySkew(tt.skew))
			assert.Equal(tt.wantValid, got)
		})
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got := newToken(&TokenResponse{
		AccessToken:  "accesstoken",
		TokenType:    "Bearer",
		ExpiresIn:    1000,
		Scope:        "openid email",
		RefreshToken: "refreshtoken",
	}, "acme", func() time.Time { return now })

	assert.Equal("accesstoken", got.AccessToken)
	assert.Equal("Bearer", got.TokenType)
	assert.Equal(1000, got.ExpiresIn)
	assert.Equal(now.Add(1000*time.Second), got.ExpiresAt)
	assert.Equal([]string{"openid", "email"}, got.Scopes)
	assert.Equal("refreshtoken", got.RefreshToken)
	assert.Equal("acme", got.Tenant)
}

func TestToken_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	token := &Token{AccessToken: "supersecret", RefreshToken: "alsosecret", Tenant: "acme"}
	s := token.String()
	assert.NotContains(s, "supersecret")
	assert.NotContains(s, "alsosecret")
	assert.Contains(s, RedactedToken)
	assert.Contains(s, "acme")

	var nilToken *Token
	assert.Empty(nilToken.String())
}
