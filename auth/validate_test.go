package auth

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedirectParams(t *testing.T) {
	t.Parallel()
	t.Run("complete", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := parseRedirectParams(url.Values{
			"code":       {"iamcode"},
			"state":      {"iamstate"},
			"accept_tos": {"1"},
		})
		require.NoError(err)
		assert.Equal("iamcode", got.code)
		assert.Equal("iamstate", got.state)
		assert.Equal("1", got.acceptTOS)
	})
	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := parseRedirectParams(url.Values{
			"error":             {"access_denied"},
			"error_description": {"the user denied the request"},
		})
		require.Error(err)
		var oe *OAuthError
		require.True(errors.As(err, &oe))
		assert.Equal("access_denied", oe.Code)
		assert.Equal("the user denied the request", oe.Description)
	})
	t.Run("missing-code", func(t *testing.T) {
		assert := assert.New(t)
		_, err := parseRedirectParams(url.Values{"state": {"iamstate"}})
		assert.ErrorIs(err, ErrMissingAuthCode)
		assert.Contains(err.Error(), "unable to parse the code query parameter from the url")
	})
	t.Run("missing-state", func(t *testing.T) {
		assert := assert.New(t)
		_, err := parseRedirectParams(url.Values{"code": {"iamcode"}})
		assert.ErrorIs(err, ErrMissingStateParam)
	})
}

func TestParseFragmentParams(t *testing.T) {
	t.Parallel()
	complete := url.Values{
		"access_token": {"accesstoken"},
		"expires_in":   {"3600"},
		"token_type":   {"Bearer"},
		"id_token":     {"idtoken"},
		"state":        {"iamstate"},
		"scope":        {"openid email"},
	}
	without := func(key string) url.Values {
		v := url.Values{}
		for k, vals := range complete {
			if k != key {
				v[k] = vals
			}
		}
		return v
	}

	t.Run("complete", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := parseFragmentParams(complete)
		require.NoError(err)
		assert.Equal("accesstoken", got.accessToken)
		assert.Equal(3600, got.expiresIn)
		assert.Equal("Bearer", got.tokenType)
		assert.Equal("idtoken", got.idToken)
		assert.Equal("iamstate", got.state)
		assert.Equal("openid email", got.scope)
	})
	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := parseFragmentParams(url.Values{"error": {"login_required"}})
		require.Error(err)
		var oe *OAuthError
		require.True(errors.As(err, &oe))
		assert.Equal("login_required", oe.Code)
	})

	missing := []struct {
		key     string
		wantErr error
	}{
		{"access_token", ErrMissingAccessToken},
		{"expires_in", ErrMissingExpiresIn},
		{"token_type", ErrMissingTokenType},
		{"id_token", ErrMissingIDTokenParam},
	}
	for _, tt := range missing {
		t.Run("missing-"+tt.key, func(t *testing.T) {
			assert := assert.New(t)
			_, err := parseFragmentParams(without(tt.key))
			assert.ErrorIs(err, tt.wantErr)
		})
	}

	t.Run("non-numeric-expires-in", func(t *testing.T) {
		assert := assert.New(t)
		v := without("expires_in")
		v.Set("expires_in", "soon")
		_, err := parseFragmentParams(v)
		assert.ErrorIs(err, ErrMissingExpiresIn)
	})
	t.Run("non-positive-expires-in", func(t *testing.T) {
		assert := assert.New(t)
		v := without("expires_in")
		v.Set("expires_in", "0")
		_, err := parseFragmentParams(v)
		assert.ErrorIs(err, ErrMissingExpiresIn)
	})
}
