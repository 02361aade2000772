package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParams(t *testing.T) {
	t.Parallel()
	t.Run("preserves-insertion-order", func(t *testing.T) {
		assert := assert.New(t)
		q := &queryParams{}
		q.set("zebra", "1")
		q.set("apple", "2")
		q.set("mango", "3")
		assert.Equal("zebra=1&apple=2&mango=3", q.encode())
	})
	t.Run("replaces-in-place", func(t *testing.T) {
		assert := assert.New(t)
		q := &queryParams{}
		q.set("a", "1")
		q.set("b", "2")
		q.set("a", "override")
		assert.Equal("a=override&b=2", q.encode())
	})
	t.Run("omits-empty-values", func(t *testing.T) {
		assert := assert.New(t)
		q := &queryParams{}
		q.set("a", "1")
		q.set("tenant", "")
		q.set("b", "2")
		assert.Equal("a=1&b=2", q.encode())
	})
	t.Run("encodes-spaces-as-percent-20", func(t *testing.T) {
		assert := assert.New(t)
		q := &queryParams{}
		q.set("scope", "openid email profile")
		q.set("redirect_uri", "https://redirect.com/a b")
		assert.Equal("scope=openid%20email%20profile&redirect_uri=https%3A%2F%2Fredirect.com%2Fa%20b", q.encode())
	})
}

func TestDeriveTenantHost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		host   string
		tenant string
		region string
		want   string
	}{
		{
			name:   "tenant-prefix",
			host:   "https://auth.example.com",
			tenant: "acme",
			want:   "https://acme.auth.example.com",
		},
		{
			name:   "system-tenant-uses-region",
			host:   "https://auth.example.com",
			tenant: "system",
			region: "iad10",
			want:   "https://region-iad10.auth.example.com",
		},
		{
			name:   "no-tenant-uses-region",
			host:   "https://auth.example.com",
			region: "iad10",
			want:   "https://region-iad10.auth.example.com",
		},
		{
			name: "nothing-to-derive",
			host: "https://auth.example.com",
			want: "https://auth.example.com",
		},
		{
			name:   "already-prefixed",
			host:   "https://acme.auth.example.com",
			tenant: "acme",
			want:   "https://acme.auth.example.com",
		},
		{
			name:   "non-https-left-alone",
			host:   "http://localhost:8080",
			tenant: "acme",
			want:   "http://localhost:8080",
		},
		{
			name:   "tenant-wins-over-region",
			host:   "https://auth.example.com",
			tenant: "acme",
			region: "iad10",
			want:   "https://acme.auth.example.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tt.want, deriveTenantHost(tt.host, tt.tenant, tt.region))
		})
	}
}

func TestComposeURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	q := &queryParams{}
	q.set("a", "1")
	u, err := composeURL("https://auth.example.com/", "/authorize", q)
	require.NoError(err)
	assert.Equal("https://auth.example.com/authorize?a=1", u.String())

	u, err = composeURL("https://auth.example.com", "/logout", &queryParams{})
	require.NoError(err)
	assert.Equal("https://auth.example.com/logout", u.String())
}

func TestStripAuthParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "code-and-state",
			in:   "https://redirect.com?code=abc&state=xyz",
			want: "https://redirect.com",
		},
		{
			name: "other-params-survive",
			in:   "https://redirect.com/app?keep=1&code=abc&state=xyz",
			want: "https://redirect.com/app?keep=1",
		},
		{
			name: "fragment-removed",
			in:   "https://redirect.com/app#access_token=secret&expires_in=3600",
			want: "https://redirect.com/app",
		},
		{
			name: "idempotent",
			in:   "https://redirect.com/app?keep=1",
			want: "https://redirect.com/app?keep=1",
		},
		{
			name: "unparsable-left-alone",
			in:   "https://redirect.com/%zz",
			want: "https://redirect.com/%zz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tt.want, StripAuthParams(tt.in))
			// applying the strip twice changes nothing
			assert.Equal(tt.want, StripAuthParams(StripAuthParams(tt.in)))
		})
	}
}
