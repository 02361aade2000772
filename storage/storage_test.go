package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		areaName  string
		backend   Backend
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "valid",
			areaName: "redirect-oauth-params",
			backend:  NewMemory(),
		},
		{
			name:      "missing-name",
			backend:   NewMemory(),
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-backend",
			areaName:  "redirect-oauth-params",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewStore(tt.areaName, tt.backend)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted %q but got %q", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.areaName, got.Name())
		})
	}
}

func TestStore_SubKeys(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, err := NewStore("user-params", NewMemory())
	require.NoError(err)

	// absent area
	got, err := s.Get("")
	require.NoError(err)
	assert.Nil(got)
	got, err = s.Get("tenant")
	require.NoError(err)
	assert.Nil(got)

	require.NoError(s.Set("tenant", "acme"))
	require.NoError(s.Set("inviteID", "inv-1"))

	var tenant string
	ok, err := s.GetInto("tenant", &tenant)
	require.NoError(err)
	require.True(ok)
	assert.Equal("acme", tenant)

	// deleting one property leaves the others
	require.NoError(s.Delete("inviteID"))
	got, err = s.Get("inviteID")
	require.NoError(err)
	assert.Nil(got)
	got, err = s.Get("tenant")
	require.NoError(err)
	assert.JSONEq(`"acme"`, string(got))

	// deleting an absent property is not an error
	require.NoError(s.Delete("inviteID"))

	require.NoError(s.Clear())
	got, err = s.Get("")
	require.NoError(err)
	assert.Nil(got)
}

func TestStore_WholeBlob(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, err := NewStore("redirect-oauth-params", NewMemory())
	require.NoError(err)

	type flowParams struct {
		State         string `json:"state"`
		CodeVerifier  string `json:"codeVerifier"`
		CodeChallenge string `json:"codeChallenge"`
	}
	want := flowParams{State: "st", CodeVerifier: "cv", CodeChallenge: "cc"}
	require.NoError(s.Set("", want))

	var got flowParams
	ok, err := s.GetInto("", &got)
	require.NoError(err)
	require.True(ok)
	assert.Equal(want, got)

	// a whole-blob value must be a JSON object
	err = s.Set("", "not-an-object")
	require.Error(err)
	assert.True(errors.Is(err, ErrInvalidParameter))
}

func TestStore_MalformedBlob(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	m := NewMemory()
	require.NoError(m.Set("broken", "{not json"))
	s, err := NewStore("broken", m)
	require.NoError(err)

	_, err = s.Get("key")
	require.Error(err)
	assert.True(errors.Is(err, ErrStorage))
}

func TestMemory_Quota(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	m := NewMemory(WithQuota(8))
	require.NoError(m.Set("a", "12345678"))

	err := m.Set("b", "x")
	require.Error(err)
	assert.True(errors.Is(err, ErrQuotaExceeded))

	// overwriting within the quota is fine
	require.NoError(m.Set("a", "1234"))
	require.NoError(m.Set("b", "5678"))
}

func TestFile_RoundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(err)

	_, ok, err := f.Get("tokens")
	require.NoError(err)
	assert.False(ok)

	require.NoError(f.Set("tokens", `{"accessToken":{}}`))
	got, ok, err := f.Get("tokens")
	require.NoError(err)
	require.True(ok)
	assert.Equal(`{"accessToken":{}}`, got)

	// a second backend over the same directory sees the state
	f2, err := NewFile(dir)
	require.NoError(err)
	got, ok, err = f2.Get("tokens")
	require.NoError(err)
	require.True(ok)
	assert.Equal(`{"accessToken":{}}`, got)

	require.NoError(f.Delete("tokens"))
	_, ok, err = f.Get("tokens")
	require.NoError(err)
	assert.False(ok)

	// deleting an absent area is not an error
	require.NoError(f.Delete("tokens"))
}

func TestFile_SanitizesAreaNames(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(err)

	require.NoError(f.Set("../escape/attempt", "{}"))
	entries, err := os.ReadDir(dir)
	require.NoError(err)
	require.Len(entries, 1)
	assert.Equal("---escape-attempt.json", entries[0].Name())
}

func TestNewBackend_Fallback(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	t.Run("empty-dir-uses-memory", func(t *testing.T) {
		b := NewBackend("")
		_, ok := b.(*Memory)
		assert.True(ok)
	})
	t.Run("usable-dir-uses-file", func(t *testing.T) {
		b := NewBackend(t.TempDir())
		_, ok := b.(*File)
		assert.True(ok)
	})
	t.Run("unusable-dir-falls-back", func(t *testing.T) {
		// a regular file is not a usable directory
		path := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		b := NewBackend(path)
		_, ok := b.(*Memory)
		assert.True(ok)
	})
}
