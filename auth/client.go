package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cloudauth/cloudauth-go/storage"
)

// Client is the thin facade composing an AuthManager and a TokenManager
// behind the three calls an application needs: LoginURL, LogoutURL and
// GetAccessToken.
type Client struct {
	config       *Config
	authManager  *AuthManager
	tokenManager *TokenManager
	backend      storage.Backend
}

// NewClient wires an AuthManager and a TokenManager over one shared
// storage backend.  A nil backend gets a private in-memory one.
// Supported options: WithProviderClient, WithRedirectHandledFunc
func NewClient(c *Config, backend storage.Backend, opt ...Option) (*Client, error) {
	const op = "auth.NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	if backend == nil {
		backend = storage.NewMemory()
	}
	am, err := NewAuthManager(c, backend, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tm, err := NewTokenManager(c, backend, append([]Option{WithProviderClient(am.provider)}, opt...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Client{
		config:       c,
		authManager:  am,
		tokenManager: tm,
		backend:      backend,
	}, nil
}

// LoginURL starts a fresh authentication flow and returns the authorize
// URL the application should navigate to.  The flow's transient state is
// persisted as a side effect; see AuthManager.AuthURL.
func (c *Client) LoginURL(extra ...Param) (*url.URL, error) {
	return c.authManager.AuthURL(extra...)
}

// LogoutURL returns the provider's logout URL.  The application should
// call ClearTokens and then navigate to it.
func (c *Client) LogoutURL(redirect string) (*url.URL, error) {
	return c.authManager.LogoutURL(redirect)
}

// TOSURL returns the provider's terms-of-service URL for a flow that
// failed with CodeTOSRequired.
func (c *Client) TOSURL() (*url.URL, error) {
	return c.authManager.TOSURL()
}

// GetAccessToken returns a valid access token: the cached one when it has
// not expired, otherwise the outcome of completing the return flow for the
// given redirect URL.  A freshly exchanged token is handed to the token
// manager, which schedules its renewal.
//
// Callers should treat a CodeTOSRequired failure by navigating to TOSURL;
// any other failure routes back to LoginURL.
func (c *Client) GetAccessToken(ctx context.Context, redirectURL string) (*Token, error) {
	const op = "auth.Client.GetAccessToken"
	tenant := ""
	if c.config.EnableTenantScopedTokens {
		tenant = c.config.Tenant
	}
	if t := c.tokenManager.Get(tenant); t.Valid() {
		return t, nil
	}
	t, err := c.authManager.GetAccessToken(ctx, redirectURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.tokenManager.Set(t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// ClearTokens wipes all cached token state.
func (c *Client) ClearTokens() error {
	return c.tokenManager.Clear()
}

// TokenManager exposes the client's token manager.
func (c *Client) TokenManager() *TokenManager { return c.tokenManager }
