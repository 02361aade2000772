package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Wire values for the token endpoint's grant_type field.
const (
	grantTypeAuthorizationCode = "authorization_code"
	grantTypeRefreshToken      = "refresh_token"
)

// ExchangeRequest carries the parameters of an authorization-code
// exchange.  The exchange is not idempotent: a duplicated code is rejected
// by the provider, so it must never be retried automatically.
type ExchangeRequest struct {
	ClientID     string
	Code         string
	CodeVerifier string
	RedirectURI  string

	// Tenant selects the tenant-scoped token endpoint when set.
	Tenant string

	// State is the raw state parameter the provider returned; it is
	// echoed back on the exchange.
	State string

	// AcceptTOS is forwarded when the user accepted the terms of service
	// during the flow.
	AcceptTOS string
}

// RefreshRequest carries the parameters of a refresh-token call.
type RefreshRequest struct {
	ClientID     string
	RefreshToken string
	Tenant       string
	Scopes       []string
}

// TokenResponse is the JSON body of a successful token endpoint call.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// ProviderClient performs the network half of the oauth flows against the
// identity provider.  The authorize, logout and tos endpoints are
// full-page navigation targets and are never fetched through it.
type ProviderClient interface {
	// Exchange swaps an authorization code for tokens.
	Exchange(ctx context.Context, r *ExchangeRequest) (*TokenResponse, error)

	// Refresh swaps a refresh token for fresh tokens.
	Refresh(ctx context.Context, r *RefreshRequest) (*TokenResponse, error)

	// Host returns the provider host requests are sent to.
	Host() string

	// SetHost re-points the client, used when tenant/region host
	// derivation resolves a different host mid-flow.
	SetHost(host string)
}

// HTTPProvider is the ProviderClient implementation speaking
// application/x-www-form-urlencoded to the provider's token endpoint.
type HTTPProvider struct {
	mu     sync.Mutex
	host   string
	client *http.Client
	logger hclog.Logger
}

var _ ProviderClient = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider client for the given host.  The
// config supplies the http client (including any provider CA) and logger.
func NewHTTPProvider(c *Config) (*HTTPProvider, error) {
	const op = "auth.NewHTTPProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	return &HTTPProvider{
		host:   c.Host,
		client: client,
		logger: c.logger(),
	}, nil
}

// Host implements ProviderClient.
func (p *HTTPProvider) Host() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.host
}

// SetHost implements ProviderClient.
func (p *HTTPProvider) SetHost(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.host = host
}

// Exchange implements ProviderClient.
func (p *HTTPProvider) Exchange(ctx context.Context, r *ExchangeRequest) (*TokenResponse, error) {
	const op = "auth.HTTPProvider.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: exchange request is nil: %w", op, ErrNilParameter)
	}
	form := url.Values{}
	form.Set("grant_type", grantTypeAuthorizationCode)
	form.Set("client_id", r.ClientID)
	form.Set("code", r.Code)
	form.Set("code_verifier", r.CodeVerifier)
	form.Set("redirect_uri", r.RedirectURI)
	if r.State != "" {
		form.Set("state", r.State)
	}
	if r.AcceptTOS != "" {
		form.Set("accept_tos", r.AcceptTOS)
	}
	return p.post(ctx, op, r.Tenant, form)
}

// Refresh implements ProviderClient.
func (p *HTTPProvider) Refresh(ctx context.Context, r *RefreshRequest) (*TokenResponse, error) {
	const op = "auth.HTTPProvider.Refresh"
	if r == nil {
		return nil, fmt.Errorf("%s: refresh request is nil: %w", op, ErrNilParameter)
	}
	form := url.Values{}
	form.Set("grant_type", grantTypeRefreshToken)
	form.Set("client_id", r.ClientID)
	form.Set("refresh_token", r.RefreshToken)
	if len(r.Scopes) > 0 {
		form.Set("scope", strings.Join(r.Scopes, " "))
	}
	return p.post(ctx, op, r.Tenant, form)
}

// tokenURL composes the token endpoint for an optional tenant scope.
func (p *HTTPProvider) tokenURL(tenant string) string {
	host := strings.TrimSuffix(p.Host(), "/")
	if tenant != "" {
		return host + "/" + tenant + "/token"
	}
	return host + "/token"
}

func (p *HTTPProvider) post(ctx context.Context, op, tenant string, form url.Values) (*TokenResponse, error) {
	endpoint := p.tokenURL(tenant)
	p.logger.Trace("token endpoint request", "endpoint", endpoint, "grant_type", form.Get("grant_type"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: token endpoint request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read token endpoint response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Code string `json:"error"`
			Desc string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
			return nil, &OAuthError{Code: errResp.Code, Description: errResp.Desc}
		}
		return nil, fmt.Errorf("%s: token endpoint returned status %d", op, resp.StatusCode)
	}
	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token endpoint response: %w", op, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%s: token endpoint response has no access_token: %w", op, ErrInvalidParameter)
	}
	return &tr, nil
}
