package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ImplicitManager drives the Implicit Flow: the provider returns tokens
// directly in the redirect URL's fragment, so there is no code exchange,
// no PKCE and no persisted flow state.  Renewal re-runs the authorize
// round-trip; see TokenManager's GrantTypeImplicit.
type ImplicitManager struct {
	config  *Config
	newID   func(opt ...Option) (string, error)
	nowFunc func() time.Time
}

// NewImplicitManager creates an ImplicitManager.
func NewImplicitManager(c *Config) (*ImplicitManager, error) {
	const op = "auth.NewImplicitManager"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	return &ImplicitManager{
		config:  c,
		newID:   NewID,
		nowFunc: time.Now,
	}, nil
}

// AuthURL builds the URL of the provider's authorize endpoint for an
// implicit flow.  Caller-supplied extra parameters are merged last.
func (im *ImplicitManager) AuthURL(extra ...Param) (*url.URL, error) {
	const op = "auth.ImplicitManager.AuthURL"
	state, err := im.newID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	nonce, err := im.newID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	q := &queryParams{}
	q.set("client_id", im.config.ClientID)
	q.set("redirect_uri", im.config.RedirectURI)
	q.set("response_type", "token id_token")
	q.set("state", state)
	q.set("nonce", nonce)
	q.set("scope", strings.Join(im.config.scopes(), " "))
	for _, p := range extra {
		q.set(p.Key, p.Value)
	}
	host := im.config.Host
	if im.config.EnableMultiRegionSupport {
		host = deriveTenantHost(host, im.config.Tenant, im.config.Region)
	}
	return composeURL(host, "/authorize", q)
}

// ParseToken extracts the access token an implicit-flow redirect return
// carries in its fragment.  The redirectURL is the full URL the provider
// redirected back to.
func (im *ImplicitManager) ParseToken(redirectURL string) (*Token, error) {
	const op = "auth.ImplicitManager.ParseToken"
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse redirect url: %w", op, ErrInvalidParameter)
	}
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse url fragment: %w", op, ErrInvalidParameter)
	}
	params, err := parseFragmentParams(frag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Token{
		AccessToken: params.accessToken,
		TokenType:   params.tokenType,
		ExpiresIn:   params.expiresIn,
		ExpiresAt:   im.nowFunc().Add(time.Duration(params.expiresIn) * time.Second),
		Scopes:      strings.Fields(params.scope),
		Tenant:      im.config.Tenant,
	}, nil
}
