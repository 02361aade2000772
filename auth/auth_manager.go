package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/cloudauth/cloudauth-go/storage"
)

// AuthManager drives the Authorization Code with PKCE flow: it builds the
// authorize URL and persists the pre-redirect flow state, and on return it
// validates and consumes that state exactly once, exchanges the
// authorization code for tokens, and handles the tenant/region host
// derivation and the unsigned-TOS sub-flow.
//
// A manager completes at most one return flow: GetAccessToken parses the
// redirect URL and hits the network once per instance, caching its outcome
// for any later calls.
type AuthManager struct {
	config    *Config
	flowStore *storage.Store
	userStore *storage.Store
	provider  ProviderClient
	onHandled func(cleanedURL string)
	logger    hclog.Logger

	mu       sync.Mutex
	done     bool
	token    *Token
	tokenErr error

	// test seams
	newID       func(opt ...Option) (string, error)
	newVerifier func(opt ...Option) (*CodeVerifier, error)
	nowFunc     func() time.Time
}

// NewAuthManager creates an AuthManager over the given storage backend.
// The backend is an explicit dependency of each manager; no ambient
// storage is shared between instances.  A nil backend gets a private
// in-memory one.
// Supported options: WithProviderClient, WithRedirectHandledFunc
func NewAuthManager(c *Config, backend storage.Backend, opt ...Option) (*AuthManager, error) {
	const op = "auth.NewAuthManager"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	opts := getManagerOpts(opt...)
	if backend == nil {
		backend = storage.NewMemory()
	}
	flowStore, err := storage.NewStore(c.flowStateStorageName(), backend)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create flow state store: %w", op, err)
	}
	userStore, err := storage.NewStore(c.userStateStorageName(), backend)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create user state store: %w", op, err)
	}
	provider := opts.withProviderClient
	if provider == nil {
		if provider, err = NewHTTPProvider(c); err != nil {
			return nil, fmt.Errorf("%s: unable to create provider client: %w", op, err)
		}
	}
	return &AuthManager{
		config:      c,
		flowStore:   flowStore,
		userStore:   userStore,
		provider:    provider,
		onHandled:   opts.withRedirectHandledFunc,
		logger:      c.logger(),
		newID:       NewID,
		newVerifier: NewCodeVerifier,
		nowFunc:     time.Now,
	}, nil
}

// authorizeHost resolves the host the authorize URL points at, applying
// tenant/region derivation when multi-region support is enabled.
func (am *AuthManager) authorizeHost(tenant, region string) string {
	if !am.config.EnableMultiRegionSupport {
		return am.config.Host
	}
	return deriveTenantHost(am.config.Host, tenant, region)
}

// AuthURL builds the URL of the provider's authorize endpoint for a fresh
// flow and, as a documented side effect, persists the flow's transient
// oauth parameters (state, code verifier, code challenge) so the flow can
// be completed after the full-page redirect.  Caller-supplied extra
// parameters are merged last, last write per key winning.
func (am *AuthManager) AuthURL(extra ...Param) (*url.URL, error) {
	const op = "auth.AuthManager.AuthURL"
	verifier, err := am.newVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code verifier: %w", op, err)
	}
	state, err := am.newID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	nonce, err := am.newID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}

	// user state persisted by an earlier return flow carries the
	// tenant/email hints forward into re-authentication
	var us UserState
	if _, err := am.userStore.GetInto("", &us); err != nil {
		am.logger.Warn("unable to read stored user state", "error", err)
	}

	q := &queryParams{}
	q.set("client_id", am.config.ClientID)
	q.set("code_challenge", verifier.Challenge())
	q.set("code_challenge_method", string(S256))
	q.set("redirect_uri", am.config.RedirectURI)
	q.set("response_type", "code")
	q.set("state", state)
	q.set("nonce", nonce)
	q.set("scope", strings.Join(am.config.scopes(), " "))
	q.set("encode_state", "1")
	q.set("tenant", us.Tenant)
	q.set("email", us.Email)
	for _, p := range extra {
		q.set(p.Key, p.Value)
	}

	fs := FlowState{
		State:         state,
		CodeVerifier:  verifier.Verifier(),
		CodeChallenge: verifier.Challenge(),
	}
	if err := am.flowStore.Set("", fs); err != nil {
		return nil, fmt.Errorf("%s: unable to persist flow state: %w", op, err)
	}

	host := am.authorizeHost(am.config.Tenant, am.config.Region)
	return composeURL(host, "/authorize", q)
}

// GetAccessToken completes the flow on return from the provider: it
// validates the redirect parameters against the persisted flow state,
// exchanges the authorization code for tokens and consumes the flow state.
// The redirectURL is the full URL the provider redirected back to.
//
// The operation runs at most once per manager instance; later calls return
// the first call's outcome.  The exchange itself is never retried: a
// duplicated authorization code is rejected by the provider.
func (am *AuthManager) GetAccessToken(ctx context.Context, redirectURL string) (*Token, error) {
	am.mu.Lock()
	defer am.mu.Unlock()
	if am.done {
		return am.token, am.tokenErr
	}
	token, err := am.getAccessToken(ctx, redirectURL)
	am.done = true
	am.token, am.tokenErr = token, err
	return token, err
}

func (am *AuthManager) getAccessToken(ctx context.Context, redirectURL string) (*Token, error) {
	const op = "auth.AuthManager.GetAccessToken"
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse redirect url: %w", op, ErrInvalidParameter)
	}
	params, err := parseRedirectParams(u.Query())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var fs FlowState
	ok, err := am.flowStore.GetInto("", &fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrFlowStateInvalid, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNoFlowState)
	}
	if err := fs.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// the transient oauth response parameters have been captured; hand the
	// cleaned URL back so the caller can replace its location
	if am.onHandled != nil {
		am.onHandled(StripAuthParams(redirectURL))
	}

	// the flow state is deliberately kept in storage until the returned
	// state has been correlated: a decode failure or mismatch here must
	// not consume it
	us, err := DecodeUserState(params.state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if us.ClientState != fs.State {
		return nil, &OAuthError{
			Code:        CodeStateMismatch,
			Description: "response state does not match request state",
		}
	}
	if err := am.userStore.Set("", us); err != nil {
		return nil, fmt.Errorf("%s: unable to persist user state: %w", op, err)
	}

	tenant := ""
	if am.config.EnableTenantScopedTokens {
		tenant = us.Tenant
	}
	if am.config.EnableMultiRegionSupport {
		am.provider.SetHost(deriveTenantHost(am.config.Host, tenant, us.Region))
	}

	acceptTOS := us.AcceptTOS
	if acceptTOS == "" {
		acceptTOS = params.acceptTOS
	}

	resp, err := am.provider.Exchange(ctx, &ExchangeRequest{
		ClientID:     am.config.ClientID,
		Code:         params.code,
		CodeVerifier: fs.CodeVerifier,
		RedirectURI:  am.config.RedirectURI,
		Tenant:       tenant,
		State:        params.state,
		AcceptTOS:    acceptTOS,
	})
	if err == nil && resp.RefreshToken == "" {
		err = &OAuthError{
			Code:        CodeTokenFailure,
			Description: "Failed to retrieve access token from token endpoint. Missing refresh token.",
		}
	}
	if err != nil {
		// an unsigned-TOS rejection keeps the flow state so the caller
		// can continue the flow at the TOS URL
		if strings.Contains(err.Error(), tosAcceptanceMarker) {
			return nil, &OAuthError{Code: CodeTOSRequired, Description: err.Error()}
		}
		am.consumeFlowState()
		var oe *OAuthError
		if errors.As(err, &oe) {
			return nil, oe
		}
		return nil, &OAuthError{
			Code:        CodeTokenFailure,
			Description: "Failed to retrieve access token from token endpoint. " + err.Error(),
		}
	}

	am.consumeFlowState()
	return newToken(resp, tenant, am.nowFunc), nil
}

// consumeFlowState removes the single-use flow parameters and the invite
// keys of the user state after an exchange attempt, in that order.  Every
// deletion is attempted even when an earlier one fails; failures are
// collected and logged, never propagated, so the caller still receives the
// outcome of the exchange itself.
func (am *AuthManager) consumeFlowState() {
	var errs *multierror.Error
	if err := am.flowStore.Clear(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("flow state: %w", err))
	}
	for _, key := range []string{"inviteID", "inviteTenant"} {
		if err := am.userStore.Delete(key); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("user state %s: %w", key, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		am.logger.Warn("unable to remove transient flow state", "error", err)
	}
}

// TOSURL builds the URL of the provider's terms-of-service page.  It is
// callable after GetAccessToken failed with CodeTOSRequired: the persisted
// flow state's state and code challenge are reused, not regenerated, so
// the TOS round-trip continues the same flow.  When the user state carries
// an invite, the flow authenticates into the invited tenant.
func (am *AuthManager) TOSURL() (*url.URL, error) {
	const op = "auth.AuthManager.TOSURL"
	var fs FlowState
	ok, err := am.flowStore.GetInto("", &fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrFlowStateInvalid, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNoFlowState)
	}
	if err := fs.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var us UserState
	if _, err := am.userStore.GetInto("", &us); err != nil {
		return nil, fmt.Errorf("%s: unable to read user state: %w", op, err)
	}

	tenant := us.Tenant
	if us.InviteID != "" {
		tenant = us.InviteTenant
	}

	q := &queryParams{}
	q.set("client_id", am.config.ClientID)
	q.set("code_challenge", fs.CodeChallenge)
	q.set("code_challenge_method", string(S256))
	q.set("redirect_uri", am.config.RedirectURI)
	q.set("response_type", "code")
	q.set("state", fs.State)
	q.set("scope", strings.Join(am.config.scopes(), " "))
	q.set("encode_state", "1")
	q.set("tenant", tenant)
	q.set("email", us.Email)
	q.set("inviteID", us.InviteID)
	q.set("inviteTenant", us.InviteTenant)

	host := am.authorizeHost(tenant, us.Region)
	return composeURL(host, "/tos", q)
}

// LogoutURL builds the URL of the provider's logout endpoint.  The
// redirect argument overrides the configured redirect URI.
func (am *AuthManager) LogoutURL(redirect string) (*url.URL, error) {
	const op = "auth.AuthManager.LogoutURL"
	if redirect == "" {
		redirect = am.config.RedirectURI
	}
	q := &queryParams{}
	q.set("redirect_uri", redirect)
	u, err := composeURL(am.config.Host, "/logout", q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// managerOptions is the set of available options for NewAuthManager
type managerOptions struct {
	withProviderClient      ProviderClient
	withRedirectHandledFunc func(cleanedURL string)
}

// managerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func managerDefaults() managerOptions {
	return managerOptions{}
}

// getManagerOpts gets the manager defaults and applies the opt overrides
// passed in
func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithProviderClient provides an optional ProviderClient, replacing the
// HTTP client built from the config
func WithProviderClient(p ProviderClient) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *managerOptions:
			v.withProviderClient = p
		case *tokenManagerOptions:
			v.withProviderClient = p
		}
	}
}

// WithRedirectHandledFunc provides an optional callback invoked with the
// cleaned redirect URL once the transient oauth response parameters have
// been captured
func WithRedirectHandledFunc(f func(cleanedURL string)) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok {
			o.withRedirectHandledFunc = f
		}
	}
}
