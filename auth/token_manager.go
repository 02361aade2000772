package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cloudauth/cloudauth-go/storage"
)

// GrantType selects how a TokenManager renews the tokens it holds.
type GrantType string

const (
	// GrantTypeAuthorizationCode renews through the provider's refresh
	// endpoint using the stored refresh token.
	GrantTypeAuthorizationCode GrantType = "authorization_code"

	// GrantTypeImplicit renews by re-running the caller-supplied token
	// retriever, since the implicit flow issues no refresh token.
	GrantTypeImplicit GrantType = "implicit"
)

// Storage sub-keys within the token area: the global token and the nested
// per-tenant map.
const (
	globalTokenKey = "accessToken"
	tenantTokenKey = "tenants"
)

// TokenRetriever re-acquires a token for implicit-grant renewal.
type TokenRetriever func(ctx context.Context) (*Token, error)

// TokenManager owns the post-authentication token lifecycle: it stores the
// current token per scope (global or tenant), answers validity checks and
// schedules proactive renewal.  At most one renewal timer is live per
// manager; every Set supersedes any pending timer.
//
// Renewal runs detached from any caller: its failures are logged, never
// returned, since an expired token simply sends the next access-token
// check back through the normal redirect path.
type TokenManager struct {
	config    *Config
	store     *storage.Store
	provider  ProviderClient
	grantType GrantType
	retriever TokenRetriever
	logger    hclog.Logger

	mu      sync.Mutex
	global  *Token
	tenants map[string]*Token
	timer   *time.Timer

	nowFunc func() time.Time
}

// NewTokenManager creates a TokenManager over the given storage backend.
// Tokens already persisted in the backend (from an earlier process in the
// same session scope) are loaded best-effort.  A nil backend gets a
// private in-memory one.
// Supported options: WithGrantType, WithTokenRetriever,
// WithProviderClient, WithNow
func NewTokenManager(c *Config, backend storage.Backend, opt ...Option) (*TokenManager, error) {
	const op = "auth.NewTokenManager"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	opts := getTokenManagerOpts(opt...)
	if backend == nil {
		backend = storage.NewMemory()
	}
	store, err := storage.NewStore(c.tokenStorageName(), backend)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create token store: %w", op, err)
	}
	provider := opts.withProviderClient
	if provider == nil {
		if provider, err = NewHTTPProvider(c); err != nil {
			return nil, fmt.Errorf("%s: unable to create provider client: %w", op, err)
		}
	}
	tm := &TokenManager{
		config:    c,
		store:     store,
		provider:  provider,
		grantType: opts.withGrantType,
		retriever: opts.withTokenRetriever,
		logger:    c.logger(),
		tenants:   map[string]*Token{},
		nowFunc:   opts.withNowFunc,
	}
	tm.load()
	return tm, nil
}

// load restores persisted tokens.  Unreadable state is logged and
// discarded; the manager starts empty rather than failing construction.
func (tm *TokenManager) load() {
	var global Token
	ok, err := tm.store.GetInto(globalTokenKey, &global)
	if err != nil {
		tm.logger.Warn("unable to restore global token", "error", err)
	} else if ok {
		tm.global = &global
	}
	tenants := map[string]*Token{}
	ok, err = tm.store.GetInto(tenantTokenKey, &tenants)
	if err != nil {
		tm.logger.Warn("unable to restore tenant tokens", "error", err)
	} else if ok {
		tm.tenants = tenants
	}
	if tm.tenants == nil {
		tm.tenants = map[string]*Token{}
	}
}

// Set stores the token in its scope: the global slot when the token has no
// tenant, otherwise the tenant's entry of the tenant map.  Setting one
// scope never disturbs the other.  When the config carries a renewal
// buffer, any pending renewal is cancelled and a new one is scheduled to
// fire the buffer ahead of the token's expiry.
func (tm *TokenManager) Set(token *Token) error {
	const op = "auth.TokenManager.Set"
	if token == nil {
		return fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if token.Tenant == "" {
		tm.global = token
		if err := tm.store.Set(globalTokenKey, token); err != nil {
			return fmt.Errorf("%s: unable to persist token: %w", op, err)
		}
	} else {
		tm.tenants[token.Tenant] = token
		if err := tm.store.Set(tenantTokenKey, tm.tenants); err != nil {
			return fmt.Errorf("%s: unable to persist token: %w", op, err)
		}
	}
	tm.schedule(token)
	return nil
}

// schedule arms the single renewal timer for the token.  Callers must hold
// tm.mu.
func (tm *TokenManager) schedule(token *Token) {
	if tm.config.AutoTokenRenewalBuffer <= 0 {
		return
	}
	if tm.timer != nil {
		tm.timer.Stop()
	}
	in := time.Duration(token.ExpiresIn)*time.Second - tm.config.AutoTokenRenewalBuffer
	if in < 0 {
		in = 0
	}
	renew := *token
	tm.timer = time.AfterFunc(in, func() {
		tm.refresh(&renew)
	})
}

// Get returns the tenant-scoped token when a tenant is given and one is
// held, falling back to the global token.
func (tm *TokenManager) Get(tenant string) *Token {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tenant != "" {
		if t, ok := tm.tenants[tenant]; ok {
			return t
		}
	}
	return tm.global
}

// Clear wipes all stored token state, global and tenant-scoped, and stops
// any pending renewal.
func (tm *TokenManager) Clear() error {
	const op = "auth.TokenManager.Clear"
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.global = nil
	tm.tenants = map[string]*Token{}
	if tm.timer != nil {
		tm.timer.Stop()
		tm.timer = nil
	}
	if err := tm.store.Clear(); err != nil {
		return fmt.Errorf("%s: unable to clear token storage: %w", op, err)
	}
	return nil
}

// refresh renews the token per the manager's grant type and stores the
// result.  Failures are logged, not returned: renewal is best effort and
// the next validity check will route an expired token back through the
// login redirect.
func (tm *TokenManager) refresh(token *Token) {
	ctx := context.Background()
	switch tm.grantType {
	case GrantTypeImplicit:
		if tm.retriever == nil {
			tm.logger.Warn("implicit token renewal needs a token retriever; skipping")
			return
		}
		fresh, err := tm.retriever(ctx)
		if err != nil {
			tm.logger.Warn("unable to renew token", "error", err)
			return
		}
		if err := tm.Set(fresh); err != nil {
			tm.logger.Warn("unable to store renewed token", "error", err)
		}
	default:
		if token.RefreshToken == "" {
			tm.logger.Warn("token has no refresh token; skipping renewal", "tenant", token.Tenant)
			return
		}
		if tm.config.EnableMultiRegionSupport {
			tm.provider.SetHost(deriveTenantHost(tm.config.Host, token.Tenant, tm.config.Region))
		}
		resp, err := tm.provider.Refresh(ctx, &RefreshRequest{
			ClientID:     tm.config.ClientID,
			RefreshToken: token.RefreshToken,
			Tenant:       token.Tenant,
			Scopes:       tm.config.scopes(),
		})
		if err != nil {
			tm.logger.Warn("unable to renew token", "tenant", token.Tenant, "error", err)
			return
		}
		fresh := newToken(resp, token.Tenant, tm.nowFunc)
		if fresh.RefreshToken == "" {
			// providers may omit the refresh token on renewal
			fresh.RefreshToken = token.RefreshToken
		}
		if err := tm.Set(fresh); err != nil {
			tm.logger.Warn("unable to store renewed token", "tenant", token.Tenant, "error", err)
		}
	}
}

// tokenManagerOptions is the set of available options for NewTokenManager
type tokenManagerOptions struct {
	withGrantType      GrantType
	withTokenRetriever TokenRetriever
	withProviderClient ProviderClient
	withNowFunc        func() time.Time
}

// tokenManagerDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func tokenManagerDefaults() tokenManagerOptions {
	return tokenManagerOptions{
		withGrantType: GrantTypeAuthorizationCode,
		withNowFunc:   time.Now,
	}
}

// getTokenManagerOpts gets the token manager defaults and applies the opt
// overrides passed in
func getTokenManagerOpts(opt ...Option) tokenManagerOptions {
	opts := tokenManagerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithGrantType provides an optional grant type controlling how a
// TokenManager renews tokens
func WithGrantType(g GrantType) Option {
	return func(o interface{}) {
		if o, ok := o.(*tokenManagerOptions); ok {
			o.withGrantType = g
		}
	}
}

// WithTokenRetriever provides the token retriever an implicit-grant
// TokenManager renews through
func WithTokenRetriever(f TokenRetriever) Option {
	return func(o interface{}) {
		if o, ok := o.(*tokenManagerOptions); ok {
			o.withTokenRetriever = f
		}
	}
}
