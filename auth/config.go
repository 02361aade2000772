package auth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"

	"github.com/cloudauth/cloudauth-go/auth/internal/strutils"
)

// DefaultScopes are the oauth scopes requested when the config provides
// none.
var DefaultScopes = []string{"openid", "email", "profile", "offline_access"}

// Config is the immutable per-instance configuration for an AuthManager,
// ImplicitManager or Client.
type Config struct {
	// Host is the identity provider's base URL, e.g.
	// https://auth.example.com.  Tenant/region host derivation is applied
	// on top of it when multi-region support is enabled.
	Host string

	// ClientID is the relying party id.
	ClientID string

	// RedirectURI is the URL the provider redirects back to after the
	// authentication completes.
	RedirectURI string

	// Tenant is the customer tenant the client authenticates into, if
	// known up front.
	Tenant string

	// Region is the provider region, if known up front.
	Region string

	// Scopes is the list of oauth scopes to request.  Defaults to
	// DefaultScopes.
	Scopes []string

	// FlowStateStorageName, UserStateStorageName and TokenStorageName are
	// the storage-area names for the three persisted blobs.
	FlowStateStorageName string
	UserStateStorageName string
	TokenStorageName     string

	// EnableTenantScopedTokens scopes exchanged tokens to the tenant the
	// user authenticated into instead of the global slot.
	EnableTenantScopedTokens bool

	// EnableMultiRegionSupport applies tenant/region host derivation to
	// the provider host before authorize and token calls.
	EnableMultiRegionSupport bool

	// AutoTokenRenewalBuffer is how long before expiry a cached token is
	// proactively renewed.  Zero disables scheduled renewal.
	AutoTokenRenewalBuffer time.Duration

	// ProviderCA is an optional CA cert PEM to use when sending requests
	// to the provider.
	ProviderCA string

	// Logger is an optional logger; log-don't-fail paths (cleanup and
	// renewal failures) report through it.
	Logger hclog.Logger
}

// NewConfig composes a new config.
// Supported options:
//	WithScopes
//	WithTenant
//	WithRegion
//	WithTenantScopedTokens
//	WithMultiRegionSupport
//	WithRenewalBuffer
//	WithProviderCA
//	WithLogger
//	WithStorageNames
func NewConfig(host, clientID, redirectURI string, opt ...Option) (*Config, error) {
	const op = "auth.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Host:                     host,
		ClientID:                 clientID,
		RedirectURI:              redirectURI,
		Tenant:                   opts.withTenant,
		Region:                   opts.withRegion,
		Scopes:                   opts.withScopes,
		FlowStateStorageName:     opts.withFlowStateStorageName,
		UserStateStorageName:     opts.withUserStateStorageName,
		TokenStorageName:         opts.withTokenStorageName,
		EnableTenantScopedTokens: opts.withTenantScopedTokens,
		EnableMultiRegionSupport: opts.withMultiRegionSupport,
		AutoTokenRenewalBuffer:   opts.withRenewalBuffer,
		ProviderCA:               opts.withProviderCA,
		Logger:                   opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration.  Configuration errors are fatal at
// construction.
func (c *Config) Validate() error {
	const op = "auth.Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.Host == "" {
		return fmt.Errorf("%s: host is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(c.Host)
	if err != nil {
		return fmt.Errorf("%s: host %s is invalid: %w", op, c.Host, ErrInvalidParameter)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s: host %s scheme is not http or https: %w", op, c.Host, ErrInvalidParameter)
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("%s: redirect URI is empty: %w", op, ErrInvalidParameter)
	}
	if c.AutoTokenRenewalBuffer < 0 {
		return fmt.Errorf("%s: renewal buffer is negative: %w", op, ErrInvalidParameter)
	}
	return nil
}

// scopes returns the configured scopes or the defaults.
func (c *Config) scopes() []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return DefaultScopes
}

// logger returns the configured logger or a null logger.
func (c *Config) logger() hclog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return hclog.NewNullLogger()
}

// flowStateStorageName, userStateStorageName and tokenStorageName return
// the configured area names or their defaults.
func (c *Config) flowStateStorageName() string {
	if c.FlowStateStorageName != "" {
		return c.FlowStateStorageName
	}
	return DefaultFlowStateStorageName
}

func (c *Config) userStateStorageName() string {
	if c.UserStateStorageName != "" {
		return c.UserStateStorageName
	}
	return DefaultUserStateStorageName
}

func (c *Config) tokenStorageName() string {
	if c.TokenStorageName != "" {
		return c.TokenStorageName
	}
	return DefaultTokenStorageName
}

// HTTPClient creates a new http client for the configured provider, using
// the optional CA cert PEM when one is provided.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "auth.Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{Transport: tr}, nil
}

// configOptions is the set of available options for NewConfig
type configOptions struct {
	withScopes               []string
	withTenant               string
	withRegion               string
	withFlowStateStorageName string
	withUserStateStorageName string
	withTokenStorageName     string
	withTenantScopedTokens   bool
	withMultiRegionSupport   bool
	withRenewalBuffer        time.Duration
	withProviderCA           string
	withLogger               hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the config defaults and applies the opt overrides
// passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes for the config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithTenant provides an optional tenant for the config
func WithTenant(tenant string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTenant = tenant
		}
	}
}

// WithRegion provides an optional region for the config
func WithRegion(region string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRegion = region
		}
	}
}

// WithTenantScopedTokens enables tenant-scoped token storage
func WithTenantScopedTokens() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTenantScopedTokens = true
		}
	}
}

// WithMultiRegionSupport enables tenant/region host derivation
func WithMultiRegionSupport() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withMultiRegionSupport = true
		}
	}
}

// WithRenewalBuffer provides an optional buffer before expiry at which
// tokens are proactively renewed
func WithRenewalBuffer(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRenewalBuffer = d
		}
	}
}

// WithProviderCA provides an optional CA cert PEM for the config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for the config
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}

// WithStorageNames provides optional storage-area names for the flow
// state, user state and token blobs
func WithStorageNames(flowState, userState, token string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withFlowStateStorageName = flowState
			o.withUserStateStorageName = userState
			o.withTokenStorageName = token
		}
	}
}
