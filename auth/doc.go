// Package auth provides client-side support for obtaining, caching and
// refreshing OAuth2 access tokens from a cloud identity provider.  It
// supports the Authorization Code Flow with PKCE and the Implicit Flow.
//
// The AuthManager owns the pre-redirect flow state and the post-redirect
// code exchange, the TokenManager owns the token lifecycle (tenant or
// global scoping, expiry checks, proactive renewal), and the Client facade
// composes the two behind LoginURL, LogoutURL and GetAccessToken.
package auth
