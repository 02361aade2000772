package auth

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestProvider is a local server with test identity-provider capabilities
// which make writing tests much easier.  It serves the token endpoint
// (global and tenant-scoped) plus static authorize/logout/tos pages.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu               sync.Mutex
	clientID         string
	expectedAuthCode string
	expectedVerifier string
	omitRefreshToken bool
	tosRequired      bool
	replyExpiresIn   int
	replyScope       string
	replyTokenType   string
	exchangeCount    int
	refreshCount     int
	lastExchangeForm map[string]string
	lastExchangePath string

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider on a TLS test
// server.  Its CACert pairs with the config's WithProviderCA option.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:              t,
		replyExpiresIn: 3600,
		replyScope:     "openid email profile offline_access",
		replyTokenType: "Bearer",
	}
	p.httpServer = httptest.NewTLSServer(p)
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	require.NotNil(cert)
	var buf bytes.Buffer
	require.NoError(pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running
// webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test
// provider's HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SetClientID configures the client id /token requires.
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetExpectedAuthCode configures the only authorization code /token will
// accept.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedCodeVerifier configures the only PKCE code verifier /token
// will accept.
func (p *TestProvider) SetExpectedCodeVerifier(verifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedVerifier = verifier
}

// OmitRefreshTokens forces an error state where the token response has no
// refresh_token.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// RequireTOSAcceptance makes /token reject exchanges that do not carry
// accept_tos, the way the provider rejects users with unsigned terms of
// service.
func (p *TestProvider) RequireTOSAcceptance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tosRequired = true
}

// SetReplyExpiresIn configures the expires_in value of token responses.
func (p *TestProvider) SetReplyExpiresIn(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiresIn = seconds
}

// ExchangeCount and RefreshCount report how many code exchanges and
// refreshes the provider served.
func (p *TestProvider) ExchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeCount
}

func (p *TestProvider) RefreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCount
}

// LastExchange reports the path and form of the last code exchange the
// provider served.
func (p *TestProvider) LastExchange() (path string, form map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastExchangePath, p.lastExchangeForm
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) {
	p.t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(p.t, json.NewEncoder(w).Encode(out))
}

func (p *TestProvider) writeTokenError(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.HasSuffix(req.URL.Path, "/token") && req.Method == http.MethodPost:
		p.serveToken(w, req)
	case req.URL.Path == "/authorize", req.URL.Path == "/logout", req.URL.Path == "/tos":
		// full-page navigation targets; content is irrelevant to the flows
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) serveToken(w http.ResponseWriter, req *http.Request) {
	p.t.Helper()
	require.NoError(p.t, req.ParseForm())

	form := map[string]string{}
	for k := range req.PostForm {
		form[k] = req.PostForm.Get(k)
	}

	if p.clientID != "" && form["client_id"] != p.clientID {
		p.writeTokenError(w, http.StatusUnauthorized, "invalid_client", "invalid client id")
		return
	}

	switch form["grant_type"] {
	case grantTypeAuthorizationCode:
		p.exchangeCount++
		p.lastExchangePath = req.URL.Path
		p.lastExchangeForm = form
		if p.tosRequired && form["accept_tos"] == "" {
			p.writeTokenError(w, http.StatusForbidden, "invalid_request", "user has not accepted the terms of service")
			return
		}
		if p.expectedAuthCode != "" && form["code"] != p.expectedAuthCode {
			p.writeTokenError(w, http.StatusUnauthorized, "invalid_grant", "unexpected authorization code")
			return
		}
		if p.expectedVerifier != "" && form["code_verifier"] != p.expectedVerifier {
			p.writeTokenError(w, http.StatusUnauthorized, "invalid_grant", "unexpected code verifier")
			return
		}
		p.writeTokenReply(w, "test-access-token")
	case grantTypeRefreshToken:
		p.refreshCount++
		if form["refresh_token"] == "" {
			p.writeTokenError(w, http.StatusBadRequest, "invalid_request", "missing refresh token")
			return
		}
		p.writeTokenReply(w, "test-refreshed-access-token")
	default:
		p.writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (p *TestProvider) writeTokenReply(w http.ResponseWriter, accessToken string) {
	reply := map[string]interface{}{
		"access_token": accessToken,
		"token_type":   p.replyTokenType,
		"expires_in":   p.replyExpiresIn,
		"scope":        p.replyScope,
		"id_token":     "test-id-token",
	}
	if !p.omitRefreshToken {
		reply["refresh_token"] = "test-refresh-token"
	}
	p.writeJSON(w, reply)
}
