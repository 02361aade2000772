package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Param is one query parameter for an authorize-style URL.  Parameter
// order is significant on the wire, so URLs are assembled from ordered
// Param lists rather than a url.Values map.
type Param struct {
	Key   string
	Value string
}

// queryParams assembles an insertion-ordered query string.  Setting an
// existing key replaces its value in place; new keys append.  Parameters
// with empty values are omitted from the encoded form.
type queryParams struct {
	params []Param
}

func (q *queryParams) set(key, value string) {
	for i := range q.params {
		if q.params[i].Key == key {
			q.params[i].Value = value
			return
		}
	}
	q.params = append(q.params, Param{Key: key, Value: value})
}

func (q *queryParams) encode() string {
	var b strings.Builder
	for _, p := range q.params {
		if p.Value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(encodeComponent(p.Key))
		b.WriteByte('=')
		b.WriteString(encodeComponent(p.Value))
	}
	return b.String()
}

// encodeComponent percent-encodes a query component, encoding spaces as
// %20 rather than '+'.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// tenantSystem is the shared control-plane tenant; it never selects a
// tenant-prefixed host.
const tenantSystem = "system"

// deriveTenantHost derives the effective provider host for a tenant/region
// pair.  The host gains a "<tenant>." prefix, or a "region-<region>."
// prefix when the tenant is absent or the system tenant.  Derivation is
// skipped for non-https hosts and for hosts that already carry the prefix.
func deriveTenantHost(host, tenant, region string) string {
	u, err := url.Parse(host)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return host
	}
	var prefix string
	switch {
	case tenant != "" && tenant != tenantSystem:
		prefix = tenant + "."
	case region != "":
		prefix = "region-" + region + "."
	default:
		return host
	}
	if strings.HasPrefix(u.Host, prefix) {
		return host
	}
	u.Host = prefix + u.Host
	return u.String()
}

// composeURL joins a provider host, a path and an ordered set of query
// parameters into a URL.
func composeURL(host, path string, q *queryParams) (*url.URL, error) {
	const op = "auth.composeURL"
	raw := strings.TrimSuffix(host, "/") + path
	if encoded := q.encode(); encoded != "" {
		raw += "?" + encoded
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to compose url for host %q: %w", op, host, err)
	}
	return u, nil
}

// StripAuthParams returns rawURL with the transient oauth response
// parameters (code and state query parameters, plus any fragment) removed.
// Callers should replace their current location with the returned URL once
// the redirect response has been handled.  The operation is pure and
// idempotent; it returns rawURL unchanged when it cannot be parsed.
func StripAuthParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del("code")
	q.Del("state")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
