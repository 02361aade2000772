package auth

import (
	"fmt"
	"net/url"
	"strconv"
)

// redirectParams are the query parameters a code-flow redirect return
// carries.
type redirectParams struct {
	code      string
	state     string
	acceptTOS string
}

// parseRedirectParams validates the query parameters of a code-flow
// redirect return.  A provider error response is surfaced as an
// OAuthError carrying the provider's code and description; missing
// parameters fail with their canonical error.
func parseRedirectParams(q url.Values) (*redirectParams, error) {
	const op = "auth.parseRedirectParams"
	if e := q.Get("error"); e != "" {
		return nil, &OAuthError{Code: e, Description: q.Get("error_description")}
	}
	p := &redirectParams{
		code:      q.Get("code"),
		state:     q.Get("state"),
		acceptTOS: q.Get("accept_tos"),
	}
	if p.code == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingAuthCode)
	}
	if p.state == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingStateParam)
	}
	return p, nil
}

// fragmentParams are the hash parameters an implicit-flow redirect return
// carries.
type fragmentParams struct {
	accessToken string
	expiresIn   int
	tokenType   string
	idToken     string
	state       string
	scope       string
}

// parseFragmentParams validates the hash parameters of an implicit-flow
// redirect return.  Each required parameter has one canonical error.
func parseFragmentParams(q url.Values) (*fragmentParams, error) {
	const op = "auth.parseFragmentParams"
	if e := q.Get("error"); e != "" {
		return nil, &OAuthError{Code: e, Description: q.Get("error_description")}
	}
	p := &fragmentParams{
		accessToken: q.Get("access_token"),
		tokenType:   q.Get("token_type"),
		idToken:     q.Get("id_token"),
		state:       q.Get("state"),
		scope:       q.Get("scope"),
	}
	if p.accessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingAccessToken)
	}
	expiresIn, err := strconv.Atoi(q.Get("expires_in"))
	if err != nil || expiresIn <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingExpiresIn)
	}
	p.expiresIn = expiresIn
	if p.tokenType == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingTokenType)
	}
	if p.idToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingIDTokenParam)
	}
	return p, nil
}
