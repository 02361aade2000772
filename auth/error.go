package auth

import (
	"errors"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed = errors.New("id generation failed")

	// ErrUnsupportedChallengeMethod is returned when a challenge method
	// other than S256 is requested.
	ErrUnsupportedChallengeMethod = errors.New("unsupported challenge method")

	// ErrNoFlowState is returned by the return-flow handler when the
	// pre-redirect flow parameters are absent from storage: either they
	// were never written or they were already consumed by an earlier
	// exchange attempt.
	ErrNoFlowState = errors.New("no redirect params in storage")

	// ErrFlowStateInvalid is returned when the persisted flow parameters
	// cannot be parsed or are missing a required field.
	ErrFlowStateInvalid = errors.New("unable to parse redirect params from storage")

	// ErrUserStateInvalid is returned when the state query parameter
	// returned by the provider cannot be decoded, or decodes without a
	// tenant.
	ErrUserStateInvalid = errors.New("unable to parse state parameter")

	// Canonical redirect-parameter validation errors.  One error per
	// missing field so callers and tests can assert on exact text.
	ErrMissingAuthCode     = errors.New("unable to parse the code query parameter from the url")
	ErrMissingStateParam   = errors.New("unable to parse the state query parameter from the url")
	ErrMissingAccessToken  = errors.New("unable to parse the access_token hash parameter from the url")
	ErrMissingExpiresIn    = errors.New("unable to parse the expires_in hash parameter from the url")
	ErrMissingTokenType    = errors.New("unable to parse the token_type hash parameter from the url")
	ErrMissingIDTokenParam = errors.New("unable to parse the id_token hash parameter from the url")
)

// Machine-readable codes carried by OAuthError.
const (
	// CodeStateMismatch is raised when the state returned by the provider
	// does not correlate with the persisted flow state.
	CodeStateMismatch = "invalid_state"

	// CodeTokenFailure is the generic code-exchange failure code.
	CodeTokenFailure = "token"

	// CodeTOSRequired is raised when the exchange is rejected because the
	// user has not accepted the provider's terms of service.  Callers
	// should redirect to the TOS URL instead of the login page.
	CodeTOSRequired = "tos_required"
)

// tosAcceptanceMarker is the substring the provider embeds in the error
// description of an exchange rejected for unsigned terms of service.  The
// upstream contract gives us no structured code for this condition, so
// detection is a substring match on the message.
const tosAcceptanceMarker = "terms of service"

// OAuthError represents an error returned by, or raised on behalf of, the
// identity provider.  Code is machine readable; Description is the human
// readable message.
type OAuthError struct {
	Code        string
	Description string
}

// Error returns the human readable message, falling back to the code.
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Description
}

// IsTOSRequired reports whether err is an OAuthError raised because the
// user has not accepted the provider's terms of service.
func IsTOSRequired(err error) bool {
	var oe *OAuthError
	return errors.As(err, &oe) && oe.Code == CodeTOSRequired
}
