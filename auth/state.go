package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default storage-area names.  Each area holds one JSON blob; see the
// storage package for the layout rules.
const (
	// DefaultFlowStateStorageName is the area holding the transient
	// pre-redirect oauth parameters.
	DefaultFlowStateStorageName = "redirect-oauth-params"

	// DefaultUserStateStorageName is the area holding the user state
	// decoded from the provider's returned state parameter.
	DefaultUserStateStorageName = "redirect-params"

	// DefaultTokenStorageName is the area holding cached access tokens.
	DefaultTokenStorageName = "token-storage"
)

// FlowState is the ephemeral cryptographic state persisted immediately
// before navigating to the provider's authorize endpoint and consumed
// exactly once when the provider redirects back.  Exactly one FlowState
// exists at a time per storage scope.
type FlowState struct {
	// State is the opaque random correlation token.  It must round-trip
	// unchanged through the provider.
	State string `json:"state"`

	// CodeVerifier is the PKCE verifier bound to the authorization code.
	CodeVerifier string `json:"codeVerifier"`

	// CodeChallenge is the S256 challenge derived from CodeVerifier.
	CodeChallenge string `json:"codeChallenge"`
}

// validate checks the persisted flow parameters for completeness.
func (f *FlowState) validate() error {
	const op = "auth.FlowState.validate"
	if f == nil {
		return fmt.Errorf("%s: %w", op, ErrNoFlowState)
	}
	if f.State == "" || f.CodeVerifier == "" || f.CodeChallenge == "" {
		return fmt.Errorf("%s: %w", op, ErrFlowStateInvalid)
	}
	return nil
}

// UserState is the application context round-tripped through the
// provider's state parameter: tenant, region, email and invite
// information.  It is decoded once per redirect return and persisted
// separately from the FlowState.
type UserState struct {
	Tenant       string `json:"tenant"`
	Region       string `json:"region,omitempty"`
	Email        string `json:"email,omitempty"`
	InviteID     string `json:"inviteID,omitempty"`
	InviteTenant string `json:"inviteTenant,omitempty"`
	AcceptTOS    string `json:"accept_tos,omitempty"`

	// ClientState carries the original correlation token the client sent
	// as state, re-encoded by the provider when encode_state is enabled.
	ClientState string `json:"client_state,omitempty"`
}

// regionPrefix is stripped from the region value on decode; the provider
// returns regions in host-prefix form.
const regionPrefix = "region-"

// DecodeUserState decodes the state query parameter returned by the
// provider.  The value must be a JSON object with at least a tenant.  Any
// "region-" prefix is stripped from the decoded region.
func DecodeUserState(raw string) (*UserState, error) {
	const op = "auth.DecodeUserState"
	var us UserState
	if err := json.Unmarshal([]byte(raw), &us); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserStateInvalid)
	}
	us.Region = strings.TrimPrefix(us.Region, regionPrefix)
	if us.Tenant == "" {
		return nil, fmt.Errorf("%s: missing tenant: %w", op, ErrUserStateInvalid)
	}
	return &us, nil
}
