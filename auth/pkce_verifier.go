package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

// S256 is the SHA-256 based transformation of the code verifier.  It is
// the only method this package supports.
const S256 ChallengeMethod = "S256"

const (
	// MinVerifierLength and MaxVerifierLength bound the code verifier
	// length per RFC 7636 section 4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// DefaultVerifierLength is the verifier length NewCodeVerifier uses
	// when no WithLength option is given.
	DefaultVerifierLength = 50
)

// CodeVerifier represents an oauth PKCE code verifier and its derived
// challenge.  The verifier is a secret held by the initiating client; only
// the challenge travels in the authorize URL.
type CodeVerifier struct {
	verifier  string
	method    ChallengeMethod
	challenge string
}

// NewCodeVerifier creates a CodeVerifier with a fresh random verifier and
// its S256 challenge.  Supported options: WithLength (43-128, default 50)
func NewCodeVerifier(opt ...Option) (*CodeVerifier, error) {
	const op = "auth.NewCodeVerifier"
	opts := getVerifierOpts(opt...)
	if opts.withLength < MinVerifierLength || opts.withLength > MaxVerifierLength {
		return nil, fmt.Errorf("%s: verifier length must be between %d and %d: %w", op, MinVerifierLength, MaxVerifierLength, ErrInvalidParameter)
	}
	data, err := NewID(WithLength(opts.withLength))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create verifier data: %w", op, err)
	}
	v := &CodeVerifier{
		verifier: data,
		method:   S256,
	}
	challenge, err := CreateCodeChallenge(S256, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = challenge
	return v, nil
}

func (v *CodeVerifier) Verifier() string        { return v.verifier }
func (v *CodeVerifier) Method() ChallengeMethod { return v.method }
func (v *CodeVerifier) Challenge() string       { return v.challenge }

// CreateCodeChallenge creates a code challenge for the verifier using the
// given method.  The challenge is a deterministic function of the
// verifier: the same verifier always yields the same challenge.
func CreateCodeChallenge(m ChallengeMethod, v *CodeVerifier) (string, error) {
	const op = "auth.CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	if m != S256 {
		return "", fmt.Errorf("%s: %q is not supported: %w", op, m, ErrUnsupportedChallengeMethod)
	}
	sum := sha256.Sum256([]byte(v.verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// verifierOptions is the set of available options for NewCodeVerifier
type verifierOptions struct {
	withLength int
}

// verifierDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func verifierDefaults() verifierOptions {
	return verifierOptions{
		withLength: DefaultVerifierLength,
	}
}

// getVerifierOpts gets the verifier defaults and applies the opt overrides
// passed in
func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
