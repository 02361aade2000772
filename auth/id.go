package auth

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the length of the random strings NewID generates by
// default, used for the oauth state and nonce parameters.
const DefaultIDLength = 64

// idCharset is the base64url-safe alphabet random strings are drawn from,
// so every generated id is also a valid PKCE code-verifier substring.
const idCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// NewID generates a cryptographically random string from a base64url-safe
// alphabet.  The generated string is suitable for an oauth state, nonce or
// PKCE code verifier.  Supported options: WithLength
func NewID(opt ...Option) (string, error) {
	const op = "auth.NewID"
	opts := getIDOpts(opt...)
	if opts.withLength <= 0 {
		return "", fmt.Errorf("%s: length must be greater than zero: %w", op, ErrInvalidParameter)
	}
	data, err := uuid.GenerateRandomBytes(opts.withLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	id := make([]byte, len(data))
	for i, b := range data {
		id[i] = idCharset[int(b)%len(idCharset)]
	}
	return string(id), nil
}

// idOptions is the set of available options for NewID
type idOptions struct {
	withLength int
}

// idDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func idDefaults() idOptions {
	return idOptions{
		withLength: DefaultIDLength,
	}
}

// getIDOpts gets the id defaults and applies the opt overrides passed in
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLength provides an optional length for NewID and NewCodeVerifier
func WithLength(l int) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *idOptions:
			v.withLength = l
		case *verifierOptions:
			v.withLength = l
		}
	}
}
