package auth

import (
	"crypto/subtle"
	"errors"

	"agentceli/warden/pkg/config"
)

// Errors returned by Validate.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Principal is the identity behind an accepted token.
type Principal struct {
	Name     string
	ReadOnly bool
}

type token struct {
	value     []byte
	principal Principal
}

// Validator checks bearer tokens against a fixed set. Tokens are compared in
// constant time.
type Validator struct {
	tokens []token
}

// DefaultPrincipal names the unnamed server.auth.token.
const DefaultPrincipal = "operator"

// NewValidator builds a validator from the auth configuration.
func NewValidator(cfg config.AuthConfig) *Validator {
	v := &Validator{}
	if cfg.Token != "" {
		v.tokens = append(v.tokens, token{
			value:     []byte(cfg.Token),
			principal: Principal{Name: DefaultPrincipal},
		})
	}
	for _, t := range cfg.Tokens {
		v.tokens = append(v.tokens, token{
			value:     []byte(t.Token),
			principal: Principal{Name: t.Name, ReadOnly: t.ReadOnly},
		})
	}
	return v
}

// Enabled reports whether any token is configured.
func (v *Validator) Enabled() bool {
	return v != nil && len(v.tokens) > 0
}

// Validate returns the principal for presented.
func (v *Validator) Validate(presented string) (Principal, error) {
	if presented == "" {
		return Principal{}, ErrMissingToken
	}
	p := []byte(presented)
	var (
		found Principal
		ok    bool
	)
	// Every token is compared so timing does not reveal which one matched.
	for _, t := range v.tokens {
		if subtle.ConstantTimeCompare(t.value, p) == 1 {
			found, ok = t.principal, true
		}
	}
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return found, nil
}
