package delegation

import "errors"

// Construction, signing and redemption errors. Callers match them with
// errors.Is; functions wrap them with additional context.
var (
	ErrInvalidAddress       = errors.New("invalid address")
	ErrEmptySaltEntropy     = errors.New("salt has no entropy")
	ErrInvalidAuthority     = errors.New("invalid delegation authority")
	ErrArityMismatch        = errors.New("arity mismatch")
	ErrSigningUnavailable   = errors.New("signing unavailable")
	ErrIdentityMismatch     = errors.New("redeemer is not the delegate")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrBrokenChain          = errors.New("broken delegation chain")
	ErrUnknownEnforcer      = errors.New("caveat enforcer not part of environment")
	ErrInvalidSignature     = errors.New("invalid signature")
)
