package auth

import "errors"

// Authentication error taxonomy.
//
// Per-request validation failures collapse into ErrAuthenticationFailed (credential and
// session flows) or ErrInvalidAPIToken (bearer token flows) so callers cannot learn which
// check rejected a request. ErrConfiguration marks deployment or programmer mistakes and
// must never be downgraded to a soft failure.
var (
	ErrConfiguration        = errors.New("authentication misconfigured")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidAPIToken      = errors.New("invalid api token")
	ErrMissingIdentity      = errors.New("user has no identifier")
	ErrUserNotFound         = errors.New("user not found")

	ErrMalformedToken   = errors.New("malformed token")
	ErrMalformedPayload = errors.New("malformed token payload")
	ErrDecryption       = errors.New("token decryption failed")
)

// IsRecoverable reports whether err is an ordinary authentication rejection that a
// boolean check may translate into "not authenticated".
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrInvalidAPIToken)
}
