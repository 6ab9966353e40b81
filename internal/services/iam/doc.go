// Package iam authenticates HTTP requests.
//
// Two guards are provided:
//
//   - APITokenAuthenticator: opaque bearer tokens of the form
//     "<type>_<environment>_<encryptedPayload>". Long-lived and safe for concurrent use.
//     Tokens are reusable until revoked.
//   - SessionAuthenticator: browser sessions with optional remember-me cookies. One
//     instance per request, built by SessionAuthenticatorFactory. Remember tokens are
//     single use and rotate every time they restore a session.
//
// Both guards attach the verified user to the auth.RequestState carried by the request
// context. Nothing is cached across requests.
//
// Request Flow:
//
//	Request → middleware installs RequestState → guard.Check / Authenticate
//	       ↓
//	   Handler reads auth.UserFromContext
//
// Validation failures collapse into auth.ErrInvalidAPIToken or auth.ErrAuthenticationFailed.
// auth.ErrConfiguration is never downgraded.
//
// Providers and guards are assembled through a Registry populated with Extend.
package iam
