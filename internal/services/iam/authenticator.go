package iam

import (
	"context"
	"net/http"
	"net/url"
)

// Guard attaches a verified user to the request state when the request carries usable
// credentials for it.
//
// Return values:
//   - (true, nil): a user is attached
//   - (false, nil): no usable credentials (recoverable rejection)
//   - (false, error): configuration or infrastructure failure
type Guard interface {
	LoginIfCan(ctx context.Context, req AuthRequest) (bool, error)
}

// AuthRequest wraps HTTP request data for authenticator implementations.
type AuthRequest struct {
	// Headers contains HTTP headers (including Authorization, Cookie)
	Headers http.Header

	// Cookies contains parsed cookies
	Cookies []*http.Cookie

	// Input holds query and form values. Consulted for the "token" fallback.
	Input url.Values
}

// NewAuthRequest builds an AuthRequest from an HTTP request. Form values are included only
// if the handler already parsed them; the body is never consumed here.
func NewAuthRequest(r *http.Request) AuthRequest {
	input := url.Values{}
	for k, v := range r.URL.Query() {
		input[k] = append(input[k], v...)
	}
	for k, v := range r.PostForm {
		input[k] = append(input[k], v...)
	}
	return AuthRequest{
		Headers: r.Header,
		Cookies: r.Cookies(),
		Input:   input,
	}
}
