package iam

import (
	"context"
	"fmt"

	"github.com/terraconstructs/gridauth/internal/auth"
)

// HeaderSetter sets a request header on a test client.
type HeaderSetter func(key, value string)

// ClientLogin authenticates a test client with an existing wire token.
// Not used on the request path.
func ClientLogin(setHeader HeaderSetter, token string) {
	setHeader("authorization", "Bearer "+token)
}

// ClientLoginUser issues a token for user and authenticates a test client with it.
func (a *APITokenAuthenticator) ClientLoginUser(ctx context.Context, setHeader HeaderSetter, user auth.Authenticatable, opts ...GenerateOption) (*BearerToken, error) {
	token, err := a.Generate(ctx, user, opts...)
	if err != nil {
		return nil, fmt.Errorf("issue client token: %w", err)
	}
	ClientLogin(setHeader, token.Token)
	return token, nil
}
