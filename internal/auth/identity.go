package auth

// Authenticatable is the minimal view of a user the authenticators need.
type Authenticatable interface {
	// GetID returns the stable identifier. Empty means the user cannot hold tokens.
	GetID() string
	// VerifyPassword checks a plaintext password against the stored hash.
	VerifyPassword(plain string) bool
	// GetRememberMeToken returns the plaintext remember token set during this request, if any.
	GetRememberMeToken() string
	// SetRememberMeToken stages a new remember token to be persisted by the provider.
	SetRememberMeToken(token string)
}
