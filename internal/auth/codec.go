package auth

import (
	"context"
	"fmt"
	"strings"
)

const (
	// PayloadDelimiter separates the user identifier from the plaintext token inside the
	// encrypted payload.
	PayloadDelimiter = ":~~:"

	// SegmentSeparator joins the wire token segments.
	SegmentSeparator = "_"
)

// DecodedToken is a wire token split into its three segments.
type DecodedToken struct {
	Type             string
	Environment      string
	EncryptedPayload string
}

// TokenPayload is the decrypted content of a wire token.
type TokenPayload struct {
	UserID     string
	PlainToken string
}

// Codec converts between (userID, plainToken) pairs and the wire format
// "<type>_<environment>_<encryptedPayload>".
type Codec struct {
	encrypter Encrypter
}

// NewCodec creates a codec backed by the given encrypter.
func NewCodec(encrypter Encrypter) *Codec {
	return &Codec{encrypter: encrypter}
}

// Encode builds the wire token for a user and plaintext token.
func (c *Codec) Encode(ctx context.Context, userID, plainToken, tokenType, environment string) (string, error) {
	if err := ValidateSegment("token type", tokenType); err != nil {
		return "", err
	}
	if err := ValidateSegment("environment", environment); err != nil {
		return "", err
	}
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrConfiguration)
	}
	if plainToken == "" {
		return "", fmt.Errorf("%w: plain token is required", ErrConfiguration)
	}

	payload, err := c.EncryptPayload(ctx, userID, plainToken)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{tokenType, environment, payload}, SegmentSeparator), nil
}

// EncryptPayload encrypts "<userID>:~~:<plainToken>".
func (c *Codec) EncryptPayload(ctx context.Context, userID, plainToken string) (string, error) {
	if c.encrypter == nil {
		return "", fmt.Errorf("%w: no encrypter configured", ErrConfiguration)
	}
	payload, err := c.encrypter.Encrypt(ctx, userID+PayloadDelimiter+plainToken)
	if err != nil {
		return "", fmt.Errorf("encrypt token payload: %w", err)
	}
	if strings.Contains(payload, SegmentSeparator) {
		return "", fmt.Errorf("%w: encrypter produced ciphertext containing %q", ErrConfiguration, SegmentSeparator)
	}
	return payload, nil
}

// Decode splits a wire token into its segments without decrypting it.
func (c *Codec) Decode(wireToken string) (DecodedToken, error) {
	parts := strings.SplitN(wireToken, SegmentSeparator, 3)
	if len(parts) < 3 {
		return DecodedToken{}, ErrMalformedToken
	}
	for _, p := range parts {
		if p == "" {
			return DecodedToken{}, ErrMalformedToken
		}
	}
	return DecodedToken{
		Type:             parts[0],
		Environment:      parts[1],
		EncryptedPayload: parts[2],
	}, nil
}

// DecryptPayload decrypts an encrypted payload and splits it into user id and plaintext token.
func (c *Codec) DecryptPayload(ctx context.Context, encryptedPayload string) (TokenPayload, error) {
	if c.encrypter == nil {
		return TokenPayload{}, fmt.Errorf("%w: no encrypter configured", ErrConfiguration)
	}
	plaintext, err := c.encrypter.Decrypt(ctx, encryptedPayload)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	userID, plainToken, found := strings.Cut(plaintext, PayloadDelimiter)
	if !found || userID == "" || plainToken == "" {
		return TokenPayload{}, ErrMalformedPayload
	}
	return TokenPayload{UserID: userID, PlainToken: plainToken}, nil
}

// ValidateSegment checks that a wire token segment (type or environment) is usable.
func ValidateSegment(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrConfiguration, name)
	}
	if strings.Contains(value, SegmentSeparator) {
		return fmt.Errorf("%w: %s %q must not contain %q", ErrConfiguration, name, value, SegmentSeparator)
	}
	return nil
}
