package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/aead/v2"
	"github.com/mr-tron/base58"
	"google.golang.org/protobuf/proto"
)

// Encrypter performs authenticated, reversible string encryption. Ciphertext must be
// printable and must not contain the '_' wire separator.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// AEADEncrypter encrypts token payloads with an AES-GCM KMS wrapper. Ciphertexts are
// marshaled BlobInfo messages encoded as base58.
type AEADEncrypter struct {
	wrapper wrapping.Wrapper
}

// NewAEADEncrypter wraps an existing KMS wrapper.
func NewAEADEncrypter(wrapper wrapping.Wrapper) (*AEADEncrypter, error) {
	if wrapper == nil {
		return nil, fmt.Errorf("%w: missing wrapper", ErrConfiguration)
	}
	return &AEADEncrypter{wrapper: wrapper}, nil
}

// NewAEADEncrypterFromKey builds an AES-GCM wrapper from a base64 encoded 16, 24 or 32 byte key.
func NewAEADEncrypterFromKey(ctx context.Context, encodedKey string) (*AEADEncrypter, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("%w: encryption key is required", ErrConfiguration)
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode encryption key: %v", ErrConfiguration, err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: encryption key must be 16, 24 or 32 bytes, got %d", ErrConfiguration, len(key))
	}

	w := aead.NewWrapper()
	if _, err := w.SetConfig(ctx, wrapping.WithKeyId(HashToken(encodedKey)[:16])); err != nil {
		return nil, fmt.Errorf("%w: configure wrapper: %v", ErrConfiguration, err)
	}
	if err := w.SetAesGcmKeyBytes(key); err != nil {
		return nil, fmt.Errorf("%w: set wrapper key: %v", ErrConfiguration, err)
	}
	return &AEADEncrypter{wrapper: w}, nil
}

// Encrypt implements Encrypter.
func (e *AEADEncrypter) Encrypt(ctx context.Context, plaintext string) (string, error) {
	blobInfo, err := e.wrapper.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	marshaled, err := proto.Marshal(blobInfo)
	if err != nil {
		return "", fmt.Errorf("marshal encrypted blob: %w", err)
	}
	return base58.FastBase58Encoding(marshaled), nil
}

// Decrypt implements Encrypter. Any decoding or authentication failure wraps ErrDecryption.
func (e *AEADEncrypter) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrDecryption)
	}
	decoded, err := base58.FastBase58Decoding(ciphertext)
	if err != nil {
		return "", errors.Join(ErrDecryption, fmt.Errorf("decode ciphertext: %w", err))
	}
	var blobInfo wrapping.BlobInfo
	if err := proto.Unmarshal(decoded, &blobInfo); err != nil {
		return "", errors.Join(ErrDecryption, fmt.Errorf("unmarshal blob info: %w", err))
	}
	plaintext, err := e.wrapper.Decrypt(ctx, &blobInfo)
	if err != nil {
		return "", errors.Join(ErrDecryption, err)
	}
	return string(plaintext), nil
}
