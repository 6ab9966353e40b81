package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	ctx := context.Background()
	codec := NewCodec(testEncrypter(t))

	plain, err := GenerateToken()
	require.NoError(t, err)

	wire, err := codec.Encode(ctx, "42", plain, "api", "live")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wire, "api_live_"))

	decoded, err := codec.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, "api", decoded.Type)
	assert.Equal(t, "live", decoded.Environment)

	payload, err := codec.DecryptPayload(ctx, decoded.EncryptedPayload)
	require.NoError(t, err)
	assert.Equal(t, "42", payload.UserID)
	assert.Equal(t, plain, payload.PlainToken)
}

func TestCodec_EncodeValidation(t *testing.T) {
	ctx := context.Background()
	codec := NewCodec(testEncrypter(t))

	tests := []struct {
		name        string
		userID      string
		plain       string
		tokenType   string
		environment string
	}{
		{name: "empty type", userID: "1", plain: "p", tokenType: "", environment: "live"},
		{name: "underscore type", userID: "1", plain: "p", tokenType: "a_b", environment: "live"},
		{name: "empty environment", userID: "1", plain: "p", tokenType: "api", environment: ""},
		{name: "underscore environment", userID: "1", plain: "p", tokenType: "api", environment: "li_ve"},
		{name: "missing user", userID: "", plain: "p", tokenType: "api", environment: "live"},
		{name: "missing token", userID: "1", plain: "", tokenType: "api", environment: "live"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Encode(ctx, tt.userID, tt.plain, tt.tokenType, tt.environment)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestCodec_Decode(t *testing.T) {
	codec := NewCodec(nil)

	tests := []struct {
		name    string
		wire    string
		want    DecodedToken
		wantErr bool
	}{
		{name: "valid", wire: "api_live_abc", want: DecodedToken{Type: "api", Environment: "live", EncryptedPayload: "abc"}},
		{name: "payload keeps extra separators", wire: "api_live_a_b", want: DecodedToken{Type: "api", Environment: "live", EncryptedPayload: "a_b"}},
		{name: "two segments", wire: "api_live", wantErr: true},
		{name: "no separator", wire: "garbage", wantErr: true},
		{name: "empty", wire: "", wantErr: true},
		{name: "empty payload", wire: "api_live_", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Decode(tt.wire)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodec_DecryptPayload(t *testing.T) {
	ctx := context.Background()
	enc := testEncrypter(t)
	codec := NewCodec(enc)

	t.Run("missing delimiter", func(t *testing.T) {
		ct, err := enc.Encrypt(ctx, "42-secret")
		require.NoError(t, err)
		_, err = codec.DecryptPayload(ctx, ct)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("empty user", func(t *testing.T) {
		ct, err := enc.Encrypt(ctx, PayloadDelimiter+"secret")
		require.NoError(t, err)
		_, err = codec.DecryptPayload(ctx, ct)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("tampered", func(t *testing.T) {
		ct, err := enc.Encrypt(ctx, "42"+PayloadDelimiter+"secret")
		require.NoError(t, err)
		tampered := []byte(ct)
		if tampered[5] == 'a' {
			tampered[5] = 'b'
		} else {
			tampered[5] = 'a'
		}
		_, err = codec.DecryptPayload(ctx, string(tampered))
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("keeps the cause", func(t *testing.T) {
		cause := errors.New("kms unavailable")
		_, err := NewCodec(failingEncrypter{err: cause}).DecryptPayload(ctx, "payload")
		assert.ErrorIs(t, err, ErrDecryption)
		assert.ErrorIs(t, err, cause)
	})
}

type failingEncrypter struct {
	err error
}

func (f failingEncrypter) Encrypt(context.Context, string) (string, error) { return "", f.err }
func (f failingEncrypter) Decrypt(context.Context, string) (string, error) { return "", f.err }
