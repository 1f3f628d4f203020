package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New("short")
	assert.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	sealed, err := v.Encrypt("ya29.access-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ya29")

	again, err := v.Encrypt("ya29.access-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := v.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", plain)
}

func TestDecryptTampered(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	sealed, err := v.Encrypt("secret")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = v.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)

	_, err = v.Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = v.Decrypt("%%%")
	assert.Error(t, err)
}

func TestDecryptWithOtherKey(t *testing.T) {
	a, _ := New(testKey)
	b, _ := New("fedcba9876543210fedcba9876543210")

	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}
