package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("secret"), []byte("salt"))

	sealed, err := Seal([]byte("hunter2"), key)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	plain, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), plain)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := DeriveKey([]byte("secret"), []byte("salt"))

	a, err := Seal([]byte("same plaintext"), key)
	require.NoError(t, err)
	b, err := Seal([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	key := DeriveKey([]byte("secret"), []byte("salt"))
	other := DeriveKey([]byte("different"), []byte("salt"))

	sealed, err := Seal([]byte("hunter2"), key)
	require.NoError(t, err)

	_, err = Open(sealed, other)
	require.Error(t, err)
}

func TestOpen_TruncatedCiphertext(t *testing.T) {
	key := DeriveKey([]byte("secret"), []byte("salt"))

	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	_, err := Open(short, key)
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestOpen_InvalidBase64(t *testing.T) {
	key := DeriveKey([]byte("secret"), []byte("salt"))

	_, err := Open("not-base64!!!", key)
	require.Error(t, err)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey([]byte("secret"), []byte("salt"))
	b := DeriveKey([]byte("secret"), []byte("salt"))
	c := DeriveKey([]byte("secret"), []byte("other salt"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
