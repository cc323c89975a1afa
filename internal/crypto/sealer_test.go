package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T) *AESGCMSealer {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	sealer, err := NewAESGCMSealer(key)
	require.NoError(t, err)
	return sealer
}

func TestSealOpenRoundTrip(t *testing.T) {
	sealer := newSealer(t)

	for _, plaintext := range []string{"JBSWY3DPEHPK3PXP", "", "unicode ünïcödé"} {
		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
		assert.NotContains(t, sealed[len(sealedPrefix):], plaintext)

		opened, err := sealer.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSealUsesFreshNonces(t *testing.T) {
	sealer := newSealer(t)

	a, err := sealer.Seal("same input")
	require.NoError(t, err)
	b, err := sealer.Seal("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsTampering(t *testing.T) {
	sealer := newSealer(t)

	sealed, err := sealer.Seal("secret")
	require.NoError(t, err)

	// Flip one character of the base64 body.
	body := []byte(sealed)
	last := len(body) - 1
	if body[last] == 'A' {
		body[last] = 'B'
	} else {
		body[last] = 'A'
	}
	_, err = sealer.Open(string(body))
	require.Error(t, err)
}

func TestOpenRejectsUnsealedInput(t *testing.T) {
	sealer := newSealer(t)

	_, err := sealer.Open("JBSWY3DPEHPK3PXP")
	require.ErrorIs(t, err, ErrNotSealed)

	_, err = sealer.Open(sealedPrefix + "!!!not-base64!!!")
	require.Error(t, err)

	_, err = sealer.Open(sealedPrefix + "AAAA")
	require.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := newSealer(t).Seal("secret")
	require.NoError(t, err)

	_, err = newSealer(t).Open(sealed)
	require.Error(t, err)
}

func TestNewAESGCMSealerKeyValidation(t *testing.T) {
	_, err := NewAESGCMSealer("deadbeef")
	require.Error(t, err)

	_, err = NewAESGCMSealer(strings.Repeat("g", 64))
	require.Error(t, err)
}

func TestNoopSealerPassesThrough(t *testing.T) {
	var sealer NoopSealer

	sealed, err := sealer.Seal("secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", sealed)

	opened, err := sealer.Open("secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", opened)
}

func TestGenerateKeyShape(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
