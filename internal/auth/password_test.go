package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidsec/identity/internal/auth"
)

func TestArgon2HashVerifyRoundTrip(t *testing.T) {
	h := fastHasher()

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))

	assert.True(t, h.Verify("correct horse battery staple", encoded))
	assert.False(t, h.Verify("correct horse battery stapl", encoded))
	assert.False(t, h.Verify("", encoded))
}

func TestArgon2HashSaltsAreUnique(t *testing.T) {
	h := fastHasher()

	a, err := h.Hash("same input")
	require.NoError(t, err)
	b, err := h.Hash("same input")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	assert.True(t, h.Verify("same input", a))
	assert.True(t, h.Verify("same input", b))
}

func TestArgon2EmptyStringHashes(t *testing.T) {
	h := fastHasher()

	encoded, err := h.Hash("")
	require.NoError(t, err)
	assert.True(t, h.Verify("", encoded))
	assert.False(t, h.Verify("x", encoded))
}

func TestArgon2VerifySelfDescribing(t *testing.T) {
	// A hash produced under one parameter set verifies under a hasher
	// configured with another; the encoding carries its own parameters.
	a := auth.NewArgon2Hasher(auth.Argon2Params{MemoryKiB: 8, Iterations: 1, Parallelism: 1})
	b := auth.NewArgon2Hasher(auth.Argon2Params{MemoryKiB: 16, Iterations: 2, Parallelism: 1})

	encoded, err := a.Hash("pw")
	require.NoError(t, err)
	assert.True(t, b.Verify("pw", encoded))
}

func TestArgon2VerifyRejectsMalformedEncodings(t *testing.T) {
	h := fastHasher()

	valid, err := h.Hash("pw")
	require.NoError(t, err)
	parts := strings.Split(valid, "$")
	require.Len(t, parts, 6)

	cases := map[string]string{
		"empty":            "",
		"not a hash":       "plaintext",
		"bcrypt prefix":    "$2a$10$abcdefghijklmnopqrstuv",
		"wrong algorithm":  strings.Replace(valid, "argon2id", "argon2i", 1),
		"wrong version":    strings.Replace(valid, "v=19", "v=18", 1),
		"missing sections": "$argon2id$v=19$m=8,t=1,p=1",
		"garbage params":   "$argon2id$v=19$m=x,t=y,p=z$" + parts[4] + "$" + parts[5],
		"zero iterations":  "$argon2id$v=19$m=8,t=0,p=1$" + parts[4] + "$" + parts[5],
		"zero threads":     "$argon2id$v=19$m=8,t=1,p=0$" + parts[4] + "$" + parts[5],
		"memory too small": "$argon2id$v=19$m=4,t=1,p=1$" + parts[4] + "$" + parts[5],
		"memory bomb":      "$argon2id$v=19$m=999999999,t=1,p=1$" + parts[4] + "$" + parts[5],
		"bad salt base64":  "$argon2id$v=19$m=8,t=1,p=1$!!!!$" + parts[5],
		"salt too short":   "$argon2id$v=19$m=8,t=1,p=1$YWJj$" + parts[5],
		"bad key base64":   "$argon2id$v=19$m=8,t=1,p=1$" + parts[4] + "$!!!!",
		"truncated key":    "$argon2id$v=19$m=8,t=1,p=1$" + parts[4] + "$YWJj",
		"trailing section": valid + "$extra",
	}
	for name, encoded := range cases {
		assert.False(t, h.Verify("pw", encoded), "case %q must not verify", name)
	}
}

func TestGenerateSecureTokenAndHash(t *testing.T) {
	a, err := auth.GenerateSecureToken(48)
	require.NoError(t, err)
	b, err := auth.GenerateSecureToken(48)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	// URL-safe: usable in links without escaping.
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")

	// The digest is stable hex and never the cleartext.
	h := auth.HashToken(a)
	assert.Len(t, h, 64)
	assert.Equal(t, h, auth.HashToken(a))
	assert.NotEqual(t, h, auth.HashToken(b))
	assert.NotEqual(t, a, h)
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"all classes", "Sufficient1!", true},
		{"exactly minimum length", "Aa1!Aa1!", true},
		{"unicode letters count", "Pässwörd1!", true},
		{"too short", "Aa1!Aa1", false},
		{"too long", strings.Repeat("Aa1!", 33), false},
		{"no uppercase", "lowercase1!", false},
		{"no lowercase", "UPPERCASE1!", false},
		{"no digit", "NoDigitsHere!", false},
		{"no symbol", "NoSymbols11A", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := auth.ValidatePassword(tc.password)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, auth.ErrPasswordPolicy)
			}
		})
	}
}
