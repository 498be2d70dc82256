package creds

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAndValidateAllSchemes(t *testing.T) {
	for _, scheme := range []string{SchemePlaintext, SchemeSHA1, SchemeSHA512, SchemeArgon2} {
		t.Run(scheme, func(t *testing.T) {
			enc, err := ForScheme(scheme)
			require.NoError(t, err)
			assert.Equal(t, scheme, enc.Scheme())

			stored, err := enc.Encode("s3cret")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(stored, scheme+":"))

			ok, err := Validate(stored, "s3cret")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = Validate(stored, "wrong")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestValidateDispatchesOnStoredScheme(t *testing.T) {
	// records written under sha1 must keep verifying while sha512 is active
	sha1Enc, err := ForScheme(SchemeSHA1)
	require.NoError(t, err)
	stored, err := sha1Enc.Encode("legacy")
	require.NoError(t, err)

	active, err := ForScheme(SchemeSHA512)
	require.NoError(t, err)
	assert.False(t, active.Match(stored, "legacy"))

	ok, err := Validate(stored, "legacy")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaltedEncodingsDiffer(t *testing.T) {
	enc, err := ForScheme(SchemeSHA512)
	require.NoError(t, err)
	first, err := enc.Encode("same")
	require.NoError(t, err)
	second, err := enc.Encode("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSwiftCompatibleFormat(t *testing.T) {
	// fixed vector: sha1 of salt+key, the historical on-disk layout
	stored := "sha1:0123456789abcdef$" + "04aef4ed91d18bcf9fba76025e864782a12551f2"
	ok, err := Validate(stored, "testing")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnknownScheme(t *testing.T) {
	_, err := ForScheme("md5")
	assert.ErrorIs(t, err, ErrUnknownScheme)

	_, err = Validate("md5:whatever", "key")
	assert.ErrorIs(t, err, ErrUnknownScheme)

	_, err = Validate("untagged", "key")
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestDefaultScheme(t *testing.T) {
	enc, err := ForScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeSHA512, enc.Scheme())
}

func TestValidScheme(t *testing.T) {
	assert.True(t, ValidScheme("plaintext:key"))
	assert.True(t, ValidScheme("sha1:salt$digest"))
	assert.True(t, ValidScheme("sha512:salt$digest"))
	assert.True(t, ValidScheme("argon2:$argon2id$v=19$m=65536,t=2,p=1$c2FsdA$aGFzaA"))
	assert.False(t, ValidScheme("sha1:missing-separator"))
	assert.False(t, ValidScheme("md5:salt$digest"))
	assert.False(t, ValidScheme("plaintext"))
}
