package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseACL(t *testing.T) {
	referrers, groups := ParseACL(".r:*,.r:-bad.example.com,act:usr,act,.rlistings,*")
	assert.Equal(t, []string{"*", "-bad.example.com"}, referrers)
	assert.Equal(t, []string{"act:usr", "act", ".rlistings", "*"}, groups)

	referrers, groups = ParseACL("")
	assert.Nil(t, referrers)
	assert.Nil(t, groups)
}

func TestCleanACL(t *testing.T) {
	cleaned, err := CleanACL("x-container-read", " act:usr , .r : *.Example.COM , .rlistings")
	require.NoError(t, err)
	assert.Equal(t, "act:usr,.r:.example.com,.rlistings", cleaned)

	cleaned, err = CleanACL("x-container-read", ".referrer:-cdn.example.com")
	require.NoError(t, err)
	assert.Equal(t, ".r:-cdn.example.com", cleaned)

	_, err = CleanACL("x-container-write", ".r:*")
	assert.Error(t, err)

	_, err = CleanACL("x-container-read", ".unknown:thing")
	assert.Error(t, err)

	_, err = CleanACL("x-container-read", ".r:")
	assert.Error(t, err)
}

func TestReferrerAllowed(t *testing.T) {
	cases := []struct {
		name     string
		referrer string
		acl      []string
		want     bool
	}{
		{"empty acl", "http://any.example.com/page", nil, false},
		{"star allows anyone", "http://any.example.com/page", []string{"*"}, true},
		{"star allows missing referrer", "", []string{"*"}, true},
		{"exact host", "https://www.example.com:8080/x", []string{"www.example.com"}, true},
		{"other host denied", "https://other.example.com/x", []string{"www.example.com"}, false},
		{"domain suffix", "https://cdn.static.example.com/x", []string{".example.com"}, true},
		{"later negation wins", "https://bad.example.com/x", []string{".example.com", "-bad.example.com"}, false},
		{"negation then grant", "https://bad.example.com/x", []string{"-bad.example.com", ".example.com"}, true},
		{"garbage referrer", "%%%", []string{"www.example.com"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ReferrerAllowed(tc.referrer, tc.acl))
		})
	}
}
