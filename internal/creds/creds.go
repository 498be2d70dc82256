// Package creds derives and verifies stored credential strings. Each scheme
// tags its output so records written under one configuration stay verifiable
// after the active scheme changes.
//
// Stored formats:
//
//	plaintext:<key>
//	sha1:<salt>$<hex sha1(salt+key)>
//	sha512:<salt>$<hex sha512(salt+key)>
//	argon2:$argon2id$v=19$m=<m>,t=<t>,p=<p>$<b64 salt>$<b64 hash>
package creds

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	SchemePlaintext = "plaintext"
	SchemeSHA1      = "sha1"
	SchemeSHA512    = "sha512"
	SchemeArgon2    = "argon2"
)

var ErrUnknownScheme = errors.New("creds: unknown scheme")

// Encoder hashes keys for storage and verifies presented keys against a
// stored credential of its own scheme.
type Encoder interface {
	Scheme() string
	Encode(key string) (string, error)
	Match(encoded, key string) bool
}

// ForScheme returns the encoder for a configured scheme name.
func ForScheme(scheme string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case SchemePlaintext:
		return plaintextEncoder{}, nil
	case SchemeSHA1:
		return saltedEncoder{scheme: SchemeSHA1}, nil
	case SchemeSHA512, "":
		return saltedEncoder{scheme: SchemeSHA512}, nil
	case SchemeArgon2:
		return argon2Encoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
}

// Validate verifies a presented key against a stored credential, dispatching
// on the scheme tag of the stored string. The active encoder does not matter
// here; old records keep working after a scheme switch.
func Validate(encoded, key string) (bool, error) {
	scheme, _, ok := strings.Cut(encoded, ":")
	if !ok {
		return false, fmt.Errorf("%w: untagged credential", ErrUnknownScheme)
	}
	enc, err := ForScheme(scheme)
	if err != nil {
		return false, err
	}
	return enc.Match(encoded, key), nil
}

// ValidScheme reports whether a pre-hashed credential supplied by an admin
// carries a recognized scheme tag and plausible shape.
func ValidScheme(encoded string) bool {
	scheme, rest, ok := strings.Cut(encoded, ":")
	if !ok || rest == "" {
		return false
	}
	switch strings.ToLower(scheme) {
	case SchemePlaintext:
		return true
	case SchemeSHA1, SchemeSHA512:
		return strings.Contains(rest, "$")
	case SchemeArgon2:
		return strings.HasPrefix(rest, "$argon2id$")
	default:
		return false
	}
}

type plaintextEncoder struct{}

func (plaintextEncoder) Scheme() string { return SchemePlaintext }

func (plaintextEncoder) Encode(key string) (string, error) {
	return SchemePlaintext + ":" + key, nil
}

func (plaintextEncoder) Match(encoded, key string) bool {
	rest, ok := strings.CutPrefix(encoded, SchemePlaintext+":")
	if !ok {
		return false
	}
	return constantTimeEqual(rest, key)
}

type saltedEncoder struct {
	scheme string
}

func (e saltedEncoder) Scheme() string { return e.scheme }

func (e saltedEncoder) Encode(key string) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s$%s", e.scheme, salt, e.digest(salt, key)), nil
}

func (e saltedEncoder) Match(encoded, key string) bool {
	rest, ok := strings.CutPrefix(encoded, e.scheme+":")
	if !ok {
		return false
	}
	salt, digest, ok := strings.Cut(rest, "$")
	if !ok {
		return false
	}
	return constantTimeEqual(digest, e.digest(salt, key))
}

func (e saltedEncoder) digest(salt, key string) string {
	if e.scheme == SchemeSHA1 {
		sum := sha1.Sum([]byte(salt + key))
		return hex.EncodeToString(sum[:])
	}
	sum := sha512.Sum512([]byte(salt + key))
	return hex.EncodeToString(sum[:])
}

type argon2Encoder struct{}

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

func (argon2Encoder) Scheme() string { return SchemeArgon2 }

func (argon2Encoder) Encode(key string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(key), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf(
		"%s:$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		SchemeArgon2,
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func (argon2Encoder) Match(encoded, key string) bool {
	rest, ok := strings.CutPrefix(encoded, SchemeArgon2+":")
	if !ok {
		return false
	}
	parts := strings.Split(rest, "$")
	// ["", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash]
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(key), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
