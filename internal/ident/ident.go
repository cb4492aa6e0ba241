// Package ident defines the opaque identity hashes and caller principals
// that address every credit account and registry entry.
package ident

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// Secret proofs are caller-held strings; the system only ever sees
	// their SHA3-256 digest.
	MinSecretLen = 8
	MaxSecretLen = 64
)

// Hash is the one-way hash of a caller-held secret. It is the sole
// addressing key for credit and messaging; the zero value is a sentinel
// and never a valid identity.
type Hash [32]byte

// Principal identifies a caller. The zero value means "nobody".
type Principal [32]byte

var (
	ErrSecretFormat = fmt.Errorf("secret proof length out of bounds")
)

// Derive hashes a secret proof into its identity hash.
func Derive(secretProof string) (Hash, error) {
	if len(secretProof) < MinSecretLen || len(secretProof) > MaxSecretLen {
		return Hash{}, ErrSecretFormat
	}
	return Hash(sha3.Sum256([]byte(secretProof))), nil
}

// Verify reports whether secretProof re-hashes to id. Constant-time on
// the digest comparison.
func Verify(secretProof string, id Hash) bool {
	got, err := Derive(secretProof)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got[:], id[:]) == 1
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("bad identity hash: %v", err)
	}
	if len(b) != len(h) {
		return Hash{}, fmt.Errorf("bad identity hash length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (p Principal) IsZero() bool {
	return p == Principal{}
}

func (p Principal) Hex() string {
	return hex.EncodeToString(p[:])
}

func ParsePrincipal(s string) (Principal, error) {
	var p Principal
	b, err := hex.DecodeString(s)
	if err != nil {
		return Principal{}, fmt.Errorf("bad principal: %v", err)
	}
	if len(b) != len(p) {
		return Principal{}, fmt.Errorf("bad principal length: %d", len(b))
	}
	copy(p[:], b)
	return p, nil
}

// PrincipalFromSeed derives a principal from an arbitrary seed string.
// Used by the CLI so callers can hold a memorable secret instead of raw
// hex.
func PrincipalFromSeed(seed string) Principal {
	return Principal(sha3.Sum256([]byte("credrelay:principal:" + seed)))
}
