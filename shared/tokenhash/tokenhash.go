// Package tokenhash derives the lightweight anti-tamper tokens exchanged
// between the game client and the server.
//
// The derivation is keyless and fully reproducible from the client code, so
// it only deters casual tampering. It is not a cryptographic hash and must
// not guard anything of value.
package tokenhash

import (
	"crypto/subtle"
	"fmt"
)

const (
	// Size is the number of digest bytes produced by Derive.
	Size = 32
	// HexSize is the length of the hex encoded digest.
	HexSize = 2 * Size

	// Suffix is appended to every session identifier before derivation.
	// Client and server must agree on it.
	Suffix = "1234567890"
)

// Derive returns the 64 character lowercase hex digest of seed.
// It never fails and accepts any string, including the empty one.
func Derive(seed string) string {
	s := newState()
	absorb(&s, seed)
	return squeeze(&s)
}

// Token derives the token that accompanies a request for the given
// session identifier.
func Token(id string) string {
	return Derive(id + Suffix)
}

// HighscoreSeed is the identifier the game client builds when it submits a
// score: the score in octal, the player name and two fixed separators.
func HighscoreSeed(score uint32, name string) string {
	return fmt.Sprintf("%o fffffffff %s esiovtb3w5iothbiouthes0u", score, name)
}

// Equal reports whether two digests are identical without leaking the
// position of the first difference.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Valid reports whether digest has the shape of a Derive result.
func Valid(digest string) bool {
	if len(digest) != HexSize {
		return false
	}
	for i := 0; i < len(digest); i++ {
		c := digest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
