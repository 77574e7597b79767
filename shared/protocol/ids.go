package protocol

import (
	"crypto/rand"
	"io"
)

const (
	idLen      = 10
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// bytes at or above this would favour the start of the alphabet
	idByteLimit = 256 - 256%len(idAlphabet)
)

// NewID returns a random alphanumeric identifier used for games and player
// slots. Player ids double as session identifiers for connect tokens.
func NewID() string {
	id, err := newID(rand.Reader)
	if err != nil {
		panic("protocol: reading random bytes: " + err.Error())
	}
	return id
}

// newID draws uniformly from idAlphabet, rejecting bytes that would bias
// the modulo.
func newID(r io.Reader) (string, error) {
	out := make([]byte, 0, idLen)
	var buf [16]byte
	for len(out) < idLen {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= idByteLimit {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == idLen {
				break
			}
		}
	}
	return string(out), nil
}
