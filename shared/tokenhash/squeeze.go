package tokenhash

import (
	"encoding/binary"
	"encoding/hex"
)

// squeeze reads the digest out of s, running a round after every word.
// Words are drawn from lanes (i*13)%5, so lanes 5-7 are never emitted
// directly.
func squeeze(s *state) string {
	var out [Size]byte
	for i := 0; i < Size/4; i++ {
		binary.BigEndian.PutUint32(out[i*4:], s[(i*13)%5])
		s.permute()
	}
	return hex.EncodeToString(out[:])
}
