package tokenhash

import "unicode/utf8"

// chunkRunes is the number of characters folded into the state per round.
const chunkRunes = 8

// absorb mixes seed into s. Only lanes 0, 1 and 2 take input directly; the
// rest are reached through the rounds. Deployed verifiers depend on that
// layout, so it must not be widened.
func absorb(s *state, seed string) {
	for i, chunk := range chunks(seed) {
		s[i%3] ^= pack(chunk)
		s.permute()
	}
	s.permute()
}

// chunks splits seed into runs of at most chunkRunes characters.
func chunks(seed string) []string {
	var out []string
	start, n := 0, 0
	for pos := range seed {
		if n == chunkRunes {
			out = append(out, seed[start:pos])
			start, n = pos, 0
		}
		n++
	}
	if n > 0 {
		out = append(out, seed[start:])
	}
	return out
}

// pack folds the UTF-8 encoding of chunk into a big-endian word. Bytes
// beyond the last four are shifted out. Invalid UTF-8 is encoded as U+FFFD.
func pack(chunk string) uint32 {
	var (
		w   uint32
		buf [utf8.UTFMax]byte
	)
	for _, r := range chunk {
		n := utf8.EncodeRune(buf[:], r)
		for _, b := range buf[:n] {
			w = w<<8 | uint32(b)
		}
	}
	return w
}
