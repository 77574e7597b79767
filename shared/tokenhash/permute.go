package tokenhash

// permute applies one mixing round to the whole state in place.
func (s *state) permute() {
	var t [8]uint32

	for i := range s {
		t[i] = s[i] &^ s[(i+1)%8]
	}
	for i := range s {
		s[i] ^= t[i] >> 2
	}

	// Fixed 8-cycle over the lanes. The right hand side is evaluated
	// before any lane is written.
	s[0], s[1], s[2], s[3], s[4], s[5], s[6], s[7] =
		s[6], s[2], s[3], s[0], s[1], s[7], s[5], s[4]

	for i := range s {
		v := s[i] ^ (^s[(i+1)%8]&s[(i+6)%8])>>3
		t[i] = v ^ v<<5
	}
	for i := range s {
		s[i] = t[i] ^ (t[(17*i+20)%8]<<16 | t[(7-i)%8]>>16)
	}

	s[0] ^= s[1] ^ s[2] ^ s[7]
	s[4] ^= s[5] ^ s[6] ^ s[3]
}
