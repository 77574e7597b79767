package tokenhash

// state is the sponge shared by absorption and extraction. A fresh one is
// created for every derivation.
type state [8]uint32

func newState() state {
	return state{
		0x5fb039fb, 0x65b567d2,
		0x996f9cf8, 0x4d82daac,
		0x68a83c70, 0xd111cdbc,
		0xd288f9e3, 0xd2f460e7,
	}
}
