package epaperify

import "crypto/subtle"

// xorChunk is the block size handed to the vectorised XOR. Whatever is
// left over is done one byte at a time.
const xorChunk = 32

// XOR returns a ^ b. Both slices must be the same length.
func XOR(a, b []byte) []byte {
	if len(a) != len(b) {
		panic("epaperify: XOR: length mismatch")
	}
	dst := make([]byte, len(a))
	xorInto(dst, a, b)
	return dst
}

func xorInto(dst, a, b []byte) {
	n := len(a) - len(a)%xorChunk
	if n > 0 {
		subtle.XORBytes(dst[:n], a[:n], b[:n])
	}
	for i := n; i < len(a); i++ {
		dst[i] = a[i] ^ b[i]
	}
}

func xorScalar(dst, a, b []byte) {
	for i := range a {
		dst[i] = a[i] ^ b[i]
	}
}
