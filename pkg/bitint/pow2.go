// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-2 helpers used to size spectrogram
frames. gonum's real FFT accepts any length, but the capture stage keeps
frame sizes on powers of 2 so that bin spacing and window coefficients stay
predictable across sample rates.

Usage:

	// Round a requested analysis window up to a usable frame size
	frameSize := bitint.NextPowerOfTwo(1500) // Returns 2048

	// Reject frame sizes read from configuration
	if !bitint.IsPowerOfTwo(cfg.Audio.FrameSize) { ... }

Subtracting one before taking the bit length keeps exact powers of 2
unchanged: for 8, bits.Len(7) is 3 and 1<<3 is 8. Without the subtraction
bits.Len(8) is 4 and the result would double to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 that is >= size.
// Zero and negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of 2 have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of a power of 2, or -1 when n is not
// a power of 2.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
