// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package shape selects the FFT shape (width, height, butterfly radixes)
// used to run an IBDWT of a given Mersenne exponent.
package shape

import "fmt"

// Shape describes the dimensions of an N = 2*W*H point IBDWT and the
// butterfly radixes the width/height transform stages are decomposed into.
type Shape struct {
	E  uint64 // exponent under test
	W  int    // width
	H  int    // height, always 2048
	NW int    // width butterfly radix
	NH int    // height butterfly radix
}

// N is the total transform size, 2*W*H.
func (s Shape) N() int { return 2 * s.W * s.H }

// ConfigName renders the transform size the way the original tool names its
// checkpoint/dump directories: "<N/1024>K" or "<N/1024/1024>M".
func (s Shape) ConfigName() string {
	n := s.N()
	if n%(1024*1024) != 0 {
		return fmt.Sprintf("%dK", n/1024)
	}
	return fmt.Sprintf("%dM", n/(1024*1024))
}

// For picks the transform shape for exponent e: a 2048x2048 transform below
// 153,000,000 and a 4096x2048 transform at or above it, a threshold chosen
// so that the per-word bit density stays below the point where rounding
// error in the floating-point FFT risks a silent wraparound.
func For(e uint64) Shape {
	w := 2048
	if e >= 153000000 {
		w = 4096
	}
	const h = 2048
	return Shape{
		E:  e,
		W:  w,
		H:  h,
		NW: 8,
		NH: h / 256,
	}
}
