// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package ibdwt

import "math"

// Root1 returns the N-th primitive root of unity raised to the k-th power,
// e^(-2*pi*i*k/N), matching the clockwise convention the transform kernels
// expect (forward transform multiplies by conjugated twiddles).
func Root1(n, k uint64) complex128 {
	angle := -2 * math.Pi * float64(k) / float64(n)
	return complex(math.Cos(angle), math.Sin(angle))
}

// trigSeq returns Root1(b, i) for i in [0, n).
func trigSeq(n int, b uint64) []complex128 {
	out := make([]complex128, n)
	for i := 0; i < n; i++ {
		out[i] = Root1(b, uint64(i))
	}
	return out
}

// GenSquareTrig builds the twiddle table consumed by the squaring kernel's
// folded-half-circle trick: a size-H/2 half circle followed by a
// granularity-(2*W*H) region of size W.
func GenSquareTrig(w, h int) []complex128 {
	tab := make([]complex128, 0, h/2+w)
	tab = append(tab, trigSeq(h/2, uint64(h)*2)...)
	tab = append(tab, trigSeq(w, uint64(w)*uint64(h)*2)...)
	return tab
}

// GenTransTrig builds the twiddle table used by the W<->H transpose: a
// size-2048 full circle followed by a granularity-(W*H) region.
func GenTransTrig(w, h int) []complex128 {
	tab := make([]complex128, 0, 2048+w*h/2048)
	tab = append(tab, trigSeq(2048, 2048)...)
	tab = append(tab, trigSeq(w*h/2048, uint64(w*h))...)
	return tab
}

// smallTrigBlock fills out[pos:] with the (H-1)*W per-butterfly twiddles of
// one radix stage (line 0 is always the identity and is left as the zero
// value already present in out), returning the next free position.
func smallTrigBlock(w, h int, out []complex128, pos int) int {
	wh := uint64(w * h)
	for line := 1; line < h; line++ {
		for col := 0; col < w; col++ {
			out[pos] = Root1(wh, uint64(line*col))
			pos++
		}
	}
	return pos
}

// GenSmallTrig builds the per-stage twiddle table for a size-point FFT
// decomposed into radix-sized butterfly stages: the first `radix` entries
// are the (unused) identity stage and stay zero, then each successive
// radix stage's block is appended.
func GenSmallTrig(size, radix int) []complex128 {
	tab := make([]complex128, size)
	pos := radix
	for w := radix; w < size; w *= radix {
		h := radix
		if size/w < radix {
			h = size / w
		}
		pos = smallTrigBlock(w, h, tab, pos)
	}
	return tab
}
