// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// CPU reference backend: a pure Go implementation of Kernels using a flat
// complex128 DFT of the whole N-point signal rather than the real
// accelerator's width/height-split, real-packed FFT. It is always built
// (no cgo requirement) so the engine and the Gerbicz loop above it are
// fully testable without a GPU.
//
// Simplification from the accelerator convention: the real kernel source
// reuses the same width/height butterfly passes for both the forward and
// inverse transform (a consequence of packing two reals per complex lane),
// so no kernel in the §4.3 vocabulary is explicitly "the inverse FFT". This
// backend does not replicate that packing trick; instead it performs the
// inverse transform explicitly inside TransposeH, the call that the
// engine's own sequencing (fftP, transposeW, tail, transposeH, fftW,
// carryA) always places right after the pointwise square/multiply step.
// FFTW, FFTH, and TransposeW are therefore no-ops in this backend: the
// work they represent on a real width/height-split transform is already
// done, in one shot, by FFTP and TransposeH.
package gpu

import (
	"math"
	"math/cmplx"

	"github.com/gpuowl/gpuowl/internal/ibdwt"
	"github.com/gpuowl/gpuowl/internal/shape"
)

type cpuIntBuf struct{ words []int64 }

func (*cpuIntBuf) intBuf() {}

type cpuRealBuf struct{ samples []complex128 }

func (*cpuRealBuf) realBuf() {}

// CPUKernels is the pure-Go Kernels implementation.
type CPUKernels struct {
	n int
	e uint64

	// aTab is the forward IBDWT weight of coefficient k in natural order,
	// 2^(ceil(E*k/N) - E*k/N), unsigned. It is not taken from
	// ibdwt.GenWeights, whose table is laid out in the accelerator's
	// line/column order with the extra-bit flag carried in the sign.
	// invMag is this backend's own inverse
	// weight, 1/aTab[k]: it is NOT ibdwt.GenWeights's Ai, because Ai's
	// 1/(4N*a) constant already folds in the 1/N the *original* kernel's
	// inverse transform needs. This backend's fft() applies that 1/N
	// itself on the inverse pass (the standard "one side of the DFT pair
	// carries the normalization" convention), so the unweighting step
	// here only needs to undo the forward weight, not renormalize again.
	aTab   []float64
	invMag []float64
}

// NewCPUKernels builds a CPU backend for the given transform shape and
// exponent.
func NewCPUKernels(sh shape.Shape, e uint64) *CPUKernels {
	n := sh.N()
	aTab := make([]float64, n)
	invMag := make([]float64, n)
	for k := range aTab {
		frac := (uint64(n) - ibdwt.Extra(uint64(n), e, uint64(k))) % uint64(n)
		aTab[k] = math.Exp2(float64(frac) / float64(n))
		invMag[k] = 1 / aTab[k]
	}
	return &CPUKernels{n: n, e: e, aTab: aTab, invMag: invMag}
}

func (k *CPUKernels) Upload(words []uint32, initialCarry bool) IntBuf {
	raw := ibdwt.ExpandBits(words, initialCarry, k.n, k.e)
	return &cpuIntBuf{words: raw}
}

func (k *CPUKernels) Download(buf IntBuf) []uint32 {
	b := buf.(*cpuIntBuf)
	return ibdwt.CompactBits(b.words, k.n, k.e)
}

func (k *CPUKernels) NewValueInt(v int64) IntBuf {
	words := make([]int64, k.n)
	words[0] = v
	return &cpuIntBuf{words: words}
}

func (k *CPUKernels) CopyInt(src IntBuf) IntBuf {
	s := src.(*cpuIntBuf)
	words := make([]int64, len(s.words))
	copy(words, s.words)
	return &cpuIntBuf{words: words}
}

func (k *CPUKernels) FFTP(in IntBuf) RealBuf {
	b := in.(*cpuIntBuf)
	samples := make([]complex128, k.n)
	for i, w := range b.words {
		samples[i] = complex(float64(w)*k.aTab[i], 0)
	}
	fft(samples, false)
	return &cpuRealBuf{samples: samples}
}

func (k *CPUKernels) FFTW(RealBuf) {}
func (k *CPUKernels) FFTH(RealBuf) {}

func (k *CPUKernels) TransposeW(src RealBuf) RealBuf { return src }

// TransposeH performs this backend's inverse transform; see the package
// doc comment for why it, rather than a dedicated ifft kernel, is where
// that happens.
func (k *CPUKernels) TransposeH(src RealBuf) RealBuf {
	b := src.(*cpuRealBuf)
	fft(b.samples, true)
	return b
}

func (k *CPUKernels) Square(buf RealBuf) {
	b := buf.(*cpuRealBuf)
	for i, v := range b.samples {
		b.samples[i] = v * v
	}
}

func (k *CPUKernels) Multiply(dst, src RealBuf) {
	d := dst.(*cpuRealBuf)
	s := src.(*cpuRealBuf)
	for i := range d.samples {
		d.samples[i] *= s.samples[i]
	}
}

func (k *CPUKernels) TailFused(buf RealBuf) { k.Square(buf) }

func (k *CPUKernels) CarryA(buf RealBuf, mul3 bool) (IntBuf, RealBuf) {
	b := buf.(*cpuRealBuf)
	words := make([]int64, k.n)
	var carry int64
	for i, v := range b.samples {
		x := real(v) * k.invMag[i]
		if mul3 {
			x *= 3
		}
		bits := ibdwt.BitLen(uint64(k.n), k.e, uint64(i))
		val := int64(math.Round(x)) + carry
		carry = 0
		half := int64(1) << (bits - 1)
		for val < -half {
			val += int64(1) << bits
			carry--
		}
		for val >= half {
			val -= int64(1) << bits
			carry++
		}
		words[i] = val
	}
	// The wraparound from the top coefficient folds back into coefficient
	// 0, same as ibdwt.CompactBits's balancing pass.
	for pass := 0; carry != 0 && pass < k.n+4; pass++ {
		for i := 0; i < k.n && carry != 0; i++ {
			bits := ibdwt.BitLen(uint64(k.n), k.e, uint64(i))
			val := words[i] + carry
			carry = 0
			half := int64(1) << (bits - 1)
			for val < -half {
				val += int64(1) << bits
				carry--
			}
			for val >= half {
				val -= int64(1) << bits
				carry++
			}
			words[i] = val
		}
	}
	// No partitioned workgroups to fan a carry between: CarryA already
	// resolved the full chain, so CarryB has nothing left to do.
	return &cpuIntBuf{words: words}, &cpuRealBuf{}
}

func (k *CPUKernels) CarryB(IntBuf, RealBuf) {}

func (k *CPUKernels) ReadResidue(data IntBuf) []int64 {
	b := data.(*cpuIntBuf)
	out := make([]int64, 128)
	for i := 0; i < 64; i++ {
		out[i] = b.words[((i-64)%k.n+k.n)%k.n]
		out[64+i] = b.words[i%k.n]
	}
	return out
}

func (k *CPUKernels) DoCheck(a, b IntBuf) (isEqual, isNotZero bool) {
	ab := a.(*cpuIntBuf)
	bb := b.(*cpuIntBuf)
	isEqual = true
	for i := range ab.words {
		if ab.words[i] != bb.words[i] {
			isEqual = false
		}
		if ab.words[i] != 0 || bb.words[i] != 0 {
			isNotZero = true
		}
	}
	return isEqual, isNotZero
}

func (k *CPUKernels) Compare(a, b IntBuf, offset int) (isEqual, isNotZero bool) {
	ab := a.(*cpuIntBuf)
	bb := b.(*cpuIntBuf)
	n := len(ab.words)
	isEqual = true
	for i := range ab.words {
		j := ((i+offset)%n + n) % n
		if ab.words[i] != bb.words[j] {
			isEqual = false
		}
		if ab.words[i] != 0 || bb.words[j] != 0 {
			isNotZero = true
		}
	}
	return isEqual, isNotZero
}

// fft is an iterative radix-2 Cooley-Tukey transform, in place. n must be a
// power of two, which every transform shape here guarantees (N = 2*W*H
// with W, H themselves powers of two).
func fft(a []complex128, invert bool) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		ang := 2 * math.Pi / float64(length)
		if invert {
			ang = -ang
		}
		wlen := cmplx.Rect(1, ang)
		for i := 0; i < n; i += length {
			w := complex(1.0, 0.0)
			for j := 0; j < length/2; j++ {
				u := a[i+j]
				v := a[i+j+length/2] * w
				a[i+j] = u + v
				a[i+j+length/2] = u - v
				w *= wlen
			}
		}
	}

	if invert {
		for i := range a {
			a[i] /= complex(float64(n), 0)
		}
	}
}
