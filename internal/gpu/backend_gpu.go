// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build cgo

// MLX-backed accelerator backend. The transform itself is the same
// gather-based Cooley-Tukey/Gentleman-Sande butterfly MLX port used for the
// lattice NTT in this codebase's other domain (see the sibling package's
// ntt.go lineage): MLX has no scatter primitive, so the "write the butterfly
// outputs back into the coefficient array" step is done by gathering both
// candidate values (sum and diff) into a full-length array with Take and
// then selecting per-position with Where, rather than writing in place.
//
// Unlike that NTT port, the coefficients here are floating-point (the IBDWT
// signal is a real/complex FFT, not a modular NTT), so the pointwise
// arithmetic is plain float multiply/add instead of Barrett-reduced modular
// multiply, and there is no final N^-1 correction step beyond the inverse
// transform's own 1/N scale.
//
// Carry propagation is inherently a sequential, data-dependent chain
// (each coefficient's carry-out depends on the previous coefficient's
// carry-in), which does not map onto MLX's array-at-a-time model. Like the
// CPU backend, this backend resolves it by downloading the inverse-weighted
// samples to the host, propagating carries there, and re-uploading — the
// same simplification gpuowl.cpp itself does not need only because its GPU
// kernels implement carry-save adders directly in OpenCL, a level of detail
// out of scope here.
package gpu

import (
	"math"
	"math/cmplx"

	"github.com/luxfi/mlx"

	"github.com/gpuowl/gpuowl/internal/ibdwt"
	"github.com/gpuowl/gpuowl/internal/shape"
)

type mlxIntBuf struct {
	// words holds the N raw (unpacked, balanced-integer, signed) transform
	// coefficients as an Int64 MLX array — the same representation
	// CPUKernels keeps host-side in cpuIntBuf.words, just resident on the
	// device instead.
	words *mlx.Array
}

func (*mlxIntBuf) intBuf() {}

type mlxRealBuf struct {
	re, im *mlx.Array // parallel Float32 arrays, length N
}

func (*mlxRealBuf) realBuf() {}

// fftStage is one Cooley-Tukey/Gentleman-Sande butterfly stage, precomputed
// once per transform size and reused on every call: the left/right gather
// indices, the (already group-tiled) twiddle factors, and the gather-based
// scatter-back table that recombines sum/diff into the next stage's layout.
type fftStage struct {
	left, right *mlx.Array // Int32, length N/2
	twRe, twIm  *mlx.Array // Float32, length N/2

	// Scattering sum/diff (length N/2 each) back into a length-N array
	// without a native scatter op: gatherIdx maps every output position to
	// the sum/diff index it should read, and isLeft selects which of the
	// two gathered arrays wins at that position.
	gatherIdx *mlx.Array // Int32, length N
	isLeft    *mlx.Array // Bool, length N
}

// MLXKernels is the accelerator-backed Kernels implementation.
type MLXKernels struct {
	n int
	e uint64

	backend mlx.Backend
	device  *mlx.Device

	aTab   *mlx.Array // Float32, length N: forward IBDWT weight
	invMag []float64  // host-side 1/aTab, used only in the host carry pass

	bitRev      *mlx.Array // Int32, length N
	fwdStages   []fftStage
	invStages   []fftStage
	invNScale   *mlx.Array // Float32, length N, filled with 1/N
}

// NewMLXKernels builds an accelerator backend for the given transform shape
// and exponent, selecting whatever device mlx.GetDevice reports (Metal GPU
// when available, CPU otherwise).
func NewMLXKernels(sh shape.Shape, e uint64) *MLXKernels {
	n := sh.N()
	backend := mlx.GetBackend()
	device := mlx.GetDevice()

	aTab, _ := ibdwt.GenWeights(sh.W, sh.H, e)
	aTab32 := make([]float32, n)
	invMag := make([]float64, n)
	for i, a := range aTab {
		aTab32[i] = float32(a)
		invMag[i] = 1 / a
	}
	aTabArr := mlx.ArrayFromSlice(aTab32, []int{n}, mlx.Float32)
	mlx.Eval(aTabArr)

	bitRevIdx := make([]int32, n)
	for i := 0; i < n; i++ {
		bitRevIdx[i] = int32(bitReverse(i, n))
	}
	bitRevArr := mlx.ArrayFromSlice(bitRevIdx, []int{n}, mlx.Int32)
	mlx.Eval(bitRevArr)

	invScale := make([]float32, n)
	for i := range invScale {
		invScale[i] = float32(1.0 / float64(n))
	}
	invNArr := mlx.ArrayFromSlice(invScale, []int{n}, mlx.Float32)
	mlx.Eval(invNArr)

	k := &MLXKernels{
		n:         n,
		e:         e,
		backend:   backend,
		device:    device,
		aTab:      aTabArr,
		invMag:    invMag,
		bitRev:    bitRevArr,
		invNScale: invNArr,
	}
	k.fwdStages = buildStages(n, false)
	k.invStages = buildStages(n, true)
	return k
}

// bitReverse reverses the low log2(n) bits of i.
func bitReverse(i, n int) int {
	bits := 0
	for m := n; m > 1; m >>= 1 {
		bits++
	}
	r := 0
	for b := 0; b < bits; b++ {
		if i&(1<<b) != 0 {
			r |= 1 << (bits - 1 - b)
		}
	}
	return r
}

// buildStages precomputes the host-side index and twiddle tables for every
// doubling-length stage of an iterative radix-2 decimation-in-time FFT of
// size n, mirroring CPUKernels.fft's stage structure (length = 2, 4, ..., n)
// rather than ntt.go's decimation-in-frequency layout, and uploads them as
// MLX arrays once so every call just gathers.
func buildStages(n int, invert bool) []fftStage {
	var stages []fftStage
	for length := 2; length <= n; length <<= 1 {
		mHalf := length / 2
		numGroups := n / length

		ang := 2 * math.Pi / float64(length)
		if invert {
			ang = -ang
		}
		wlen := cmplx.Rect(1, ang)

		twRe := make([]float32, mHalf)
		twIm := make([]float32, mHalf)
		w := complex(1.0, 0.0)
		for j := 0; j < mHalf; j++ {
			twRe[j] = float32(real(w))
			twIm[j] = float32(imag(w))
			w *= wlen
		}

		left := make([]int32, 0, n/2)
		right := make([]int32, 0, n/2)
		tiledRe := make([]float32, 0, n/2)
		tiledIm := make([]float32, 0, n/2)
		gatherIdx := make([]int32, n)
		isLeft := make([]bool, n)
		for g := 0; g < numGroups; g++ {
			for j := 0; j < mHalf; j++ {
				idx := int32(g*mHalf + j)
				left = append(left, int32(g*length+j))
				right = append(right, int32(g*length+j+mHalf))
				tiledRe = append(tiledRe, twRe[j])
				tiledIm = append(tiledIm, twIm[j])

				gatherIdx[g*length+j] = idx
				isLeft[g*length+j] = true
				gatherIdx[g*length+j+mHalf] = idx
				isLeft[g*length+j+mHalf] = false
			}
		}

		stages = append(stages, fftStage{
			left:      mlx.ArrayFromSlice(left, []int{n / 2}, mlx.Int32),
			right:     mlx.ArrayFromSlice(right, []int{n / 2}, mlx.Int32),
			twRe:      mlx.ArrayFromSlice(tiledRe, []int{n / 2}, mlx.Float32),
			twIm:      mlx.ArrayFromSlice(tiledIm, []int{n / 2}, mlx.Float32),
			gatherIdx: mlx.ArrayFromSlice(gatherIdx, []int{n}, mlx.Int32),
			isLeft:    mlx.ArrayFromSlice(isLeft, []int{n}, mlx.Bool),
		})
	}
	return stages
}

// neg returns -a via a multiply, since this package only relies on the
// qualified mlx.* entry points confirmed in use elsewhere in the pack
// (Multiply, Add, ...); a dedicated Subtract is not among them.
func neg(a *mlx.Array) *mlx.Array {
	negOne := mlx.Full(a.Shape(), float32(-1), mlx.Float32)
	return mlx.Multiply(a, negOne)
}

// runStages applies the given precomputed butterfly stages to a (re, im)
// pair in place (functionally — MLX arrays are immutable values, so each
// step rebinds re/im to the array its op produced) and returns the result.
func runStages(re, im, bitRev *mlx.Array, stages []fftStage) (*mlx.Array, *mlx.Array) {
	re = mlx.Take(re, bitRev, 0)
	im = mlx.Take(im, bitRev, 0)

	for _, st := range stages {
		uRe := mlx.Take(re, st.left, 0)
		uIm := mlx.Take(im, st.left, 0)
		vRe0 := mlx.Take(re, st.right, 0)
		vIm0 := mlx.Take(im, st.right, 0)

		// v = v0 * twiddle (complex multiply).
		vRe := mlx.Add(mlx.Multiply(vRe0, st.twRe), neg(mlx.Multiply(vIm0, st.twIm)))
		vIm := mlx.Add(mlx.Multiply(vRe0, st.twIm), mlx.Multiply(vIm0, st.twRe))

		sumRe := mlx.Add(uRe, vRe)
		sumIm := mlx.Add(uIm, vIm)
		diffRe := mlx.Add(uRe, neg(vRe))
		diffIm := mlx.Add(uIm, neg(vIm))

		sumReExp := mlx.Take(sumRe, st.gatherIdx, 0)
		diffReExp := mlx.Take(diffRe, st.gatherIdx, 0)
		sumImExp := mlx.Take(sumIm, st.gatherIdx, 0)
		diffImExp := mlx.Take(diffIm, st.gatherIdx, 0)

		re = mlx.Where(st.isLeft, sumReExp, diffReExp)
		im = mlx.Where(st.isLeft, sumImExp, diffImExp)
		mlx.Eval(re)
		mlx.Eval(im)
	}
	return re, im
}

func (k *MLXKernels) Upload(words []uint32, initialCarry bool) IntBuf {
	raw := ibdwt.ExpandBits(words, initialCarry, k.n, k.e)
	arr := mlx.ArrayFromSlice(raw, []int{k.n}, mlx.Int64)
	mlx.Eval(arr)
	return &mlxIntBuf{words: arr}
}

func (k *MLXKernels) Download(buf IntBuf) []uint32 {
	b := buf.(*mlxIntBuf)
	raw := mlx.AsSlice[int64](b.words)
	return ibdwt.CompactBits(raw, k.n, k.e)
}

func (k *MLXKernels) NewValueInt(v int64) IntBuf {
	words := make([]int64, k.n)
	words[0] = v
	arr := mlx.ArrayFromSlice(words, []int{k.n}, mlx.Int64)
	mlx.Eval(arr)
	return &mlxIntBuf{words: arr}
}

// CopyInt reuses the source array rather than forcing a device-side copy:
// MLX arrays are immutable functional values, so two IntBufs sharing one
// never observe each other's mutation — every op that would "mutate" a
// buffer instead rebinds it to a freshly produced array.
func (k *MLXKernels) CopyInt(src IntBuf) IntBuf {
	return &mlxIntBuf{words: src.(*mlxIntBuf).words}
}

func (k *MLXKernels) FFTP(in IntBuf) RealBuf {
	b := in.(*mlxIntBuf)
	floatWords := mlx.AsType(b.words, mlx.Float32)
	re := mlx.Multiply(floatWords, k.aTab)
	im := mlx.Zeros([]int{k.n}, mlx.Float32)
	re, im = runStages(re, im, k.bitRev, k.fwdStages)
	return &mlxRealBuf{re: re, im: im}
}

func (k *MLXKernels) FFTW(RealBuf) {}
func (k *MLXKernels) FFTH(RealBuf) {}

func (k *MLXKernels) TransposeW(src RealBuf) RealBuf { return src }

// TransposeH runs the inverse transform; see backend_cpu.go's package doc
// for why the inverse lives here rather than behind a dedicated kernel.
func (k *MLXKernels) TransposeH(src RealBuf) RealBuf {
	b := src.(*mlxRealBuf)
	re, im := runStages(b.re, b.im, k.bitRev, k.invStages)
	re = mlx.Multiply(re, k.invNScale)
	im = mlx.Multiply(im, k.invNScale)
	return &mlxRealBuf{re: re, im: im}
}

func (k *MLXKernels) Square(buf RealBuf) {
	b := buf.(*mlxRealBuf)
	re2 := mlx.Add(mlx.Multiply(b.re, b.re), neg(mlx.Multiply(b.im, b.im)))
	im2 := mlx.Multiply(mlx.Multiply(b.re, b.im), mlx.Full([]int{k.n}, float32(2), mlx.Float32))
	b.re, b.im = re2, im2
}

func (k *MLXKernels) Multiply(dst, src RealBuf) {
	d := dst.(*mlxRealBuf)
	s := src.(*mlxRealBuf)
	re := mlx.Add(mlx.Multiply(d.re, s.re), neg(mlx.Multiply(d.im, s.im)))
	im := mlx.Add(mlx.Multiply(d.re, s.im), mlx.Multiply(d.im, s.re))
	d.re, d.im = re, im
}

func (k *MLXKernels) TailFused(buf RealBuf) { k.Square(buf) }

func (k *MLXKernels) CarryA(buf RealBuf, mul3 bool) (IntBuf, RealBuf) {
	b := buf.(*mlxRealBuf)
	reHost := mlx.AsSlice[float32](b.re)

	words := make([]int64, k.n)
	var carry int64
	for i, v := range reHost {
		x := float64(v) * k.invMag[i]
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

	arr := mlx.ArrayFromSlice(words, []int{k.n}, mlx.Int64)
	mlx.Eval(arr)
	return &mlxIntBuf{words: arr}, &mlxRealBuf{}
}

func (k *MLXKernels) CarryB(IntBuf, RealBuf) {}

func (k *MLXKernels) ReadResidue(data IntBuf) []int64 {
	b := data.(*mlxIntBuf)
	words := mlx.AsSlice[int64](b.words)
	out := make([]int64, 128)
	copy(out[:64], words[k.n-64:k.n])
	copy(out[64:], words[:64])
	return out
}

func (k *MLXKernels) DoCheck(a, b IntBuf) (isEqual, isNotZero bool) {
	aw := mlx.AsSlice[int64](a.(*mlxIntBuf).words)
	bw := mlx.AsSlice[int64](b.(*mlxIntBuf).words)
	isEqual = true
	for i := range aw {
		if aw[i] != bw[i] {
			isEqual = false
		}
		if aw[i] != 0 || bw[i] != 0 {
			isNotZero = true
		}
	}
	return isEqual, isNotZero
}

func (k *MLXKernels) Compare(a, b IntBuf, offset int) (isEqual, isNotZero bool) {
	aw := mlx.AsSlice[int64](a.(*mlxIntBuf).words)
	bw := mlx.AsSlice[int64](b.(*mlxIntBuf).words)
	n := len(aw)
	isEqual = true
	for i := range aw {
		j := ((i+offset)%n + n) % n
		if aw[i] != bw[j] {
			isEqual = false
		}
		if aw[i] != 0 || bw[j] != 0 {
			isNotZero = true
		}
	}
	return isEqual, isNotZero
}
