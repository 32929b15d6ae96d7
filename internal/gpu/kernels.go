// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu owns the device buffers and kernel sequencing for the
// iterated IBDWT modular-squaring engine: it does not contain the FFT
// kernel bodies themselves (those are an external, backend-specific
// concern — see backend_cpu.go for the pure-Go reference and
// backend_gpu.go for the MLX-backed accelerator), only the orchestration
// that calls them in the right order with the right buffers.
package gpu

// IntBuf is an opaque handle to a device-resident register of N balanced
// integer coefficients (bufData, bufCheck, and their snapshots/scratch).
// Each Kernels implementation defines its own concrete representation.
type IntBuf interface {
	intBuf()
}

// RealBuf is an opaque handle to a device-resident N-double FFT workspace
// buffer (buf1/buf2/buf3/bufCarry in the original vocabulary).
type RealBuf interface {
	realBuf()
}

// Kernels is the fixed vocabulary of device operations the engine composes
// modSqLoop, modMul, and dataResidue from. Every method enqueues (and, for
// this Go port, immediately performs) one named kernel from the contract
// table; the engine never reaches into a buffer's internals.
type Kernels interface {
	// Upload expands a compact little-endian word vector into a freshly
	// allocated balanced-integer register. initialCarry seeds the
	// balancing pass with +1, matching the "data starts at 3" convention.
	Upload(words []uint32, initialCarry bool) IntBuf
	// Download packs a balanced-integer register back into compact words.
	Download(buf IntBuf) []uint32

	// NewValueInt allocates a register holding the single small integer v
	// in its low coefficient and zero elsewhere (used for the (3, 1)
	// trivial initial state).
	NewValueInt(v int64) IntBuf
	// CopyInt performs a verbatim device-side copy of src into a new
	// register (used by saveGood/revertGood).
	CopyInt(src IntBuf) IntBuf

	// FFTP applies the forward IBDWT weights to in and forward-transforms
	// it, producing a fresh frequency-domain buffer.
	FFTP(in IntBuf) RealBuf
	// FFTW performs the width pass of the forward/inverse transform.
	FFTW(buf RealBuf)
	// FFTH performs the height pass of the forward/inverse transform.
	FFTH(buf RealBuf)
	// TransposeW transposes width-major to height-major layout.
	TransposeW(src RealBuf) RealBuf
	// TransposeH transposes height-major back to width-major layout.
	TransposeH(src RealBuf) RealBuf
	// Square squares buf pointwise in the transform domain.
	Square(buf RealBuf)
	// Multiply multiplies dst by src pointwise in the transform domain.
	Multiply(dst, src RealBuf)
	// TailFused performs the fused inner-FFT + square + inner-FFT pass.
	TailFused(buf RealBuf)

	// CarryA inverse-weights buf, optionally multiplies by 3, rounds to
	// the nearest integer, and carry-propagates the result into a fresh
	// balanced-integer register.
	CarryA(buf RealBuf, mul3 bool) (IntBuf, RealBuf)
	// CarryB fans the carry buffer produced by CarryA into io in place.
	CarryB(io IntBuf, carry RealBuf)

	// ReadResidue copies 128 coefficients of data to the host: the 64 that
	// cyclically precede coefficient 0 (carry context, taken from the top
	// of the register) followed by the 64 lowest. Indices wrap modulo N.
	ReadResidue(data IntBuf) []int64
	// DoCheck reports word-wise equality of a and b, and whether either
	// is non-zero.
	DoCheck(a, b IntBuf) (isEqual, isNotZero bool)
	// Compare reports equality of a against b rotated by offset
	// coefficients, and whether either is non-zero.
	Compare(a, b IntBuf, offset int) (isEqual, isNotZero bool)
}
