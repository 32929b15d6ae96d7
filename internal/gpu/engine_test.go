// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"math/big"
	"testing"

	"github.com/gpuowl/gpuowl/internal/ibdwt"
	"github.com/gpuowl/gpuowl/internal/shape"
)

// prp3Oracle computes 3^(2^e) mod (2^e-1) with math/big, independent of the
// transform, as ground truth for the engine's iterated squaring.
func prp3Oracle(t *testing.T, e uint64) uint64 {
	t.Helper()
	m := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(e)), big.NewInt(1))
	exp := new(big.Int).Lsh(big.NewInt(1), uint(e))
	r := new(big.Int).Exp(big.NewInt(3), exp, m)
	if !r.IsUint64() {
		t.Fatalf("oracle residue does not fit in a uint64 for this toy E=%d", e)
	}
	return r.Uint64()
}

// toyShape returns a transform shape small enough to run in a unit test
// (the real shape.For always picks H=2048) while keeping every
// coefficient's bit width at least 1, which the real shapes guarantee by
// construction (N far smaller than E) but a toy shape must be sized for
// explicitly.
func toyShape(e uint64, w, h int) shape.Shape {
	return shape.Shape{E: e, W: w, H: h, NW: 8, NH: 1}
}

func TestEngineModSqLoopKnownMersennePrime(t *testing.T) {
	const e = 7 // M_7 = 127 is prime; 3^(2^7) mod 127 == 9.
	sh := toyShape(e, 1, 2)
	eng := New(NewCPUKernels(sh, e), sh, false)
	eng.Reset()
	eng.ModSqLoop(7, false)

	words := eng.RoundtripData()
	if got, want := ibdwt.Residue(words), prp3Oracle(t, e); got != want {
		t.Fatalf("residue = %#x, want %#x (oracle)", got, want)
	}
}

func TestEngineModSqLoopComposite(t *testing.T) {
	const e = 11 // M_11 = 2047 = 23*89, composite.
	sh := toyShape(e, 1, 4)
	eng := New(NewCPUKernels(sh, e), sh, false)
	eng.Reset()
	eng.ModSqLoop(11, false)

	words := eng.RoundtripData()
	got := ibdwt.Residue(words)
	want := prp3Oracle(t, e)
	if got != want {
		t.Fatalf("residue = %#x, want %#x (oracle)", got, want)
	}
	if got == 9 {
		t.Fatalf("M_11 is composite but residue came out 9 (the probable-prime signature)")
	}
}

func TestEngineModSqLoopSplitTailMatchesFused(t *testing.T) {
	const e = 13
	sh := toyShape(e, 1, 4)

	fused := New(NewCPUKernels(sh, e), sh, false)
	fused.Reset()
	fused.ModSqLoop(9, false)

	split := New(NewCPUKernels(sh, e), sh, true)
	split.Reset()
	split.ModSqLoop(9, false)

	a := ibdwt.Residue(fused.RoundtripData())
	b := ibdwt.Residue(split.RoundtripData())
	if a != b {
		t.Fatalf("fused tail residue %#x != split tail residue %#x", a, b)
	}
}

func TestEngineCheckAndUpdateSucceedsOnCleanRun(t *testing.T) {
	const e = 17
	const blockSize = 5
	sh := toyShape(e, 1, 4)
	eng := New(NewCPUKernels(sh, e), sh, false)
	eng.Reset()
	eng.UpdateCheck() // fold the initial data into check, as the loop's pre-block check does

	eng.ModSqLoop(blockSize, false)
	if !eng.CheckAndUpdate(blockSize) {
		t.Fatal("CheckAndUpdate returned false on an uninjected run")
	}
}

func TestEngineRoundtripIsNoOp(t *testing.T) {
	const e = 19
	sh := toyShape(e, 1, 4)
	eng := New(NewCPUKernels(sh, e), sh, false)
	eng.Reset()
	eng.ModSqLoop(6, false)

	direct := eng.DataResidue()
	eng.RoundtripData()
	afterRoundtrip := eng.DataResidue()
	if direct != afterRoundtrip {
		t.Fatalf("residue before roundtrip %#x != after %#x", direct, afterRoundtrip)
	}
}

func TestEngineCheckAndUpdateAcrossMultipleBlocks(t *testing.T) {
	const e = 29
	const blockSize = 4
	const numBlocks = 5
	sh := toyShape(e, 1, 4)
	eng := New(NewCPUKernels(sh, e), sh, false)
	eng.Reset()
	eng.UpdateCheck() // fold the initial data into check, as the loop's pre-block check does

	for i := 0; i < numBlocks; i++ {
		eng.ModSqLoop(blockSize, false)
		if !eng.CheckAndUpdate(blockSize) {
			t.Fatalf("CheckAndUpdate failed at block %d of an uninjected run", i)
		}
	}
}

func TestEngineLoadCheckIsDeterministic(t *testing.T) {
	const e = 23
	const blockSize = 4
	sh := toyShape(e, 1, 4)

	checkWords := make([]uint32, ibdwt.CompactWords(e))
	checkWords[0] = 5

	a := New(NewCPUKernels(sh, e), sh, false)
	a.LoadCheck(checkWords, blockSize)
	b := New(NewCPUKernels(sh, e), sh, false)
	b.LoadCheck(checkWords, blockSize)

	if a.DataResidue() != b.DataResidue() {
		t.Fatalf("dataFromCheck is not deterministic for identical input")
	}
	if words := a.RoundtripData(); len(words) != ibdwt.CompactWords(e) {
		t.Fatalf("reconstructed data has %d words, want %d", len(words), ibdwt.CompactWords(e))
	}
}
