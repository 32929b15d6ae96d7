// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gerbicz

import (
	"testing"

	"github.com/gpuowl/gpuowl/internal/checkpoint"
	"github.com/gpuowl/gpuowl/internal/gpu"
	"github.com/gpuowl/gpuowl/internal/ibdwt"
	"github.com/gpuowl/gpuowl/internal/shape"
)

// toyShape mirrors package gpu's test helper: a transform shape small
// enough to run in a unit test while keeping every coefficient's bit width
// at least 1.
func toyShape(e uint64, w, h int) shape.Shape {
	return shape.Shape{E: e, W: w, H: h, NW: 8, NH: 1}
}

func freshState(e uint64, blockSize int) checkpoint.State {
	check := make([]uint32, ibdwt.CompactWords(e))
	check[0] = 1
	return checkpoint.State{E: e, K: 0, NErrors: 0, BlockSize: blockSize, Check: check}
}

func TestCheckPrimeKnownMersennePrime(t *testing.T) {
	const e = 7 // M_7 = 127 is prime.
	const blockSize = 4
	sh := toyShape(e, 1, 2)
	eng := gpu.New(gpu.NewCPUKernels(sh, e), sh, false)

	res, err := CheckPrime(eng, e, freshState(e, blockSize), Hooks{})
	if err != nil {
		t.Fatalf("CheckPrime error: %v", err)
	}
	if !res.Done {
		t.Fatal("expected Done=true")
	}
	if !res.IsPrime {
		t.Fatal("expected IsPrime=true for M_7")
	}
	if res.Res64 != 9 {
		t.Fatalf("Res64 = %#x, want 9", res.Res64)
	}
	if res.K != kEnd(e, blockSize) {
		t.Fatalf("final K = %d, want %d", res.K, kEnd(e, blockSize))
	}
	if res.NErrors != 0 {
		t.Fatalf("NErrors = %d, want 0 on a clean run", res.NErrors)
	}
}

func TestCheckPrimeComposite(t *testing.T) {
	const e = 11 // M_11 = 2047 = 23*89, composite.
	const blockSize = 4
	sh := toyShape(e, 1, 4)
	eng := gpu.New(gpu.NewCPUKernels(sh, e), sh, false)

	res, err := CheckPrime(eng, e, freshState(e, blockSize), Hooks{})
	if err != nil {
		t.Fatalf("CheckPrime error: %v", err)
	}
	if !res.Done {
		t.Fatal("expected Done=true")
	}
	if res.IsPrime {
		t.Fatal("expected IsPrime=false for composite M_11")
	}
}

func TestCheckPrimeResumesFromMidpointCheckpoint(t *testing.T) {
	const e = 13
	const blockSize = 4
	sh := toyShape(e, 1, 4)

	full := gpu.New(gpu.NewCPUKernels(sh, e), sh, false)
	want, err := CheckPrime(full, e, freshState(e, blockSize), Hooks{})
	if err != nil {
		t.Fatalf("reference CheckPrime error: %v", err)
	}

	stopped := false
	stopEng := gpu.New(gpu.NewCPUKernels(sh, e), sh, false)
	store := checkpoint.NewStore(t.TempDir())
	partial, err := CheckPrime(stopEng, e, freshState(e, blockSize), Hooks{
		Store: store,
		StopRequest: func() bool {
			if stopped {
				return false
			}
			stopped = true
			return true
		},
	})
	if err != nil {
		t.Fatalf("partial CheckPrime error: %v", err)
	}
	if partial.Done {
		t.Fatal("expected a stopped run to report Done=false")
	}

	resumedState, err := store.Load(e)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resumedState.K != partial.K {
		t.Fatalf("checkpoint K = %d, want %d", resumedState.K, partial.K)
	}

	resumeEng := gpu.New(gpu.NewCPUKernels(sh, e), sh, false)
	got, err := CheckPrime(resumeEng, e, resumedState, Hooks{Store: store})
	if err != nil {
		t.Fatalf("resumed CheckPrime error: %v", err)
	}
	if got != want {
		t.Fatalf("resumed result %+v != reference result %+v", got, want)
	}
}

func TestCheckPrimeRejectsBadCheckpoint(t *testing.T) {
	const e = 17
	const blockSize = 4
	sh := toyShape(e, 1, 4)
	eng := gpu.New(gpu.NewCPUKernels(sh, e), sh, false)

	bad := freshState(e, blockSize)
	bad.Check[0] = 0 // all-zero check register: DoCheck's isNotZero guard must reject it

	if _, err := CheckPrime(eng, e, bad, Hooks{}); err == nil {
		t.Fatal("expected an error from a corrupted (all-zero) initial checkpoint")
	}
}
