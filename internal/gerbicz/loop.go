// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gerbicz implements checkPrime, the outer iteration driver from
// spec.md §4.5: it advances the engine's data register in blocks,
// periodically verifies the Gerbicz-Li consistency relation, rolls back to
// the last known-good state on mismatch, persists checkpoints, and decides
// the final probable-primality verdict.
package gerbicz

import (
	"fmt"
	"time"

	"github.com/gpuowl/gpuowl/internal/checkpoint"
	"github.com/gpuowl/gpuowl/internal/gpu"
	"github.com/gpuowl/gpuowl/internal/gpulog"
	"github.com/gpuowl/gpuowl/internal/ibdwt"
)

// checkEvery is the mandatory check interval (k % checkEvery == 0), and
// checkpointEvery the mandatory checkpoint-persist interval, per §4.5.
const (
	checkEvery      = 50_000
	checkpointEvery = 100_000
	progressEvery   = 10_000
)

// errorResidueSentinel is the value errorResidue starts at: deliberately
// chosen to make an accidental collision with a genuine wrong residue
// negligible (spec.md §9's documented, accepted Open Question).
const errorResidueSentinel = 0xbad0beefdeadbeef

// Result is the outcome of a completed (or aborted) checkPrime run.
type Result struct {
	IsPrime bool
	Res64   uint64
	NErrors int
	K       uint64
	Done    bool // false if the run aborted before reaching kEnd
}

// Hooks lets the driver observe and control the run without depending on
// the CLI or filesystem layers directly.
type Hooks struct {
	Store       *checkpoint.Store
	Logger      *gpulog.Logger
	StopRequest func() bool // polled after each block
}

// kEnd rounds E up to the next multiple of blockSize: the final k is always
// a block boundary, per spec.md §8's "Final block handling".
func kEnd(e uint64, blockSize int) uint64 {
	b := uint64(blockSize)
	return ((e + b - 1) / b) * b
}

// CheckPrime runs the Gerbicz-Li-checked PRP-3 test for exponent e using
// eng, resuming from st (as loaded by checkpoint.Store.Load) and persisting
// progress through hooks.
func CheckPrime(eng *gpu.Engine, e uint64, st checkpoint.State, hooks Hooks) (Result, error) {
	blockSize := st.BlockSize
	if blockSize == 0 {
		blockSize = 200
	}
	end := kEnd(e, blockSize)

	eng.LoadCheck(st.Check, blockSize)
	k := st.K
	nErrors := st.NErrors

	// Pre-loop sanity check: validate the freshly loaded (or trivial)
	// state before committing to a long run.
	if !eng.CheckAndUpdate(blockSize) {
		return Result{}, fmt.Errorf("gerbicz: initial consistency check failed for E=%d (bad checkpoint or bad device)", e)
	}
	eng.SaveGood()
	goodK := k
	startK := k
	errorResidue := uint64(errorResidueSentinel)

	var pendingPrime bool
	var pendingRes64 uint64
	resCaptured := k >= e
	stats := gpulog.NewStats(20)

	for {
		blockStart := time.Now()

		// E falls inside the block starting at k once per pass (again after a
		// rollback to before E), at k <= e < k+blockSize: square only up to E
		// first, capture the primality
		// residue there, then finish the rest of the block so the Gerbicz
		// check still lands on a block boundary (spec.md §4.5 step 2 /
		// §8's "final k equals E rounded up to a multiple of blockSize").
		if !resCaptured && e-k < uint64(blockSize) {
			eng.ModSqLoop(int(e-k), false)

			words := eng.RoundtripData()
			resRaw := ibdwt.Residue(words)
			ibdwt.DoDiv9(e, words)
			pendingPrime = resRaw == 9 && ibdwt.IsAllZero(trailingWords(words))
			pendingRes64 = resRaw
			resCaptured = true

			eng.ModSqLoop(blockSize-int(e-k), false)
		} else {
			eng.ModSqLoop(blockSize, false)
		}
		stats.Add(time.Since(blockStart) / time.Duration(blockSize))

		k += uint64(blockSize)

		stopRequested := hooks.StopRequest != nil && hooks.StopRequest()

		mustCheck := k%checkEvery == 0 || k >= end || stopRequested || (k-startK == uint64(2*blockSize))
		if !mustCheck {
			eng.UpdateCheck()
			if k%progressEvery == 0 && hooks.Logger != nil {
				hooks.Logger.Printf("%s", gpulog.ProgressLine(k, end, stats, eng.DataResidue()))
			}
			continue
		}

		wantCheckpoint := k%checkpointEvery == 0 || stopRequested

		// Check is read before CheckAndUpdate folds this block's data into
		// it: dataFromCheck on this register reconstructs the data register
		// at k, so the saved state resumes exactly at k.
		var saveCheck []uint32
		if wantCheckpoint && hooks.Store != nil {
			saveCheck = eng.CheckWords()
		}

		if eng.CheckAndUpdate(blockSize) {
			if saveCheck != nil {
				saveState := checkpoint.State{E: e, K: k, NErrors: nErrors, BlockSize: blockSize, Check: saveCheck}
				if err := hooks.Store.Save(saveState); err != nil && hooks.Logger != nil {
					hooks.Logger.Printf("checkpoint save failed (non-fatal): %v", err)
				}
			}
			if k >= end {
				return Result{IsPrime: pendingPrime, Res64: pendingRes64, NErrors: nErrors, K: k, Done: true}, nil
			}
			if stopRequested {
				return Result{NErrors: nErrors, K: k, Done: false}, nil
			}
			eng.SaveGood()
			goodK = k
			errorResidue = errorResidueSentinel
			continue
		}

		// Gerbicz mismatch: distinguish a transient error (rollback and
		// retry) from a persistent one (same wrong residue twice running).
		res := eng.DataResidue()
		if errorResidue == res {
			return Result{NErrors: nErrors, K: k, Done: false}, fmt.Errorf("gerbicz: persistent compute error at k=%d (residue %#x repeated)", k, res)
		}
		errorResidue = res
		nErrors++
		eng.RevertGood()
		k = goodK
		resCaptured = k >= e
	}
}

// trailingWords returns words[1:], the high words that must all be zero for
// resRaw==9 to mean the full residue, not just its low 32 bits, is 9.
func trailingWords(words []uint32) []uint32 {
	if len(words) <= 1 {
		return nil
	}
	return words[1:]
}
