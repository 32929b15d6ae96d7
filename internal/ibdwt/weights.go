// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package ibdwt

import (
	"math/big"

	"github.com/ALTree/bigfloat"
)

// weightPrec is the working precision (in bits) used to evaluate
// 2^(extra/N) before rounding to the float64 the transform kernels
// actually consume. A plain math.Exp2(float64(extra)*invN) loses the low
// bits of extra/N to float64 rounding before the exponential is even
// taken, which over N in the tens of millions measurably shifts which
// coefficients round to the wrong integer after the forward/inverse
// transform; evaluating the power in extended precision and rounding only
// the final result avoids that.
const weightPrec = 128

var two = big.NewFloat(2).SetPrec(weightPrec)

// pow2 returns 2^x, x = num/den, evaluated at weightPrec bits and rounded
// to the nearest float64.
func pow2(num, den uint64) float64 {
	x := new(big.Float).SetPrec(weightPrec).SetUint64(num)
	d := new(big.Float).SetPrec(weightPrec).SetUint64(den)
	x.Quo(x, d)
	v, _ := bigfloat.Pow(two, x).Float64()
	return v
}

// GenWeights builds the direct (A) and inverse (Ai) IBDWT weighting
// vectors for an N = 2*W*H point transform of an E-bit exponent. Entry k
// gets weight 2^(extra(N,E,k)/N); coefficients that carry the extra bit
// (BitLen(k) == baseBits+1) get their weight's sign flipped, which is how
// the squaring kernel later recovers which coefficients to round at the
// wider width without a separate per-coefficient width table.
func GenWeights(w, h int, e uint64) (aTab, iTab []float64) {
	n := 2 * w * h
	baseBits := BaseBits(uint64(n), e)
	aTab = make([]float64, n)
	iTab = make([]float64, n)

	idx := 0
	for line := 0; line < h; line++ {
		for col := 0; col < w; col++ {
			for rep := 0; rep < 2; rep++ {
				k := uint64((line+col*h)*2 + rep)
				bits := BitLen(uint64(n), e, k)

				a := pow2(Extra(uint64(n), e, k), uint64(n))
				ia := 1 / (4 * float64(n) * a)
				if bits != baseBits {
					a = -a
					ia = -ia
				}
				aTab[idx] = a
				iTab[idx] = ia
				idx++
			}
		}
	}
	return aTab, iTab
}
