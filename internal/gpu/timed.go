// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"time"

	"github.com/gpuowl/gpuowl/internal/gpulog"
)

// TimedKernels wraps another Kernels implementation and records
// per-kernel call counts and cumulative duration, for the CLI's
// -time-kernels flag (SPEC_FULL.md §5's logTimeKernels).
type TimedKernels struct {
	inner Kernels
	calls map[string]int
	total map[string]time.Duration
}

// NewTimedKernels wraps inner with timing instrumentation.
func NewTimedKernels(inner Kernels) *TimedKernels {
	return &TimedKernels{
		inner: inner,
		calls: make(map[string]int),
		total: make(map[string]time.Duration),
	}
}

func (t *TimedKernels) record(name string, start time.Time) {
	t.calls[name]++
	t.total[name] += time.Since(start)
}

// Report returns the accumulated timings, suitable for gpulog.KernelTimingReport.
func (t *TimedKernels) Report() []gpulog.KernelTiming {
	out := make([]gpulog.KernelTiming, 0, len(t.calls))
	for name, calls := range t.calls {
		out = append(out, gpulog.KernelTiming{Name: name, Calls: calls, Total: t.total[name]})
	}
	return out
}

func (t *TimedKernels) Upload(words []uint32, initialCarry bool) IntBuf {
	start := time.Now()
	defer t.record("upload", start)
	return t.inner.Upload(words, initialCarry)
}

func (t *TimedKernels) Download(buf IntBuf) []uint32 {
	start := time.Now()
	defer t.record("download", start)
	return t.inner.Download(buf)
}

func (t *TimedKernels) NewValueInt(v int64) IntBuf {
	start := time.Now()
	defer t.record("newValueInt", start)
	return t.inner.NewValueInt(v)
}

func (t *TimedKernels) CopyInt(src IntBuf) IntBuf {
	start := time.Now()
	defer t.record("copyInt", start)
	return t.inner.CopyInt(src)
}

func (t *TimedKernels) FFTP(in IntBuf) RealBuf {
	start := time.Now()
	defer t.record("fftP", start)
	return t.inner.FFTP(in)
}

func (t *TimedKernels) FFTW(buf RealBuf) {
	start := time.Now()
	defer t.record("fftW", start)
	t.inner.FFTW(buf)
}

func (t *TimedKernels) FFTH(buf RealBuf) {
	start := time.Now()
	defer t.record("fftH", start)
	t.inner.FFTH(buf)
}

func (t *TimedKernels) TransposeW(src RealBuf) RealBuf {
	start := time.Now()
	defer t.record("transposeW", start)
	return t.inner.TransposeW(src)
}

func (t *TimedKernels) TransposeH(src RealBuf) RealBuf {
	start := time.Now()
	defer t.record("transposeH", start)
	return t.inner.TransposeH(src)
}

func (t *TimedKernels) Square(buf RealBuf) {
	start := time.Now()
	defer t.record("square", start)
	t.inner.Square(buf)
}

func (t *TimedKernels) Multiply(dst, src RealBuf) {
	start := time.Now()
	defer t.record("multiply", start)
	t.inner.Multiply(dst, src)
}

func (t *TimedKernels) TailFused(buf RealBuf) {
	start := time.Now()
	defer t.record("tailFused", start)
	t.inner.TailFused(buf)
}

func (t *TimedKernels) CarryA(buf RealBuf, mul3 bool) (IntBuf, RealBuf) {
	start := time.Now()
	defer t.record("carryA", start)
	return t.inner.CarryA(buf, mul3)
}

func (t *TimedKernels) CarryB(io IntBuf, carry RealBuf) {
	start := time.Now()
	defer t.record("carryB", start)
	t.inner.CarryB(io, carry)
}

func (t *TimedKernels) ReadResidue(data IntBuf) []int64 {
	start := time.Now()
	defer t.record("readResidue", start)
	return t.inner.ReadResidue(data)
}

func (t *TimedKernels) DoCheck(a, b IntBuf) (bool, bool) {
	start := time.Now()
	defer t.record("doCheck", start)
	return t.inner.DoCheck(a, b)
}

func (t *TimedKernels) Compare(a, b IntBuf, offset int) (bool, bool) {
	start := time.Now()
	defer t.record("compare", start)
	return t.inner.Compare(a, b, offset)
}
