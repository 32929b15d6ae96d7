// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpulog

import (
	"fmt"
	"sort"
	"time"
)

// Stats is a rolling window of per-block iteration durations, used to
// report a mean/low/high spread and an ETA the same way the original
// tool's Stats/StatsInfo did for its progress lines.
type Stats struct {
	window  int
	samples []time.Duration
}

// NewStats returns a Stats keeping the most recent window samples.
func NewStats(window int) *Stats {
	if window <= 0 {
		window = 1
	}
	return &Stats{window: window}
}

// Add records one more iteration duration, dropping the oldest sample once
// the window is full.
func (s *Stats) Add(d time.Duration) {
	s.samples = append(s.samples, d)
	if len(s.samples) > s.window {
		s.samples = s.samples[len(s.samples)-s.window:]
	}
}

// Mean is the arithmetic mean of the current window, zero if empty.
func (s *Stats) Mean() time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.samples {
		total += d
	}
	return total / time.Duration(len(s.samples))
}

// Low and High are the window's extremes.
func (s *Stats) Low() time.Duration  { return s.extreme(true) }
func (s *Stats) High() time.Duration { return s.extreme(false) }

func (s *Stats) extreme(low bool) time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	best := s.samples[0]
	for _, d := range s.samples[1:] {
		if (low && d < best) || (!low && d > best) {
			best = d
		}
	}
	return best
}

// ETA estimates the time to complete remainingIters more iterations, each
// itersPerSample iterations long, at the window's current mean rate.
func (s *Stats) ETA(remainingIters uint64, itersPerSample uint64) time.Duration {
	mean := s.Mean()
	if mean <= 0 || itersPerSample == 0 {
		return 0
	}
	perIter := mean / time.Duration(itersPerSample)
	return perIter * time.Duration(remainingIters)
}

// ProgressLine renders a doSmallLog/doLog-style status line: current
// iteration, percent complete, iteration-time spread, ETA, and residue.
func ProgressLine(k, kEnd uint64, stats *Stats, res64 uint64) string {
	pct := 100 * float64(k) / float64(kEnd)
	eta := stats.ETA(kEnd-k, 1)
	return fmt.Sprintf("%8d / %d [%.2f%%], %.2f ms/iter [%.2f, %.2f], ETA %s, res64 %016x",
		k, kEnd, pct,
		float64(stats.Mean())/float64(time.Millisecond),
		float64(stats.Low())/float64(time.Millisecond),
		float64(stats.High())/float64(time.Millisecond),
		eta.Round(time.Second), res64)
}

// KernelTiming accumulates call count and total duration for one named
// kernel, for the -time-kernels breakdown.
type KernelTiming struct {
	Name  string
	Calls int
	Total time.Duration
}

// KernelTimingReport renders timings sorted by total time descending,
// eliding entries below 0.5% of the grand total — matching the original
// tool's logTimeKernels behavior (Args::timeKernels).
func KernelTimingReport(timings []KernelTiming) string {
	sorted := make([]KernelTiming, len(timings))
	copy(sorted, timings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Total > sorted[j].Total })

	var grand time.Duration
	for _, t := range sorted {
		grand += t.Total
	}
	if grand == 0 {
		return "no kernel timings recorded"
	}

	out := ""
	for _, t := range sorted {
		share := float64(t.Total) / float64(grand)
		if share < 0.005 {
			continue
		}
		out += fmt.Sprintf("%-16s %6d calls %10s (%.1f%%)\n", t.Name, t.Calls, t.Total.Round(time.Microsecond), share*100)
	}
	return out
}
