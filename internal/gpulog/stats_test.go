// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpulog

import (
	"strings"
	"testing"
	"time"
)

func TestStatsMeanLowHigh(t *testing.T) {
	s := NewStats(3)
	s.Add(10 * time.Millisecond)
	s.Add(20 * time.Millisecond)
	s.Add(30 * time.Millisecond)
	if s.Mean() != 20*time.Millisecond {
		t.Fatalf("Mean = %v, want 20ms", s.Mean())
	}
	if s.Low() != 10*time.Millisecond {
		t.Fatalf("Low = %v, want 10ms", s.Low())
	}
	if s.High() != 30*time.Millisecond {
		t.Fatalf("High = %v, want 30ms", s.High())
	}
}

func TestStatsDropsOldestPastWindow(t *testing.T) {
	s := NewStats(2)
	s.Add(10 * time.Millisecond)
	s.Add(20 * time.Millisecond)
	s.Add(30 * time.Millisecond)
	if s.Low() != 20*time.Millisecond {
		t.Fatalf("Low after overflow = %v, want 20ms (10ms sample should be dropped)", s.Low())
	}
}

func TestStatsETAZeroWhenEmpty(t *testing.T) {
	s := NewStats(5)
	if got := s.ETA(1000, 1); got != 0 {
		t.Fatalf("ETA on empty stats = %v, want 0", got)
	}
}

func TestKernelTimingReportElidesNegligibleEntries(t *testing.T) {
	report := KernelTimingReport([]KernelTiming{
		{Name: "fftP", Calls: 1000, Total: 900 * time.Millisecond},
		{Name: "carryA", Calls: 1000, Total: 99 * time.Millisecond},
		{Name: "readResidue", Calls: 1, Total: 1 * time.Microsecond},
	})
	if !strings.Contains(report, "fftP") {
		t.Fatalf("report missing dominant kernel: %s", report)
	}
	if strings.Contains(report, "readResidue") {
		t.Fatalf("report should elide negligible entries: %s", report)
	}
}
