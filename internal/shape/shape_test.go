// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shape

import (
	"fmt"
	"testing"
)

func TestForChoosesWidthByThreshold(t *testing.T) {
	cases := []struct {
		e     uint64
		wantW int
	}{
		{1000000, 2048},
		{152999999, 2048},
		{153000000, 4096},
		{200000000, 4096},
	}
	for _, c := range cases {
		s := For(c.e)
		if s.W != c.wantW {
			t.Errorf("For(%d).W = %d, want %d", c.e, s.W, c.wantW)
		}
		if s.H != 2048 {
			t.Errorf("For(%d).H = %d, want 2048", c.e, s.H)
		}
		if s.NW != 8 {
			t.Errorf("For(%d).NW = %d, want 8", c.e, s.NW)
		}
		if s.NH != s.H/256 {
			t.Errorf("For(%d).NH = %d, want %d", c.e, s.NH, s.H/256)
		}
	}
}

func TestNAndConfigName(t *testing.T) {
	s := Shape{W: 2048, H: 2048}
	if s.N() != 2*2048*2048 {
		t.Fatalf("N() = %d, want %d", s.N(), 2*2048*2048)
	}
	if got, want := s.ConfigName(), "8M"; got != want {
		t.Fatalf("ConfigName() = %q, want %q", got, want)
	}

	s4 := Shape{W: 4096, H: 2048}
	if got, want := s4.ConfigName(), "16M"; got != want {
		t.Fatalf("ConfigName() = %q, want %q", got, want)
	}

	sK := Shape{W: 100, H: 100} // N = 20000, not a multiple of 1024*1024
	if got, want := sK.ConfigName(), fmt.Sprintf("%dK", sK.N()/1024); got != want {
		t.Fatalf("ConfigName() = %q, want %q", got, want)
	}
}
