// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package checkpoint

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestChecksum64IsOrderSensitive(t *testing.T) {
	a := checksum64([]uint32{1, 2, 3})
	b := checksum64([]uint32{3, 2, 1})
	if a == b {
		t.Fatalf("checksum64 must be order-sensitive, got equal values %#x for both orderings", a)
	}
}

func TestLoadReturnsDefaultStateWhenAbsent(t *testing.T) {
	s := NewStore(t.TempDir())
	st, err := s.Load(31)
	if err != nil {
		t.Fatalf("Load on empty dir: %v", err)
	}
	if st.K != 0 || st.NErrors != 0 || st.BlockSize != defaultBlockSize {
		t.Fatalf("default state = %+v, want K=0 NErrors=0 BlockSize=%d", st, defaultBlockSize)
	}
	if st.Check[0] != 1 {
		t.Fatalf("default check register = %v, want [1,0,...]", st.Check)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	const e = 61
	want := State{E: e, K: 4000, NErrors: 2, BlockSize: 200, Check: make([]uint32, 2)}
	want.Check[0] = 0xdeadbeef
	want.Check[1] = 0x1

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(e)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.K != want.K || got.NErrors != want.NErrors || got.BlockSize != want.BlockSize {
		t.Fatalf("round-trip state = %+v, want %+v", got, want)
	}
	for i := range want.Check {
		if got.Check[i] != want.Check[i] {
			t.Fatalf("round-trip check[%d] = %#x, want %#x", i, got.Check[i], want.Check[i])
		}
	}
}

func TestSaveRotatesPreviousAndKeepsItReadable(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	const e = 61

	first := State{E: e, K: 200, NErrors: 0, BlockSize: 200, Check: []uint32{1, 0}}
	second := State{E: e, K: 400, NErrors: 0, BlockSize: 200, Check: []uint32{2, 0}}
	if err := s.Save(first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := s.Save(second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	prevFile, err := os.Open(s.path(e, "-prev"))
	if err != nil {
		t.Fatalf("expected rotated previous checkpoint to exist: %v", err)
	}
	defer prevFile.Close()
	prevState, err := parse(bufio.NewReader(prevFile), e)
	if err != nil {
		t.Fatalf("rotated previous checkpoint is not readable: %v", err)
	}
	if prevState.K != first.K {
		t.Fatalf("previous checkpoint K = %d, want %d", prevState.K, first.K)
	}
	got, err := s.Load(e)
	if err != nil {
		t.Fatalf("Load current: %v", err)
	}
	if got.K != second.K {
		t.Fatalf("current checkpoint K = %d, want %d", got.K, second.K)
	}
}

func TestSaveWritesArchivalSnapshotAtMultiple(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	const e = 61
	st := State{E: e, K: 20_000_000, NErrors: 0, BlockSize: 200, Check: []uint32{7, 0}}
	if err := s.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(s.archivePath(e, st.K)); err != nil {
		t.Fatalf("expected archival snapshot at K=%d: %v", st.K, err)
	}
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	const e = 61
	st := State{E: e, K: 200, NErrors: 0, BlockSize: 200, Check: []uint32{1, 0}}
	if err := s.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Corrupt the check vector so it no longer matches the header checksum.
	p := filepath.Join(dir, "61.owl")
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-1] ^= 0xff // perturb the last payload byte (high byte of check[1])
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := s.Load(e); err == nil {
		t.Fatal("Load on checksum-corrupted checkpoint returned no error")
	}
}

func TestParseLegacyV3HeaderUsesCheckVectorOnly(t *testing.T) {
	dir := t.TempDir()
	const e = 61
	n := 2
	path := filepath.Join(dir, "61.owl")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteString("OWL 3 61 800 1 200\n"); err != nil {
		t.Fatalf("write header: %v", err)
	}
	dataWords := make([]uint32, n) // discarded by the parser
	dataWords[0] = 0xffffffff
	checkWords := make([]uint32, n)
	checkWords[0] = 0x42
	if err := writeWords(f, dataWords); err != nil {
		t.Fatalf("write data vector: %v", err)
	}
	if err := writeWords(f, checkWords); err != nil {
		t.Fatalf("write check vector: %v", err)
	}
	f.Close()

	s := NewStore(dir)
	got, err := s.Load(e)
	if err != nil {
		t.Fatalf("Load legacy checkpoint: %v", err)
	}
	if got.K != 800 || got.NErrors != 1 || got.BlockSize != 200 {
		t.Fatalf("legacy state = %+v, want K=800 NErrors=1 BlockSize=200", got)
	}
	if got.Check[0] != 0x42 {
		t.Fatalf("legacy check[0] = %#x, want 0x42", got.Check[0])
	}
}
