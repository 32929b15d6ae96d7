// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package checkpoint implements the on-disk checkpoint format and its
// atomic 3-file rotation: current (E.owl), previous (E-prev.owl), temp
// (E-temp.owl), plus permanent archival snapshots every 20,000,000
// iterations. Only the check register is ever persisted — data is always
// reconstructible from check via the Gerbicz-Li relation.
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gpuowl/gpuowl/internal/ibdwt"
)

// archiveEvery is the iteration interval at which a permanent, never-rotated
// snapshot is written alongside the regular current/previous rotation.
const archiveEvery = 20_000_000

// defaultBlockSize is the Gerbicz check period used when no checkpoint
// exists yet.
const defaultBlockSize = 200

// State is the full on-disk checkpoint payload for one exponent.
type State struct {
	E         uint64
	K         uint64
	NErrors   int
	BlockSize int
	Check     []uint32
}

// Store owns the checkpoint directory for a run.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir (the directory must already exist).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(e uint64, suffix string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d%s.owl", e, suffix))
}

func (s *Store) archivePath(e, k uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.%d.owl", e, k))
}

// defaultState is the trivial (check=[1,0,...], k=0, nErrors=0,
// blockSize=200) starting point used when no checkpoint file exists.
func defaultState(e uint64) State {
	words := make([]uint32, ibdwt.CompactWords(e))
	words[0] = 1
	return State{E: e, K: 0, NErrors: 0, BlockSize: defaultBlockSize, Check: words}
}

// checksum64 is the Fletcher-like running-pair checksum: a=1,b=0 initially,
// and for each word x, a+=x then b+=a (both mod 2^32), emitted as
// (a<<32)|b. Order-sensitive by construction.
func checksum64(words []uint32) uint64 {
	var a, b uint32 = 1, 0
	for _, x := range words {
		a += x
		b += a
	}
	return uint64(a)<<32 | uint64(b)
}

// Load reads the current checkpoint for e, or returns the trivial initial
// state if E.owl does not exist. Any other read/parse/checksum failure is
// fatal, per spec: checkpoint load corruption is not recoverable by this
// layer.
func (s *Store) Load(e uint64) (State, error) {
	f, err := os.Open(s.path(e, ""))
	if errors.Is(err, os.ErrNotExist) {
		return defaultState(e), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: open: %w", err)
	}
	defer f.Close()

	st, err := parse(bufio.NewReader(f), e)
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: %s: %w", f.Name(), err)
	}
	return st, nil
}

// parse reads one checkpoint file's header and payload, supporting both the
// current "OWL 4" (check only) format and the legacy "OWL 3" (data, then
// check) format for backward read compatibility.
func parse(r *bufio.Reader, wantE uint64) (State, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return State{}, fmt.Errorf("read header: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "OWL" {
		return State{}, fmt.Errorf("malformed header %q", line)
	}
	version, err := strconv.Atoi(fields[1])
	if err != nil {
		return State{}, fmt.Errorf("malformed version in header %q", line)
	}

	switch version {
	case 4:
		if len(fields) != 7 {
			return State{}, fmt.Errorf("malformed v4 header %q", line)
		}
		e, k, nErrors, blockSize, err := parseCommonFields(fields)
		if err != nil {
			return State{}, err
		}
		if e != wantE {
			return State{}, fmt.Errorf("header exponent %d does not match requested %d", e, wantE)
		}
		checksumWant, err := strconv.ParseUint(fields[6], 16, 64)
		if err != nil {
			return State{}, fmt.Errorf("malformed checksum %q: %w", fields[6], err)
		}
		check, err := readWords(r, ibdwt.CompactWords(e))
		if err != nil {
			return State{}, fmt.Errorf("read check vector: %w", err)
		}
		if got := checksum64(check); got != checksumWant {
			return State{}, fmt.Errorf("checksum mismatch: got %#x, want %#x", got, checksumWant)
		}
		return State{E: e, K: k, NErrors: nErrors, BlockSize: blockSize, Check: check}, nil

	case 3:
		if len(fields) != 6 {
			return State{}, fmt.Errorf("malformed v3 header %q", line)
		}
		e, k, nErrors, blockSize, err := parseCommonFields(fields)
		if err != nil {
			return State{}, err
		}
		if e != wantE {
			return State{}, fmt.Errorf("header exponent %d does not match requested %d", e, wantE)
		}
		n := ibdwt.CompactWords(e)
		if _, err := readWords(r, n); err != nil { // data vector: read and discard
			return State{}, fmt.Errorf("read legacy data vector: %w", err)
		}
		check, err := readWords(r, n)
		if err != nil {
			return State{}, fmt.Errorf("read legacy check vector: %w", err)
		}
		return State{E: e, K: k, NErrors: nErrors, BlockSize: blockSize, Check: check}, nil

	default:
		return State{}, fmt.Errorf("unsupported checkpoint version %d", version)
	}
}

func parseCommonFields(fields []string) (e, k uint64, nErrors, blockSize int, err error) {
	if e, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("malformed exponent %q: %w", fields[2], err)
	}
	if k, err = strconv.ParseUint(fields[3], 10, 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("malformed k %q: %w", fields[3], err)
	}
	var n64 uint64
	if n64, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("malformed nErrors %q: %w", fields[4], err)
	}
	nErrors = int(n64)
	var b64 uint64
	if b64, err = strconv.ParseUint(fields[5], 10, 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("malformed blockSize %q: %w", fields[5], err)
	}
	blockSize = int(b64)
	return e, k, nErrors, blockSize, nil
}

func readWords(r io.Reader, n int) ([]uint32, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	words := make([]uint32, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return words, nil
}

func writeWords(w io.Writer, words []uint32) error {
	buf := make([]byte, 4*len(words))
	for i, x := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], x)
	}
	_, err := w.Write(buf)
	return err
}

// writeFile writes one complete "OWL 4" checkpoint (header + check vector)
// to path, failing the whole write on the first error.
func writeFile(path string, st State) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := fmt.Sprintf("OWL 4 %d %d %d %d %016x\n", st.E, st.K, st.NErrors, st.BlockSize, checksum64(st.Check))
	if _, err := w.WriteString(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeWords(w, st.Check); err != nil {
		return fmt.Errorf("write check vector: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return f.Sync()
}

// Save persists st via the atomic rotation protocol: write E-temp.owl in
// full, unlink E-prev.owl, rename E.owl to E-prev.owl, then rename
// E-temp.owl to E.owl. A failure at any step before the final rename leaves
// the previously-canonical E.owl untouched. Every 20,000,000 iterations an
// additional, never-rotated archival snapshot is written.
func (s *Store) Save(st State) error {
	temp := s.path(st.E, "-temp")
	if err := writeFile(temp, st); err != nil {
		return fmt.Errorf("checkpoint: write temp: %w", err)
	}

	prev := s.path(st.E, "-prev")
	cur := s.path(st.E, "")
	if err := os.Remove(prev); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: remove stale previous: %w", err)
	}
	if err := os.Rename(cur, prev); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: rotate current to previous: %w", err)
	}
	if err := os.Rename(temp, cur); err != nil {
		return fmt.Errorf("checkpoint: rotate temp to current: %w", err)
	}

	if st.K != 0 && st.K%archiveEvery == 0 {
		if err := writeFile(s.archivePath(st.E, st.K), st); err != nil {
			return fmt.Errorf("checkpoint: archival snapshot: %w", err)
		}
	}
	return nil
}
