// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package results appends one JSON object per line to results.txt,
// matching the schema spec.md §6 fixes for every completed exponent.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ProgramVersion is reported in every result line's "program" field.
const ProgramVersion = "2.2-go"

// Program identifies the software that produced a result line.
type Program struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Errors carries the Gerbicz mismatch count observed while testing an
// exponent.
type Errors struct {
	Gerbicz int `json:"gerbicz"`
}

// Entry is one results.txt line. Status is "P" for probable prime, "C" for
// composite. User, Computer, and AID are omitted from the JSON line when
// empty.
type Entry struct {
	Exponent    uint64  `json:"exponent"`
	Worktype    string  `json:"worktype"`
	Status      string  `json:"status"`
	ResidueType int     `json:"residue-type"`
	FFTLength   string  `json:"fft-length"`
	Res64       string  `json:"res64"`
	Program     Program `json:"program"`
	Timestamp   string  `json:"timestamp"`
	Errors      Errors  `json:"errors"`
	User        string  `json:"user,omitempty"`
	Computer    string  `json:"computer,omitempty"`
	AID         string  `json:"aid,omitempty"`
}

// NewEntry builds an Entry for a just-completed PRP-3 test. res64 is
// rendered as 16 lowercase hex digits; the timestamp is UTC, ISO-8601-ish.
func NewEntry(exponent uint64, isPrime bool, res64 uint64, fftLength string, nErrors int, now time.Time) Entry {
	status := "C"
	if isPrime {
		status = "P"
	}
	return Entry{
		Exponent:    exponent,
		Worktype:    "PRP-3",
		Status:      status,
		ResidueType: 1,
		FFTLength:   fftLength,
		Res64:       fmt.Sprintf("%016x", res64),
		Program:     Program{Name: "gpuowl", Version: ProgramVersion},
		Timestamp:   now.UTC().Format("2006-01-02 15:04:05"),
		Errors:      Errors{Gerbicz: nErrors},
	}
}

// Append writes e as one JSON line to the results file at path, creating it
// if needed.
func Append(path string, e Entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("results: open %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("results: marshal entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("results: write %s: %w", path, err)
	}
	return nil
}
