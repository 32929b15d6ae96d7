// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/gpuowl/gpuowl/internal/checkpoint"
	"github.com/gpuowl/gpuowl/internal/gerbicz"
	"github.com/gpuowl/gpuowl/internal/gpu"
	"github.com/gpuowl/gpuowl/internal/gpulog"
	"github.com/gpuowl/gpuowl/internal/results"
	"github.com/gpuowl/gpuowl/internal/shape"
	"github.com/gpuowl/gpuowl/internal/worktodo"
)

// gpuowlVersion is reported with -v and embedded in every results.txt line
// via results.ProgramVersion.
const gpuowlVersion = results.ProgramVersion

func main() {
	app := cli.NewApp()
	app.Name = "gpuowl"
	app.Usage = "GPU PRP-3 Mersenne probable-primality tester"
	app.Version = gpuowlVersion
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "dir",
			Value: ".",
			Usage: "run directory: worktodo.txt, results.txt, checkpoints, and the log file all live here",
		},
		cli.StringFlag{
			Name:  "user",
			Usage: "PrimeNet user name recorded in results.txt",
		},
		cli.StringFlag{
			Name:  "cpu",
			Usage: "computer/cpu label recorded in results.txt",
		},
		cli.IntFlag{
			Name:  "device",
			Value: 0,
			Usage: "accelerator device index (informational; device enumeration is out of scope)",
		},
		cli.BoolFlag{
			Name:  "gpu",
			Usage: "use the MLX accelerator backend instead of the pure-Go reference backend (requires a cgo build)",
		},
		cli.StringFlag{
			Name:  "dump",
			Usage: "directory to dump generated GPU kernel source into before compiling (accepted for CLI-surface parity; kernel source generation is out of scope)",
		},
		cli.StringFlag{
			Name:  "cflags",
			Usage: "extra compiler flags passed through to the GPU kernel build (accepted for CLI-surface parity; out of scope)",
		},
		cli.BoolFlag{
			Name:  "time-kernels",
			Usage: "record and report per-kernel call counts and cumulative time",
		},
		cli.StringFlag{
			Name:  "tail",
			Value: "fused",
			Usage: "tail strategy: fused|split",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gpuowl:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	dir := c.String("dir")
	useSplitTail, err := parseTailStrategy(c.String("tail"))
	if err != nil {
		return err
	}
	useGPU := c.Bool("gpu")
	timeKernels := c.Bool("time-kernels")

	if dump := c.String("dump"); dump != "" {
		if err := os.MkdirAll(dump, 0o755); err != nil {
			return fmt.Errorf("gpuowl: -dump %s: %w", dump, err)
		}
	}

	logger, err := gpulog.Open(filepath.Join(dir, "gpuowl.log"))
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Printf("gpuowl %s starting, dir=%s device=%d gpu=%v tail=%s",
		gpuowlVersion, dir, c.Int("device"), useGPU, c.String("tail"))

	stopping := new(atomic.Bool)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh) // restore default disposition on exit, per spec.md §9
	go func() {
		for range sigCh {
			if stopping.CompareAndSwap(false, true) {
				logger.Printf("signal received, finishing current block and checkpointing")
			}
		}
	}()
	stopRequest := func() bool { return stopping.Load() }

	worktodoPath := filepath.Join(dir, "worktodo.txt")
	resultsPath := filepath.Join(dir, "results.txt")
	store := checkpoint.NewStore(dir)

	for {
		e, aid, err := worktodo.ReadExponent(worktodoPath)
		if err != nil {
			return err
		}
		if e == 0 {
			logger.Printf("worktodo empty, exiting")
			return nil
		}

		st, err := store.Load(e)
		if err != nil {
			return fmt.Errorf("gpuowl: loading checkpoint for %d: %w", e, err)
		}

		sh := shape.For(e)
		baseKernels, backendName := gpu.SelectKernels(sh, e, useGPU)
		var timed *gpu.TimedKernels
		var kernels gpu.Kernels = baseKernels
		if timeKernels {
			timed = gpu.NewTimedKernels(baseKernels)
			kernels = timed
		}
		eng := gpu.New(kernels, sh, useSplitTail)

		logger.Printf("starting E=%d aid=%s shape=%s backend=%s blockSize=%d resuming from k=%d",
			e, aid, sh.ConfigName(), backendName, st.BlockSize, st.K)

		start := time.Now()
		res, err := gerbicz.CheckPrime(eng, e, st, gerbicz.Hooks{
			Store:       store,
			Logger:      logger,
			StopRequest: stopRequest,
		})
		if timed != nil {
			logger.Printf("kernel timing for E=%d:\n%s", e, gpulog.KernelTimingReport(timed.Report()))
		}
		if err != nil {
			logger.Printf("E=%d fatal: %v", e, err)
			return err
		}

		if !res.Done {
			logger.Printf("E=%d stopped at k=%d, checkpoint saved; exiting", e, res.K)
			return nil
		}

		logger.Printf("E=%d done in %s: isPrime=%v res64=%016x nErrors=%d",
			e, time.Since(start).Round(time.Second), res.IsPrime, res.Res64, res.NErrors)

		entry := results.NewEntry(e, res.IsPrime, res.Res64, sh.ConfigName(), res.NErrors, time.Now())
		entry.User = c.String("user")
		entry.Computer = c.String("cpu")
		entry.AID = aid
		if err := results.Append(resultsPath, entry); err != nil {
			return fmt.Errorf("gpuowl: writing result for %d: %w", e, err)
		}
		if err := worktodo.DeleteProcessed(worktodoPath, e); err != nil {
			return fmt.Errorf("gpuowl: removing %d from worktodo: %w", e, err)
		}

		if res.IsPrime {
			logger.Printf("E=%d is a probable prime; requesting no more exponents from worktodo", e)
			return nil
		}
	}
}

func parseTailStrategy(v string) (useSplitTail bool, err error) {
	switch v {
	case "fused":
		return false, nil
	case "split":
		return true, nil
	default:
		return false, errors.New(`gpuowl: -tail must be "fused" or "split"`)
	}
}
