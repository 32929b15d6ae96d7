// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build cgo

package gpu

import "github.com/gpuowl/gpuowl/internal/shape"

// SelectKernels returns an MLX-backed accelerator Kernels when useGPU is
// set, or the pure-Go reference backend otherwise. This build of the
// binary was compiled with cgo, so the MLX backend is available.
func SelectKernels(sh shape.Shape, e uint64, useGPU bool) (Kernels, string) {
	if useGPU {
		return NewMLXKernels(sh, e), "mlx"
	}
	return NewCPUKernels(sh, e), "cpu"
}
