// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build !cgo

package gpu

import "github.com/gpuowl/gpuowl/internal/shape"

// SelectKernels always returns the pure-Go reference backend: this build
// of the binary was compiled without cgo, so the MLX accelerator backend
// was not linked in regardless of useGPU.
func SelectKernels(sh shape.Shape, e uint64, useGPU bool) (Kernels, string) {
	return NewCPUKernels(sh, e), "cpu"
}
