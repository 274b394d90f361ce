// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// packcheck runs read/write proxy round trips of a strided tensor on a backend, checks the
// results against a host computation and reports the proxies, allocator and device usage.
//
// Example:
//
//	packcheck -backend=repack:workers=4 -dims=8,64,64 -strides=5000,72,1 -iters=1000 -beta=0.5
package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/backends"
	_ "github.com/gomlx/packedtensor/backends/default"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "", "Backend configuration \"<name>[:<config>]\", defaults to $"+backends.DISTCONV_BACKEND+" or the first registered backend.")
	flagDims    = flag.String("dims", "2,3,4", "Comma-separated dimensions of the tensor.")
	flagStrides = flag.String("strides", "16,4,1", "Comma-separated strides of the tensor, in elements. If empty, the tensor is packed.")
	flagIters   = flag.Int("iters", 100, "Number of read/write proxy round trips.")
	flagBeta    = flag.Float64("beta", 0, "Coefficient of the previous output in each round trip: y = x + beta*y.")
	flagForce   = flag.Bool("force", false, "Force packing, regardless of the packing policy.")
	flagSync    = flag.Bool("sync", false, "Run synchronously, without a stream.")
	flagPlain   = flag.Bool("plain", false, "Plain output: no colors and no progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'packcheck -help'.", flag.Args())
		os.Exit(1)
	}

	output := termenv.NewOutput(os.Stdout)
	if *flagPlain {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		lipgloss.SetColorProfile(output.Profile)
	}

	layout, err := parseLayout(*flagDims, *flagStrides)
	if err != nil {
		klog.Errorf("Invalid tensor layout: %+v", err)
		os.Exit(1)
	}
	var backend backends.Backend
	if *flagBackend == "" {
		backend = must.M1(backends.New())
	} else {
		backend = must.M1(backends.NewWithConfig(*flagBackend))
	}
	defer backend.Finalize()

	result, err := run(backend, layout, *flagIters, *flagBeta, *flagForce, !*flagSync, !*flagPlain && output.Profile != termenv.Ascii)
	if err != nil {
		klog.Errorf("Failed: %+v", err)
		os.Exit(1)
	}
	report(backend, layout, result)
	if result.mismatches > 0 {
		os.Exit(2)
	}
}

// parseLayout of a float32 tensor from the comma-separated dims and strides.
func parseLayout(dimsFlag, stridesFlag string) (tensordesc.Descriptor, error) {
	dims, err := parseInts(dimsFlag)
	if err != nil {
		return tensordesc.Descriptor{}, errors.WithMessage(err, "-dims")
	}
	if stridesFlag == "" {
		return tensordesc.MakePacked(dtypes.Float32, dims...), nil
	}
	strides, err := parseInts(stridesFlag)
	if err != nil {
		return tensordesc.Descriptor{}, errors.WithMessage(err, "-strides")
	}
	layout := tensordesc.Descriptor{DType: dtypes.Float32, Dims: dims, Strides: strides}
	return layout, layout.Validate()
}

func parseInts(list string) ([]int, error) {
	var values []int
	for _, part := range strings.Split(list, ",") {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", list)
		}
		values = append(values, value)
	}
	return values, nil
}
