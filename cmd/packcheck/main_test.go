// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"testing"

	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/packing"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayout(t *testing.T) {
	layout := must.M1(parseLayout("2, 3,4", "16,4,1"))
	assert.Equal(t, "(Float32)[2 3 4]/[16 4 1]", layout.String())
	layout = must.M1(parseLayout("2,3", ""))
	assert.True(t, layout.IsFullyPacked())
	_, err := parseLayout("2,x", "")
	require.Error(t, err)
	_, err = parseLayout("2,3", "1")
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	if _, found := os.LookupEnv(packing.ForcePackedEnv); found {
		t.Skipf("%s is set", packing.ForcePackedEnv)
	}
	for _, config := range []string{"transform", "repack:workers=2"} {
		for _, async := range []bool{false, true} {
			packing.ResetPolicyCache()
			backend := must.M1(backends.NewWithConfig(config))
			layout := must.M1(parseLayout("3,4,5", "40,6,1"))
			result, err := run(backend, layout, 5, 0.5, false, async, false)
			require.NoError(t, err)
			assert.Equal(t, 5, result.iterations)
			assert.Equal(t, 0, result.mismatches)
			assert.Equal(t, backend.Capabilities().PackByDefault, result.readConverted)
			assert.Equal(t, 0, result.stats.LiveBlocks)
			assert.Equal(t, 0, backend.LiveDescriptors())
			backend.Finalize()
		}
	}
	packing.ResetPolicyCache()
}
