// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"os"
	"strings"
	"sync"

	"github.com/gomlx/packedtensor/backends"
	"k8s.io/klog/v2"
)

// ForcePackedEnv is the environment variable that overrides the platform default of the
// packing policy. If set to an empty value or a value starting with "0", tensors are not
// packed unless explicitly forced. Any other value packs every non-packed tensor.
const ForcePackedEnv = "H2_DISTCONV_FORCE_PACKED"

var (
	policyMu    sync.Mutex
	policyCache = make(map[string]bool)
)

// ShouldPack returns whether tensors handed to backend should be converted to a packed
// layout.
//
// If force is true it always returns true. Otherwise the decision is computed once per
// backend family (backend.Name()) and cached for the rest of the process: the
// backend's Capabilities().PackByDefault, overridden by ForcePackedEnv if it is set.
func ShouldPack(backend backends.Backend, force bool) bool {
	if force {
		return true
	}
	name := backend.Name()
	policyMu.Lock()
	defer policyMu.Unlock()
	if pack, found := policyCache[name]; found {
		return pack
	}
	value, found := os.LookupEnv(ForcePackedEnv)
	platformDefault := backend.Capabilities().PackByDefault
	pack := parseForcePacked(value, found, platformDefault)
	if found {
		klog.V(1).Infof("packing policy for %q: %v (%s=%q, platform default %v)",
			name, pack, ForcePackedEnv, value, platformDefault)
	} else {
		klog.V(1).Infof("packing policy for %q: %v (platform default)", name, pack)
	}
	policyCache[name] = pack
	return pack
}

// parseForcePacked implements the override rule of ForcePackedEnv.
func parseForcePacked(value string, found bool, platformDefault bool) bool {
	if !found {
		return platformDefault
	}
	return value != "" && !strings.HasPrefix(value, "0")
}

// ResetPolicyCache clears the cached packing decisions, so the next ShouldPack reads
// ForcePackedEnv again. Only meant for tests.
func ResetPolicyCache() {
	policyMu.Lock()
	defer policyMu.Unlock()
	clear(policyCache)
}
