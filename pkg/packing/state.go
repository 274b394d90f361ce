// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

// State of a proxy. Proxies move strictly forward:
//
//	StateCreated -> StatePolicyDecided -> (StateIdentity | StateConverted) -> StateFinalized
type State int

//go:generate go tool enumer -type=State -trimprefix=State -output=gen_state_enumer.go state.go

const (
	StateCreated State = iota
	StatePolicyDecided

	// StateIdentity means the proxy aliases the caller's descriptor and data.
	StateIdentity

	// StateConverted means the proxy owns a packed descriptor and, unless it is
	// descriptor-only, a scratch buffer.
	StateConverted

	// StateFinalized proxies can no longer be used.
	StateFinalized
)

// validTransition reports whether a proxy can move from s to next.
func (s State) validTransition(next State) bool {
	switch s {
	case StateCreated:
		return next == StatePolicyDecided
	case StatePolicyDecided:
		return next == StateIdentity || next == StateConverted
	case StateIdentity, StateConverted:
		return next == StateFinalized
	}
	return false
}
