// Package engine defines the boundary to the external MPC engine. Anything
// past Run is cryptographically opaque: the orchestration layer only cares
// that the engine is bound to the slot's ports, that it eventually reports
// success or failure, and that its processes are gone when Run returns.
package engine

import (
	"context"

	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/slotpool"
	"go.dedis.ch/mpcagent/types"
)

var (
	// ErrEngineUnavailable reports that the engine process failed to start
	ErrEngineUnavailable = xerrors.New("engine unavailable")
	// ErrProtocolFailure reports that the engine exited with a protocol error
	ErrProtocolFailure = xerrors.New("engine protocol failure")
	// ErrTimeout reports that the engine exceeded its allotted time
	ErrTimeout = xerrors.New("engine run timed out")
	// ErrCancelled reports that the run was cancelled by the caller
	ErrCancelled = xerrors.New("engine run cancelled")
)

// Job describes one player process to run for a computation session
type Job struct {
	CircuitID string
	// Program is the circuit source handed to the engine toolchain
	Program string
	// Protocol selects the engine's party binary, e.g. "shamir"
	Protocol string
	// PlayerID is this agent's party index
	PlayerID int
	// PlayerHosts lists every party's address, in canonical registry order
	PlayerHosts []string
	// Share is this agent's input share for the circuit
	Share types.SecretShare
	// ExtraArgs are passed through to the engine toolchain
	ExtraArgs []string
}

// Result is the engine's output for one completed run
type Result struct {
	Output []byte
}

// Engine runs one external MPC player bound to the port range of the given
// slot. Run blocks the calling session until the engine completes, fails or
// the context expires; it must guarantee that the player processes no
// longer use the slot's ports by the time it returns, whatever the outcome.
type Engine interface {
	Run(ctx context.Context, slot slotpool.Slot, job Job) (Result, error)
}
