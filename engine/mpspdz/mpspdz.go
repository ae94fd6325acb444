// Package mpspdz invokes an MP-SPDZ style engine installation: the circuit
// source is materialised under the installation directory, compiled with
// the engine's compiler, then executed with the protocol's party binary
// bound to the slot's port base.
package mpspdz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/engine"
	"go.dedis.ch/mpcagent/slotpool"
)

const playerCodeDir = "Programs/Source"

// Invoker runs MP-SPDZ players as child processes under BaseDir
type Invoker struct {
	// BaseDir is the root of the engine installation, holding compile.py
	// and the *-party.x binaries
	BaseDir string
}

// NewInvoker creates an invoker for the engine installed at baseDir
func NewInvoker(baseDir string) *Invoker {
	return &Invoker{BaseDir: baseDir}
}

// Run implements engine.Engine. The job's program is written to a
// temporary source file (randomized name, concurrent jobs must not collide),
// compiled, and run as player job.PlayerID on the slot's port base. Whatever
// the outcome, the child processes are dead and the temp files removed
// before Run returns.
func (iv *Invoker) Run(ctx context.Context, slot slotpool.Slot, job engine.Job) (engine.Result, error) {
	// an empty program means the circuit is already compiled under its own
	// name in the installation
	codeName := job.CircuitID
	if job.Program != "" {
		codeFile, err := iv.savePlayerCode(job.Program)
		if err != nil {
			return engine.Result{}, xerrors.Errorf("failed to save player code: %v", err)
		}
		defer os.Remove(codeFile)

		codeName = strings.TrimSuffix(filepath.Base(codeFile), ".mpc")
		if err := iv.compile(ctx, codeName, job.ExtraArgs); err != nil {
			return engine.Result{}, err
		}
	}

	// the compiler emits the program under the arg-suffixed name, and the
	// party binary must be pointed at that name
	if len(job.ExtraArgs) > 0 {
		codeName = strings.Join(append([]string{codeName}, job.ExtraArgs...), "-")
	}

	hostsFile, err := iv.saveHostsFile(job.PlayerHosts)
	if err != nil {
		return engine.Result{}, xerrors.Errorf("failed to save hosts file: %v", err)
	}
	defer os.Remove(hostsFile)

	return iv.runPlayer(ctx, slot, job, codeName, hostsFile)
}

// savePlayerCode writes the circuit source under the engine's source
// directory. The name is randomized so that concurrent jobs never share a
// source file.
func (iv *Invoker) savePlayerCode(program string) (string, error) {
	dir := filepath.Join(iv.BaseDir, playerCodeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	fd, err := os.CreateTemp(dir, "player_code_*.mpc")
	if err != nil {
		return "", err
	}
	defer fd.Close()

	if _, err := fd.WriteString(program); err != nil {
		os.Remove(fd.Name())
		return "", err
	}
	return fd.Name(), nil
}

// saveHostsFile writes the party addresses, one per line, in registry order
func (iv *Invoker) saveHostsFile(hosts []string) (string, error) {
	fd, err := os.CreateTemp(iv.BaseDir, "HOSTS_")
	if err != nil {
		return "", err
	}
	defer fd.Close()

	if _, err := fd.WriteString(strings.Join(hosts, "\n")); err != nil {
		os.Remove(fd.Name())
		return "", err
	}
	return fd.Name(), nil
}

// compile runs the engine's circuit compiler on the saved source
func (iv *Invoker) compile(ctx context.Context, codeName string, extraArgs []string) error {
	args := append([]string{codeName}, extraArgs...)
	cmd := exec.CommandContext(ctx, "./compile.py", args...)
	cmd.Dir = iv.BaseDir

	log.Info().Msgf("compiling circuit: %s %s", codeName, strings.Join(extraArgs, " "))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return iv.classify(ctx, err, out)
	}
	return nil
}

// runPlayer executes the party binary for this agent's player id, bound to
// the slot's port base
func (iv *Invoker) runPlayer(ctx context.Context, slot slotpool.Slot, job engine.Job,
	codeName string, hostsFile string) (engine.Result, error) {

	party := fmt.Sprintf("./%s-party.x", job.Protocol)
	args := []string{
		"-N", strconv.Itoa(len(job.PlayerHosts)),
		"-ip", hostsFile,
		"-pn", strconv.Itoa(slot.PortBase),
		strconv.Itoa(job.PlayerID),
		codeName,
	}
	cmd := exec.CommandContext(ctx, party, args...)
	cmd.Dir = iv.BaseDir
	if len(job.Share.Share.Values) > 0 {
		// the input share is fed on stdin, one field element per line, so
		// concurrent sessions never share an input file
		cmd.Stdin = strings.NewReader(strings.Join(job.Share.Share.Values, "\n") + "\n")
	}

	log.Info().
		Str("circuit", job.CircuitID).
		Int("player", job.PlayerID).
		Int("port_base", slot.PortBase).
		Msgf("running player: %s %s", party, strings.Join(args, " "))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return engine.Result{}, iv.classify(ctx, err, out)
	}
	return engine.Result{Output: out}, nil
}

// classify maps a child process failure onto the engine error taxonomy
func (iv *Invoker) classify(ctx context.Context, err error, out []byte) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return engine.ErrTimeout
	case context.Canceled:
		return engine.ErrCancelled
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return xerrors.Errorf("exit code %d, output %s: %w",
			exitErr.ExitCode(), strings.TrimSpace(string(out)), engine.ErrProtocolFailure)
	}
	return xerrors.Errorf("%v: %w", err, engine.ErrEngineUnavailable)
}
