// Package model manages the external pricing-model subprocess: one
// live process per auction, fed line-delimited JSON status updates on
// its stdin and read for line-delimited JSON stance updates on its
// stdout.
package model

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	gethlog "github.com/ethereum/go-ethereum/log"

	ktypes "auctionkeeper/pkg/types"
)

var logger = gethlog.New("module", "model")

// Model is a single running pricing-model process bound to one
// auction. It is not safe for concurrent Send/Stance calls against the
// same instance, matching the one-auction-one-process lifecycle C3
// describes.
type Model struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stderr bytes.Buffer

	mu      sync.Mutex
	lastErr error
	exited  chan struct{}

	stanceMu sync.Mutex
	latest   ktypes.Stance
	readErr  error
}

// Spawn starts command with args, wiring its stdin/stdout for the
// status/stance protocol and capturing stderr for diagnostics on
// failure.
func Spawn(ctx context.Context, command string, args ...string) (*Model, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("model: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("model: stdout pipe: %w", err)
	}

	m := &Model{cmd: cmd, stdin: stdin, exited: make(chan struct{})}
	cmd.Stderr = &m.stderr
	m.stdout = bufio.NewScanner(stdout)
	m.stdout.Buffer(make([]byte, 0, 4096), 1<<20)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("model: start %s: %w", command, err)
	}

	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		close(m.exited)
	}()

	go m.readLoop()

	logger.Info("spawned pricing model", "command", command, "args", args, "pid", cmd.Process.Pid)
	return m, nil
}

// readLoop runs for the life of the process, parsing each stdout line
// into the cached latest stance so ReadStance never blocks the
// registry's single scanning goroutine waiting on a model that simply
// hasn't spoken yet this cycle.
func (m *Model) readLoop() {
	for m.stdout.Scan() {
		stance, err := ktypes.ParseStance(m.stdout.Bytes())
		if err != nil {
			logger.Warn("malformed stance line", "err", err)
			continue
		}
		m.stanceMu.Lock()
		m.latest = stance
		m.stanceMu.Unlock()
	}
	if err := m.stdout.Err(); err != nil {
		m.stanceMu.Lock()
		m.readErr = err
		m.stanceMu.Unlock()
	}
}

// SendStatus writes a Status line to the model's stdin.
func (m *Model) SendStatus(status ktypes.StatusMessage) error {
	line, err := status.MarshalLine()
	if err != nil {
		return fmt.Errorf("model: marshal status: %w", err)
	}
	if _, err := m.stdin.Write(line); err != nil {
		return fmt.Errorf("model: write status: %w", err)
	}
	return nil
}

// ReadStance returns the most recently buffered Stance without
// blocking. A model that hasn't produced a new line since the last
// call is an anticipated, idempotent state (§4.3's "a model may be
// silent"), not an error: ReadStance keeps returning the last stance
// seen (the zero Stance, which reports Silent(), before any line has
// ever arrived) rather than waiting on one.
func (m *Model) ReadStance() (ktypes.Stance, error) {
	m.stanceMu.Lock()
	defer m.stanceMu.Unlock()
	if m.readErr != nil {
		return ktypes.Stance{}, fmt.Errorf("model: read stance: %w", m.readErr)
	}
	return m.latest, nil
}

// Alive reports whether the process has not yet exited.
func (m *Model) Alive() bool {
	select {
	case <-m.exited:
		return false
	default:
		return true
	}
}

// ExitErr returns the process's exit error (nil on clean exit), valid
// only once Alive() is false.
func (m *Model) ExitErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stderr returns captured stderr output, useful for diagnosing a
// non-zero exit.
func (m *Model) Stderr() string {
	return m.stderr.String()
}

// Stop closes stdin (signalling the model to exit on its own) then, if
// it hasn't exited within the grace period the caller enforces via ctx,
// the caller should fall back to Kill.
func (m *Model) Stop() error {
	return m.stdin.Close()
}

// Kill forcibly terminates the process.
func (m *Model) Kill() error {
	if m.cmd.Process == nil {
		return nil
	}
	return m.cmd.Process.Kill()
}

// Wait blocks until the process has exited.
func (m *Model) Wait() {
	<-m.exited
}
