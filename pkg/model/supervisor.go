package model

import (
	"context"
	"fmt"

	ktypes "auctionkeeper/pkg/types"
)

// Supervisor restarts a per-auction model up to MaxRestarts times after
// an unexpected exit; beyond that the auction is abandoned rather than
// retried indefinitely.
type Supervisor struct {
	command     string
	args        []string
	maxRestarts int

	restarts int
	current  *Model
}

// NewSupervisor wires a command/args pair with a restart ceiling.
func NewSupervisor(command string, args []string, maxRestarts int) *Supervisor {
	return &Supervisor{command: command, args: args, maxRestarts: maxRestarts}
}

// Start spawns the model for the first time.
func (s *Supervisor) Start(ctx context.Context) (*Model, error) {
	m, err := Spawn(ctx, s.command, s.args...)
	if err != nil {
		return nil, err
	}
	s.current = m
	return m, nil
}

// Restart is called after the current model has exited unexpectedly
// (Alive() false with a non-nil ExitErr). It returns the replacement
// model, or an error once the restart ceiling has been hit — the
// caller is expected to drop the auction on that error rather than
// treat it as transient.
func (s *Supervisor) Restart(ctx context.Context) (*Model, error) {
	if s.restarts >= s.maxRestarts {
		return nil, fmt.Errorf("model: restart limit (%d) exceeded for %s", s.maxRestarts, s.command)
	}
	s.restarts++
	logger.Warn("restarting pricing model", "command", s.command, "attempt", s.restarts, "max", s.maxRestarts)

	m, err := Spawn(ctx, s.command, s.args...)
	if err != nil {
		return nil, err
	}
	s.current = m
	return m, nil
}

// Current returns the presently running model, or nil if never started.
func (s *Supervisor) Current() *Model {
	return s.current
}

// Restarts reports how many restarts have been consumed.
func (s *Supervisor) Restarts() int {
	return s.restarts
}

// Handle adapts a Supervisor to pkg/registry's ModelHandle, restarting
// the underlying process in place (up to maxRestarts) whenever a
// SendStatus call observes it has died, so the registry's own code
// never has to know a model process can crash and come back.
// ReadStance does not restart a dead process.
type Handle struct {
	ctx        context.Context
	supervisor *Supervisor
}

// NewHandle wraps supervisor for use as a registry.ModelHandle,
// restarting against ctx's lifetime.
func NewHandle(ctx context.Context, supervisor *Supervisor) *Handle {
	return &Handle{ctx: ctx, supervisor: supervisor}
}

func (h *Handle) ensureAlive() *Model {
	current := h.supervisor.Current()
	if current != nil && current.Alive() {
		return current
	}
	restarted, err := h.supervisor.Restart(h.ctx)
	if err != nil {
		return current // exhausted restarts; caller observes Alive() == false
	}
	return restarted
}

func (h *Handle) SendStatus(status ktypes.StatusMessage) error {
	current := h.ensureAlive()
	if current == nil {
		return fmt.Errorf("model: no process")
	}
	return current.SendStatus(status)
}

// ReadStance reads the latest stance from whichever process instance is
// currently live.
func (h *Handle) ReadStance() (ktypes.Stance, error) {
	current := h.supervisor.Current()
	if current == nil {
		return ktypes.Stance{}, fmt.Errorf("model: no process")
	}
	return current.ReadStance()
}

func (h *Handle) Alive() bool {
	current := h.supervisor.Current()
	return current != nil && current.Alive()
}

func (h *Handle) Kill() error {
	current := h.supervisor.Current()
	if current == nil {
		return nil
	}
	return current.Kill()
}
