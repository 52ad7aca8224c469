//go:build unix

package session

import (
	"context"
	"fmt"
	"sync"
)

// Mode is the caller-requested behavior for one decision tick.
type Mode int

const (
	// ModeNormal shows savers until activity requests authentication.
	ModeNormal Mode = iota
	// ModeSaverDisabled keeps savers stopped, e.g. while the display is
	// already blanked by an external agent.
	ModeSaverDisabled
	// ModeForceAuth requests an authentication prompt now.
	ModeForceAuth
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSaverDisabled:
		return "saver-disabled"
	case ModeForceAuth:
		return "force-auth"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// State is the orchestrator-level session state.
type State string

const (
	StateShowingSaver State = "locked-showing-saver"
	StateShowingAuth  State = "locked-showing-auth-prompt"
	StateUnlocked     State = "unlocked"
)

// Orchestrator drives the auth and saver controllers so that at most one of
// {saver, auth} is active per surface, and reports when the session may
// unlock. Decide runs on a single goroutine; the mutex only lets the status
// API read a consistent snapshot between ticks.
type Orchestrator struct {
	auth   *AuthController
	savers *SaverController

	mu       sync.Mutex
	unlocked bool
}

// NewOrchestrator wires the two controllers together.
func NewOrchestrator(auth *AuthController, savers *SaverController) *Orchestrator {
	return &Orchestrator{auth: auth, savers: savers}
}

// Decide runs one supervision tick. It must be invoked at a fixed minimum
// rate so child exits are observed even without input, and additionally
// whenever input arrives. It returns true exactly once: when the
// authentication backend's verified success exit has been observed; the
// caller then ends the locked session.
func (o *Orchestrator) Decide(ctx context.Context, mode Mode, input []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	wantAuth := mode == ModeForceAuth || o.auth.Active()

	if wantAuth {
		// A saver never runs concurrently with the prompt. The spawn flag
		// follows the explicit request only: a freshly failed attempt must
		// fall through to the savers, not respawn the prompt.
		o.savers.StopAll(ctx)
		if o.auth.Watch(ctx, mode == ModeForceAuth, input) {
			// Defensive second sweep before handing the session back.
			o.savers.StopAll(ctx)
			o.unlocked = true
			return true
		}
		wantAuth = o.auth.Active()
	}

	if !wantAuth {
		run := mode != ModeSaverDisabled
		for i := 0; i < o.savers.SlotCount(); i++ {
			_ = o.savers.Watch(ctx, i, run)
		}
	}

	return false
}

// Shutdown tears down all children without unlocking, for an externally
// requested end of the locker process.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.auth.Shutdown(ctx)
	o.savers.StopAll(ctx)
}

// State reports the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state()
}

func (o *Orchestrator) state() State {
	switch {
	case o.unlocked:
		return StateUnlocked
	case o.auth.Active():
		return StateShowingAuth
	default:
		return StateShowingSaver
	}
}

// Snapshot is a point-in-time view for the status API.
type Snapshot struct {
	State   State  `json:"state"`
	Auth    string `json:"auth"`
	Attempt string `json:"attempt,omitempty"`
	Savers  []bool `json:"savers"`
}

// Snapshot captures the orchestrator's view of every slot.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	savers := make([]bool, o.savers.SlotCount())
	for i := range savers {
		savers[i] = o.savers.Running(i)
	}
	return Snapshot{
		State:   o.state(),
		Auth:    o.auth.State().String(),
		Attempt: o.auth.Attempt(),
		Savers:  savers,
	}
}
