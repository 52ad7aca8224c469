//go:build unix

package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/vigil-lock/vigil/internal/group"
)

// Environment handed to child processes.
const (
	// EnvSurface carries the display-surface identity a child draws on.
	EnvSurface = "VIGIL_SURFACE"
	// EnvSaverSlot carries the numeric slot index of a saver child.
	EnvSaverSlot = "VIGIL_SAVER_SLOT"
)

// AuthState tracks the single authentication slot.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthStarting
	AuthRunning
	AuthSucceeded
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthStarting:
		return "starting"
	case AuthRunning:
		return "running"
	case AuthSucceeded:
		return "succeeded"
	case AuthFailed:
		return "failed"
	}
	return fmt.Sprintf("authstate(%d)", int(s))
}

// AuthConfig configures the authentication child.
type AuthConfig struct {
	// Command starts the prompt-side authentication child.
	Command []string
	// Holder is the group placeholder command.
	Holder []string
	// Surface is the display-surface identity exported to the child.
	Surface string

	// ForwardFirstKeystroke forwards the keystroke that woke the auth
	// child unless it is a pure control character. Disabled by default so
	// a wake-the-screen keypress never leaks into the password buffer.
	ForwardFirstKeystroke bool

	// ClearSurface, when set, is invoked after the auth child is gone so
	// no prompt remnants linger. Failures are reported, not fatal.
	ClearSurface func() error
}

// AuthController owns the lifecycle of at most one authentication child.
// Its status check never blocks the caller.
type AuthController struct {
	cfg    AuthConfig
	run    runner
	events chan<- Event

	state   AuthState
	tracked *group.Tracked
	stdin   *os.File
	attempt string
}

// NewAuthController builds a controller around real process groups.
func NewAuthController(cfg AuthConfig, n *group.Notifier, events chan<- Event) *AuthController {
	return newAuthController(cfg, newGroupRunner(n), events)
}

func newAuthController(cfg AuthConfig, run runner, events chan<- Event) *AuthController {
	return &AuthController{cfg: cfg, run: run, events: events, state: AuthIdle}
}

// State reports the current slot state.
func (a *AuthController) State() AuthState {
	return a.state
}

// Active reports whether an authentication child is wanted-alive.
func (a *AuthController) Active() bool {
	return a.state == AuthStarting || a.state == AuthRunning
}

// Attempt identifies the authentication attempt in flight, if any.
func (a *AuthController) Attempt() string {
	return a.attempt
}

// Watch performs one non-blocking status check, spawning the auth child when
// wantAuth and the slot is idle, and forwarding input to a child that is
// already running. It returns true only when the child's exit status 0 has
// been observed; every other outcome keeps the session locked.
func (a *AuthController) Watch(ctx context.Context, wantAuth bool, input []byte) bool {
	if a.tracked != nil && a.tracked.Running() {
		st, err := a.run.Wait(ctx, a.tracked, false, false)
		if err != nil && !errors.Is(err, group.ErrNotTracked) {
			sendEvent(a.events, EventTypeAnomaly, AuthSlot, a.attempt, "auth status check failed", 0, err)
		}
		if st.Terminated() {
			a.release()
			if st.Reason == group.ReasonExited && st.Code == 0 {
				a.state = AuthSucceeded
				sendEvent(a.events, EventTypeAuthSucceeded, AuthSlot, a.attempt, "authentication verified", 0, nil)
				return true
			}
			// Ordinary failure (wrong password) stays silent; only
			// signal deaths are worth an operator's attention.
			a.state = AuthFailed
			if st.Reason == group.ReasonSignaled && !st.Expected {
				sendEvent(a.events, EventTypeAuthSignaled, AuthSlot, a.attempt,
					"auth child killed by signal", -int(st.Signal), nil)
			} else {
				sendEvent(a.events, EventTypeAuthFailed, AuthSlot, a.attempt, "authentication failed", 0, nil)
			}
			a.attempt = ""
			a.state = AuthIdle
		}
	}

	fresh := false
	if wantAuth && (a.tracked == nil || !a.tracked.Running()) {
		if !a.spawn() {
			return false
		}
		fresh = true
	}

	if fresh {
		if !a.cfg.ForwardFirstKeystroke || allControl(input) {
			input = nil
		}
	}

	if len(input) > 0 && a.stdin != nil && a.tracked != nil && a.tracked.Running() {
		n, err := a.stdin.Write(input)
		if err != nil || n < len(input) {
			// Dropped, not retried: the next keystroke arrives on the
			// next call and responsiveness wins over completeness.
			sendEvent(a.events, EventTypeInputDropped, AuthSlot, a.attempt,
				fmt.Sprintf("short write to auth child: %d of %d bytes", n, len(input)), 0, err)
		}
	}

	return false
}

func (a *AuthController) spawn() bool {
	a.state = AuthStarting

	r, w, err := os.Pipe()
	if err != nil {
		sendEvent(a.events, EventTypeError, AuthSlot, "", "auth input pipe", 0, err)
		a.state = AuthIdle
		return false
	}

	tracked, err := a.run.Spawn(group.ChildSpec{
		Name:    "auth",
		Command: a.cfg.Command,
		Env:     []string{EnvSurface + "=" + a.cfg.Surface},
		Stdin:   r,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Holder:  a.cfg.Holder,
	})
	_ = r.Close()
	if err != nil && !errors.Is(err, group.ErrHolder) {
		_ = w.Close()
		sendEvent(a.events, EventTypeError, AuthSlot, "", "auth child start", 0, err)
		a.state = AuthIdle
		return false
	}
	if err != nil {
		sendEvent(a.events, EventTypeAnomaly, AuthSlot, "", "auth group holder", 0, err)
	}

	if err := setNonblock(w); err != nil {
		sendEvent(a.events, EventTypeAnomaly, AuthSlot, "", "auth pipe nonblock", 0, err)
	}

	a.tracked = tracked
	a.stdin = w
	a.attempt = uuid.NewString()
	a.state = AuthRunning
	sendEvent(a.events, EventTypeAuthStarting, AuthSlot, a.attempt, "auth child started", 0, nil)
	return true
}

// release consumes a finished attempt: close the input descriptor and clear
// the prompt surface.
func (a *AuthController) release() {
	if a.stdin != nil {
		_ = a.stdin.Close()
		a.stdin = nil
	}
	a.tracked = nil
	if a.cfg.ClearSurface != nil {
		if err := a.cfg.ClearSurface(); err != nil {
			sendEvent(a.events, EventTypeAnomaly, AuthSlot, a.attempt, "clear auth surface", 0, err)
		}
	}
}

// Shutdown terminates a running auth child during session teardown.
func (a *AuthController) Shutdown(ctx context.Context) {
	if a.tracked == nil || !a.tracked.Running() {
		return
	}
	if err := a.run.Kill(a.tracked.Pid, group.StopSignal); err != nil {
		sendEvent(a.events, EventTypeAnomaly, AuthSlot, a.attempt, "auth shutdown kill", 0, err)
	}
	if _, err := a.run.Wait(ctx, a.tracked, true, true); err != nil {
		sendEvent(a.events, EventTypeAnomaly, AuthSlot, a.attempt, "auth shutdown wait", 0, err)
	}
	a.release()
	a.attempt = ""
	a.state = AuthIdle
}

// allControl reports whether input consists solely of control characters.
func allControl(input []byte) bool {
	for _, b := range input {
		if b >= 0x20 && b != 0x7f {
			return false
		}
	}
	return true
}
