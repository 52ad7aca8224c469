//go:build unix

package group

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// StopSignal is the signal used for controlled teardown of a child group.
// A child seen dying from it after a requested stop is not an anomaly.
const StopSignal = unix.SIGTERM

// ErrNotTracked reports a wait on a slot that has no live process. Callers
// treat it as a recoverable anomaly, not a fatal condition.
var ErrNotTracked = errors.New("group: no tracked process")

// ErrHolder reports that the child started but its group holder did not.
// The child is usable; the group id merely loses its early-death guard.
var ErrHolder = errors.New("group: holder process not started")

// Reason classifies how a wait observed the tracked process.
type Reason int

const (
	// ReasonAlive means the process has not terminated yet.
	ReasonAlive Reason = iota
	// ReasonExited means the process terminated with an exit code.
	ReasonExited
	// ReasonSignaled means the process was terminated by a signal.
	ReasonSignaled
	// ReasonAlreadyDead means the process was gone before any status
	// could be collected.
	ReasonAlreadyDead
)

// Status is the outcome of one wait check.
type Status struct {
	Reason Reason
	Code   int         // exit code, valid for ReasonExited
	Signal unix.Signal // terminating signal, valid for ReasonSignaled

	// Expected marks a signal death that followed a requested stop with
	// the controller's own stop signal; it is routine, not abnormal.
	Expected bool
}

// Terminated reports whether the status describes a process that is gone.
func (s Status) Terminated() bool {
	return s.Reason != ReasonAlive
}

// Tracked is one supervised process slot. A zero Pid means the slot is
// empty. All fields are owned by the supervising goroutine; nothing in this
// package mutates them from signal context.
type Tracked struct {
	Name      string
	Pid       int
	HolderPid int
}

// Running reports whether the slot currently tracks a live process.
func (t *Tracked) Running() bool {
	return t.Pid != 0
}

// ChildSpec describes one child to spawn as a fresh group leader.
type ChildSpec struct {
	Name    string
	Command []string
	Env     []string // appended to the parent environment
	Stdin   *os.File
	Stdout  *os.File
	Stderr  *os.File

	// Holder names the inert placeholder command started inside the new
	// group to keep its id allocated. Empty disables the guard.
	Holder []string
}

// Spawn starts the child as the leader of a new process group and then
// plants the holder into that group. The kernel applies Setpgid between fork
// and exec, so there is no window in which a group kill could miss the
// child. A holder start failure is reported as ErrHolder with a usable
// Tracked; any other error means nothing is running.
func Spawn(spec ChildSpec) (*Tracked, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("group: spawn %s: empty command", spec.Name)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("group: start %s: %w", spec.Name, err)
	}

	tracked := &Tracked{Name: spec.Name, Pid: cmd.Process.Pid}

	if len(spec.Holder) > 0 {
		holder := exec.Command(spec.Holder[0], spec.Holder[1:]...)
		holder.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: tracked.Pid}
		if err := holder.Start(); err != nil {
			// The leader may already be gone, taking the group with
			// it; the next wait sorts that out.
			return tracked, fmt.Errorf("%w: %v", ErrHolder, err)
		}
		tracked.HolderPid = holder.Process.Pid
	}

	return tracked, nil
}

// Kill delivers sig to the whole process group headed by pid, falling back
// to the single process when pid no longer leads a group. Signalling an
// already-dead group is success: teardown must be idempotent.
func Kill(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("group: refusing to signal pid %d", pid)
	}
	groupErr := unix.Kill(-pid, sig)
	if groupErr == nil || errors.Is(groupErr, unix.ESRCH) {
		return nil
	}
	procErr := unix.Kill(pid, sig)
	if procErr == nil || errors.Is(procErr, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("group: signal %d: group: %v; process: %w", pid, groupErr, procErr)
}

// Wait checks whether the tracked process has terminated, blocking on the
// notifier until it does when block is set. Blocking and non-blocking
// callers share the same WNOHANG check; the blocking form sleeps on
// child-state-change wakeups instead of polling. Interrupted waits are
// retried internally. When an exit is observed the slot is cleared, the
// remainder of the group is killed (unless the caller already did) and the
// holder is reaped.
func (t *Tracked) Wait(ctx context.Context, n *Notifier, block, alreadyKilled bool) (Status, error) {
	if t.Pid == 0 {
		return Status{Reason: ReasonAlreadyDead}, ErrNotTracked
	}

	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(t.Pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			// Gone with no status to collect.
			t.finish(alreadyKilled)
			return Status{Reason: ReasonAlreadyDead}, nil
		case err != nil:
			return Status{Reason: ReasonAlive}, fmt.Errorf("group: wait %s (pid %d): %w", t.Name, t.Pid, err)
		}

		if wpid == 0 {
			if !block {
				return Status{Reason: ReasonAlive}, nil
			}
			select {
			case <-n.wake():
			case <-ctx.Done():
				return Status{Reason: ReasonAlive}, ctx.Err()
			}
			continue
		}

		var st Status
		switch {
		case ws.Exited():
			st = Status{Reason: ReasonExited, Code: ws.ExitStatus()}
		case ws.Signaled():
			sig := ws.Signal()
			st = Status{
				Reason:   ReasonSignaled,
				Signal:   sig,
				Expected: alreadyKilled && sig == StopSignal,
			}
		default:
			// Stop/continue notifications are not requested; anything
			// else is spurious, check again.
			continue
		}
		t.finish(alreadyKilled)
		return st, nil
	}
}

// finish clears the slot, sweeps group stragglers and reaps the holder.
func (t *Tracked) finish(alreadyKilled bool) {
	pid := t.Pid
	t.Pid = 0
	if pid > 0 && !alreadyKilled {
		_ = Kill(pid, StopSignal)
	}
	t.reapHolder()
}

// reapHolder forcibly ends the group placeholder and collects it. The holder
// ignores softer signals, so SIGKILL is the only signal that bounds the wait.
func (t *Tracked) reapHolder() {
	holder := t.HolderPid
	t.HolderPid = 0
	if holder <= 0 {
		return
	}
	_ = unix.Kill(holder, unix.SIGKILL)
	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(holder, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return
	}
}
