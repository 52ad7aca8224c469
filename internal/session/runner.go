//go:build unix

package session

import (
	"context"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vigil-lock/vigil/internal/group"
)

// runner abstracts process-group control so the controllers can be driven
// with fakes in tests.
type runner interface {
	Spawn(spec group.ChildSpec) (*group.Tracked, error)
	Wait(ctx context.Context, t *group.Tracked, block, alreadyKilled bool) (group.Status, error)
	Kill(pid int, sig unix.Signal) error
}

// groupRunner is the real runner backed by package group. All waits share
// one SIGCHLD notifier owned by the caller.
type groupRunner struct {
	notifier *group.Notifier
}

// NewRunner wires the controllers to real process groups.
func newGroupRunner(n *group.Notifier) runner {
	return &groupRunner{notifier: n}
}

func (r *groupRunner) Spawn(spec group.ChildSpec) (*group.Tracked, error) {
	return group.Spawn(spec)
}

func (r *groupRunner) Wait(ctx context.Context, t *group.Tracked, block, alreadyKilled bool) (group.Status, error) {
	return t.Wait(ctx, r.notifier, block, alreadyKilled)
}

func (r *groupRunner) Kill(pid int, sig unix.Signal) error {
	return group.Kill(pid, sig)
}

// setNonblock switches the auth input pipe to non-blocking writes so a full
// pipe costs a dropped keystroke instead of a stalled decision loop.
func setNonblock(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}
