//go:build unix

package session

import (
	"context"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/vigil-lock/vigil/internal/group"
)

type killCall struct {
	pid int
	sig unix.Signal
}

// fakeRunner drives the controllers without real processes. Terminal
// statuses are queued per pid; an empty queue reports the child alive for
// non-blocking checks and simulates a stop-induced death for blocking ones.
type fakeRunner struct {
	pidSeq   int
	spawnErr error
	blockErr error // returned once from the next blocking Wait
	spawned  []group.ChildSpec
	stdins   []int // dupped non-blocking read ends of auth input pipes
	statuses map[int][]group.Status
	killed   []killCall
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{statuses: make(map[int][]group.Status)}
}

func (f *fakeRunner) Spawn(spec group.ChildSpec) (*group.Tracked, error) {
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.pidSeq++
	pid := 1000 + f.pidSeq
	f.spawned = append(f.spawned, spec)

	stdin := -1
	if spec.Stdin != nil {
		if fd, err := unix.Dup(int(spec.Stdin.Fd())); err == nil {
			_ = unix.SetNonblock(fd, true)
			stdin = fd
		}
	}
	f.stdins = append(f.stdins, stdin)

	return &group.Tracked{Name: spec.Name, Pid: pid}, nil
}

func (f *fakeRunner) Wait(ctx context.Context, t *group.Tracked, block, alreadyKilled bool) (group.Status, error) {
	if t.Pid == 0 {
		return group.Status{Reason: group.ReasonAlreadyDead}, group.ErrNotTracked
	}
	if block && f.blockErr != nil {
		err := f.blockErr
		f.blockErr = nil
		return group.Status{Reason: group.ReasonAlive}, err
	}
	queue := f.statuses[t.Pid]
	if len(queue) == 0 {
		if block {
			t.Pid = 0
			t.HolderPid = 0
			return group.Status{
				Reason:   group.ReasonSignaled,
				Signal:   group.StopSignal,
				Expected: alreadyKilled,
			}, nil
		}
		return group.Status{Reason: group.ReasonAlive}, nil
	}
	st := queue[0]
	f.statuses[t.Pid] = queue[1:]
	if st.Terminated() {
		t.Pid = 0
		t.HolderPid = 0
	}
	return st, nil
}

func (f *fakeRunner) Kill(pid int, sig unix.Signal) error {
	f.killed = append(f.killed, killCall{pid: pid, sig: sig})
	return nil
}

func (f *fakeRunner) lastPid() int {
	return 1000 + f.pidSeq
}

func (f *fakeRunner) exit(pid, code int) {
	f.statuses[pid] = append(f.statuses[pid], group.Status{Reason: group.ReasonExited, Code: code})
}

func (f *fakeRunner) signaled(pid int, sig unix.Signal) {
	f.statuses[pid] = append(f.statuses[pid], group.Status{Reason: group.ReasonSignaled, Signal: sig})
}

func (f *fakeRunner) vanished(pid int) {
	f.statuses[pid] = append(f.statuses[pid], group.Status{Reason: group.ReasonAlreadyDead})
}

// forwarded drains whatever the auth controller wrote to child i's stdin.
func (f *fakeRunner) forwarded(t *testing.T, i int) []byte {
	t.Helper()
	if i >= len(f.stdins) || f.stdins[i] < 0 {
		t.Fatalf("no stdin captured for child %d", i)
	}
	buf := make([]byte, 256)
	n, err := unix.Read(f.stdins[i], buf)
	if err != nil || n <= 0 {
		return nil
	}
	return buf[:n]
}

func (f *fakeRunner) close() {
	for _, fd := range f.stdins {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
	}
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, t EventType) bool {
	for _, evt := range events {
		if evt.Type == t {
			return true
		}
	}
	return false
}
