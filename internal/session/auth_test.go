//go:build unix

package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func newTestAuth(cfg AuthConfig) (*AuthController, *fakeRunner, chan Event) {
	run := newFakeRunner()
	events := make(chan Event, 64)
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"/bin/false"}
	}
	return newAuthController(cfg, run, events), run, events
}

func TestWatchWithoutWantDoesNotSpawn(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{})
	defer run.close()

	if auth.Watch(context.Background(), false, []byte("k")) {
		t.Fatal("unexpected unlock")
	}
	if len(run.spawned) != 0 {
		t.Fatalf("spawned %d children without wantAuth", len(run.spawned))
	}
	if auth.State() != AuthIdle {
		t.Fatalf("expected idle, got %v", auth.State())
	}
}

func TestAtMostOneAuthChild(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, nil)
	auth.Watch(ctx, true, nil)
	auth.Watch(ctx, true, nil)

	if len(run.spawned) != 1 {
		t.Fatalf("expected a single spawn while running, got %d", len(run.spawned))
	}
	if auth.State() != AuthRunning {
		t.Fatalf("expected running, got %v", auth.State())
	}
}

func TestFirstKeystrokeDiscardedByDefault(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, []byte("k"))
	if got := run.forwarded(t, 0); len(got) != 0 {
		t.Fatalf("wake keystroke leaked into the child: %q", got)
	}

	auth.Watch(ctx, true, []byte("x"))
	if got := run.forwarded(t, 0); !bytes.Equal(got, []byte("x")) {
		t.Fatalf("second keystroke not forwarded, got %q", got)
	}
}

func TestFirstKeystrokeForwardedWhenEnabled(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{ForwardFirstKeystroke: true})
	defer run.close()

	auth.Watch(context.Background(), true, []byte("k"))
	if got := run.forwarded(t, 0); !bytes.Equal(got, []byte("k")) {
		t.Fatalf("printable wake keystroke should be forwarded, got %q", got)
	}
}

func TestFirstControlKeystrokeNeverForwarded(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{ForwardFirstKeystroke: true})
	defer run.close()

	auth.Watch(context.Background(), true, []byte{0x1b})
	if got := run.forwarded(t, 0); len(got) != 0 {
		t.Fatalf("control wake keystroke leaked: %q", got)
	}
}

func TestSuccessExitUnlocks(t *testing.T) {
	cleared := false
	auth, run, events := newTestAuth(AuthConfig{ClearSurface: func() error {
		cleared = true
		return nil
	}})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, nil)
	run.exit(run.lastPid(), 0)

	if !auth.Watch(ctx, true, nil) {
		t.Fatal("expected unlock on exit status 0")
	}
	if auth.State() != AuthSucceeded {
		t.Fatalf("expected succeeded, got %v", auth.State())
	}
	if !cleared {
		t.Fatal("prompt surface not cleared")
	}
	if !hasEvent(drainEvents(events), EventTypeAuthSucceeded) {
		t.Fatal("missing auth_succeeded event")
	}
}

func TestPlainFailureIsSilentAndReturnsToIdle(t *testing.T) {
	auth, run, events := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, nil)
	run.exit(run.lastPid(), 1)

	if auth.Watch(ctx, true, nil) {
		t.Fatal("wrong password must not unlock")
	}
	got := drainEvents(events)
	if hasEvent(got, EventTypeAuthSignaled) {
		t.Fatal("plain exit logged as signal death")
	}
	if hasEvent(got, EventTypeAuthSucceeded) {
		t.Fatal("failure reported as success")
	}
}

func TestSignalDeathIsLogged(t *testing.T) {
	auth, run, events := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, nil)
	run.signaled(run.lastPid(), 9)

	if auth.Watch(ctx, false, nil) {
		t.Fatal("signal death must not unlock")
	}
	got := drainEvents(events)
	if !hasEvent(got, EventTypeAuthSignaled) {
		t.Fatal("missing auth_signaled event")
	}
	for _, evt := range got {
		if evt.Type == EventTypeAuthSignaled && evt.Signal != -9 {
			t.Fatalf("expected signal -9, got %d", evt.Signal)
		}
	}
}

func TestAlreadyDeadForcesIdle(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, nil)
	run.vanished(run.lastPid())

	if auth.Watch(ctx, false, nil) {
		t.Fatal("already-dead must not unlock")
	}
	if auth.State() != AuthIdle {
		t.Fatalf("expected idle after already-dead, got %v", auth.State())
	}
}

func TestSpawnFailureRetriesNextTick(t *testing.T) {
	auth, run, events := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	run.spawnErr = errors.New("fork: resource temporarily unavailable")
	if auth.Watch(ctx, true, nil) {
		t.Fatal("unexpected unlock")
	}
	if auth.State() != AuthIdle {
		t.Fatalf("failed spawn should leave slot idle, got %v", auth.State())
	}
	if !hasEvent(drainEvents(events), EventTypeError) {
		t.Fatal("spawn failure not reported")
	}

	run.spawnErr = nil
	auth.Watch(ctx, true, nil)
	if auth.State() != AuthRunning {
		t.Fatalf("expected running after retry, got %v", auth.State())
	}
}

func TestShutdownStopsRunningChild(t *testing.T) {
	auth, run, _ := newTestAuth(AuthConfig{})
	defer run.close()
	ctx := context.Background()

	auth.Watch(ctx, true, nil)
	pid := run.lastPid()

	auth.Shutdown(ctx)
	if auth.State() != AuthIdle {
		t.Fatalf("expected idle after shutdown, got %v", auth.State())
	}
	if len(run.killed) == 0 || run.killed[0].pid != pid {
		t.Fatalf("shutdown did not kill pid %d: %+v", pid, run.killed)
	}
}
