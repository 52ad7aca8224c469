//go:build unix

package group

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Notifier turns SIGCHLD deliveries into edge-triggered wakeups on a
// channel. Signal handlers never touch tracked state; a blocked Wait simply
// wakes up here and re-runs its check on the supervising goroutine.
type Notifier struct {
	ch chan os.Signal
}

// NewNotifier subscribes to child-state-change signals. The channel holds a
// single pending wakeup; coalesced deliveries are fine because every wakeup
// triggers a full re-check.
func NewNotifier() *Notifier {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGCHLD)
	return &Notifier{ch: ch}
}

// Stop unsubscribes from signal delivery.
func (n *Notifier) Stop() {
	if n != nil {
		signal.Stop(n.ch)
	}
}

// wake exposes the wakeup channel. A nil notifier yields a channel that
// never fires, so a blocking wait without a notifier only ends on context
// cancellation.
func (n *Notifier) wake() <-chan os.Signal {
	if n == nil {
		return nil
	}
	return n.ch
}
