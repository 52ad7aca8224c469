//go:build unix

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vigil-lock/vigil/internal/group"
)

// MaxSavers bounds the number of independently supervised saver slots.
const MaxSavers = 16

// ErrSlotRange reports a saver index outside the configured slots. It is a
// recoverable caller error; the operation is a no-op.
var ErrSlotRange = errors.New("session: saver slot out of range")

// SaverConfig configures the saver children, one per display surface.
type SaverConfig struct {
	// Command starts one saver child.
	Command []string
	// Holder is the group placeholder command.
	Holder []string
	// Surfaces lists the display-surface identities, one slot each.
	// At most MaxSavers entries are used.
	Surfaces []string

	// ClearSurface, when set, runs after a saver's confirmed termination
	// so its drawing never lingers. Failures are reported, not fatal.
	ClearSurface func(index int) error
}

// SaverController supervises N saver slots with the same per-slot state
// machine as the auth slot, except that its stop path blocks until the
// child is confirmed dead.
type SaverController struct {
	cfg    SaverConfig
	run    runner
	events chan<- Event

	slots []group.Tracked
}

// NewSaverController builds a controller around real process groups.
func NewSaverController(cfg SaverConfig, n *group.Notifier, events chan<- Event) *SaverController {
	return newSaverController(cfg, newGroupRunner(n), events)
}

func newSaverController(cfg SaverConfig, run runner, events chan<- Event) *SaverController {
	count := len(cfg.Surfaces)
	if count > MaxSavers {
		count = MaxSavers
	}
	return &SaverController{
		cfg:    cfg,
		run:    run,
		events: events,
		slots:  make([]group.Tracked, count),
	}
}

// SlotCount reports the number of supervised saver slots.
func (s *SaverController) SlotCount() int {
	return len(s.slots)
}

// Running reports whether slot index currently tracks a live child.
func (s *SaverController) Running(index int) bool {
	if index < 0 || index >= len(s.slots) {
		return false
	}
	return s.slots[index].Running()
}

// Watch reconciles one slot with the desired state: start the child when
// wanted and absent, stop and reap it when unwanted, and observe crashes so
// the next call can respawn. Stopping blocks until the exit is confirmed.
func (s *SaverController) Watch(ctx context.Context, index int, wantRunning bool) error {
	if index < 0 || index >= len(s.slots) {
		err := fmt.Errorf("%w: %d of %d", ErrSlotRange, index, len(s.slots))
		sendEvent(s.events, EventTypeAnomaly, index, "", "saver slot range", 0, err)
		return err
	}
	slot := &s.slots[index]

	if slot.Running() {
		if wantRunning {
			st, err := s.run.Wait(ctx, slot, false, false)
			if err != nil && !errors.Is(err, group.ErrNotTracked) {
				sendEvent(s.events, EventTypeAnomaly, index, "", "saver status check failed", 0, err)
			}
			if st.Terminated() {
				s.clear(index)
				signal := 0
				if st.Reason == group.ReasonSignaled {
					signal = -int(st.Signal)
				}
				// Any exit, even code 0, just means the slot needs
				// attention; the respawn below handles it.
				sendEvent(s.events, EventTypeSaverCrashed, index, "", "saver child exited", signal, nil)
			}
		} else {
			s.stop(ctx, index, slot)
		}
	}

	if wantRunning && !slot.Running() {
		s.spawn(index, slot)
	}
	return nil
}

// StopAll tears down every running saver slot.
func (s *SaverController) StopAll(ctx context.Context) {
	for i := range s.slots {
		_ = s.Watch(ctx, i, false)
	}
}

func (s *SaverController) stop(ctx context.Context, index int, slot *group.Tracked) {
	if err := s.run.Kill(slot.Pid, group.StopSignal); err != nil {
		sendEvent(s.events, EventTypeAnomaly, index, "", "saver kill", 0, err)
	}
	if _, err := s.run.Wait(ctx, slot, true, true); err != nil {
		sendEvent(s.events, EventTypeAnomaly, index, "", "saver reap", 0, err)
		// The kill was already delivered; do not leave remnants on the
		// surface just because the reap was interrupted.
		s.clear(index)
		return
	}
	s.clear(index)
	sendEvent(s.events, EventTypeSaverStopped, index, "", "saver child stopped", 0, nil)
}

func (s *SaverController) spawn(index int, slot *group.Tracked) {
	tracked, err := s.run.Spawn(group.ChildSpec{
		Name:    "saver-" + strconv.Itoa(index),
		Command: s.cfg.Command,
		Env: []string{
			EnvSurface + "=" + s.cfg.Surfaces[index],
			EnvSaverSlot + "=" + strconv.Itoa(index),
		},
		Holder: s.cfg.Holder,
	})
	if err != nil && !errors.Is(err, group.ErrHolder) {
		// Fork or pipe exhaustion: abort this tick, retry on the next.
		sendEvent(s.events, EventTypeError, index, "", "saver child start", 0, err)
		return
	}
	if err != nil {
		sendEvent(s.events, EventTypeAnomaly, index, "", "saver group holder", 0, err)
	}
	*slot = *tracked
	sendEvent(s.events, EventTypeSaverStarting, index, "", "saver child started", 0, nil)
}

func (s *SaverController) clear(index int) {
	if s.cfg.ClearSurface == nil {
		return
	}
	if err := s.cfg.ClearSurface(index); err != nil {
		sendEvent(s.events, EventTypeAnomaly, index, "", "clear saver surface", 0, err)
	}
}
