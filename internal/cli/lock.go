//go:build unix

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	httpapi "github.com/vigil-lock/vigil/internal/api/http"
	"github.com/vigil-lock/vigil/internal/cliutil"
	"github.com/vigil-lock/vigil/internal/config"
	"github.com/vigil-lock/vigil/internal/group"
	"github.com/vigil-lock/vigil/internal/metrics"
	"github.com/vigil-lock/vigil/internal/session"
)

func newLockCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Lock the session until authentication succeeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runLock(cmd.Context(), cfg, *configPath)
		},
	}
}

func runLock(ctx context.Context, cfg *config.Config, configPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own binary: %w", err)
	}

	holder := []string{exe, "hold"}
	authCmd := cfg.Auth.Command
	if len(authCmd) == 0 {
		authCmd = []string{exe, "auth", "--config", configPath}
	}
	saverCmd := cfg.Saver.Command
	if len(saverCmd) == 0 {
		saverCmd = []string{exe, "saver"}
	}

	notifier := group.NewNotifier()
	defer notifier.Stop()

	events := make(chan session.Event, 256)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		enc := json.NewEncoder(os.Stderr)
		for evt := range events {
			applyMetrics(evt)
			cliutil.EncodeLogEvent(enc, os.Stderr, evt)
		}
	}()
	defer func() {
		close(events)
		<-consumerDone
	}()

	auth := session.NewAuthController(session.AuthConfig{
		Command:               authCmd,
		Holder:                holder,
		Surface:               cfg.Surfaces[0],
		ForwardFirstKeystroke: cfg.Auth.ForwardFirstKeystroke,
		ClearSurface:          func() error { return clearSurface(cfg.Surfaces[0]) },
	}, notifier, events)

	savers := session.NewSaverController(session.SaverConfig{
		Command:      saverCmd,
		Holder:       holder,
		Surfaces:     cfg.Surfaces,
		ClearSurface: func(i int) error { return clearSurface(cfg.Surfaces[i]) },
	}, notifier, events)

	orc := session.NewOrchestrator(auth, savers)
	defer orc.Shutdown(context.Background())

	metrics.SetLocked(true)
	defer metrics.SetLocked(false)

	if cfg.API.Listen != "" {
		srv, err := httpapi.NewServer(httpapi.Config{Addr: cfg.API.Listen, Source: orc})
		if err != nil {
			return fmt.Errorf("status api: %w", err)
		}
		go func() {
			if err := srv.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "error: status api: %v\n", err)
			}
		}()
	}

	tty, restore, err := openInput()
	if err != nil {
		return err
	}
	defer restore()

	inputCh := readKeystrokes(tty)

	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, unix.SIGUSR2)
	defer signal.Stop(toggle)

	ticker := time.NewTicker(cfg.Tick.Duration)
	defer ticker.Stop()

	saversDisabled := false
	for {
		mode := session.ModeNormal
		var input []byte

		select {
		case <-ctx.Done():
			return errors.New("terminated before unlock")
		case <-toggle:
			saversDisabled = !saversDisabled
		case batch, ok := <-inputCh:
			if !ok {
				// Terminal read failed; keep supervising on the tick.
				inputCh = nil
				continue
			}
			input = batch
			mode = session.ModeForceAuth
		case <-ticker.C:
		}

		if mode != session.ModeForceAuth && saversDisabled {
			mode = session.ModeSaverDisabled
		}
		if orc.Decide(ctx, mode, input) {
			return nil
		}
	}
}

// openInput puts the controlling terminal into raw mode so keystrokes arrive
// unbuffered and unechoed. The restore function must run before exit.
func openInput() (*os.File, func(), error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open controlling terminal: %w", err)
	}
	state, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		_ = tty.Close()
		return nil, nil, fmt.Errorf("raw mode: %w", err)
	}
	restore := func() {
		_ = term.Restore(int(tty.Fd()), state)
		_ = tty.Close()
	}
	return tty, restore, nil
}

// readKeystrokes forwards raw input batches until the terminal read fails.
func readKeystrokes(tty *os.File) <-chan []byte {
	ch := make(chan []byte, 8)
	go func() {
		defer close(ch)
		buf := make([]byte, 64)
		for {
			n, err := tty.Read(buf)
			if n > 0 {
				batch := make([]byte, n)
				copy(batch, buf[:n])
				ch <- batch
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func applyMetrics(evt session.Event) {
	switch evt.Type {
	case session.EventTypeAuthSucceeded:
		metrics.IncAuthAttempt(metrics.ResultSuccess)
	case session.EventTypeAuthFailed:
		metrics.IncAuthAttempt(metrics.ResultFailure)
	case session.EventTypeAuthSignaled:
		metrics.IncAuthAttempt(metrics.ResultSignaled)
	case session.EventTypeSaverCrashed:
		metrics.IncSaverRestart(evt.Slot)
	case session.EventTypeInputDropped:
		metrics.IncInputDropped()
	}
}

// clearSurface wipes a display surface with an ANSI erase sequence so child
// output never lingers after the child is gone.
func clearSurface(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("\x1b[2J\x1b[H")
	return err
}
