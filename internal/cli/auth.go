//go:build unix

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigil-lock/vigil/internal/dialog"
	"github.com/vigil-lock/vigil/internal/group"
	"github.com/vigil-lock/vigil/internal/secbuf"
	"github.com/vigil-lock/vigil/internal/session"
)

// maxResponse bounds a single typed response. Anything longer is not a
// password a human typed.
const maxResponse = 256

// newAuthCmd is the prompt-side authentication child. Keystrokes arrive on
// stdin from the supervisor; the prompt is drawn on the exported surface. The
// process exit status is the authentication outcome.
func newAuthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:    "auth",
		Short:  "Run one authentication conversation (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve own binary: %w", err)
			}
			backend := cfg.Auth.Verifier
			if len(backend) == 0 {
				backend = []string{exe, "verify", "--config", *configPath}
			}

			surface, err := openSurface()
			if err != nil {
				return err
			}
			defer surface.Close()

			notifier := group.NewNotifier()
			defer notifier.Stop()

			renderer := &termRenderer{in: os.Stdin, out: surface}
			ok, err := dialog.Run(cmd.Context(), dialog.Config{
				Backend: backend,
				Holder:  []string{exe, "hold"},
				Warn: func(msg string, err error) {
					fmt.Fprintf(os.Stderr, "warn: %s: %v\n", msg, err)
				},
			}, renderer, notifier)
			if err != nil {
				return err
			}
			if !ok {
				os.Exit(1)
			}
			return nil
		},
	}
}

func openSurface() (*os.File, error) {
	path := os.Getenv(session.EnvSurface)
	if path == "" {
		path = "/dev/tty"
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open surface: %w", err)
	}
	return f, nil
}

// termRenderer draws the conversation on a terminal surface. The input
// stream delivers raw, unechoed keystrokes; echo is the renderer's job.
type termRenderer struct {
	in  io.Reader
	out io.Writer
}

func (r *termRenderer) Info(msg string) {
	fmt.Fprintf(r.out, "\r\n%s\r\n", msg)
}

func (r *termRenderer) Error(msg string) {
	fmt.Fprintf(r.out, "\r\n! %s\r\n", msg)
}

// Prompt collects one line of input. Hidden responses echo asterisks and are
// accumulated in pinned memory. Escape or ^C cancels; EOF on the keystroke
// stream means the supervisor tore the session down.
func (r *termRenderer) Prompt(ctx context.Context, msg string, hidden bool) (*secbuf.Buffer, error) {
	fmt.Fprintf(r.out, "\r\n%s ", msg)

	acc, err := secbuf.New(maxResponse, hidden)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: response buffer not pinned: %v\n", err)
	}

	n := 0
	one := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			acc.Wipe()
			return nil, ctx.Err()
		}
		rn, err := r.in.Read(one)
		if rn == 0 {
			acc.Wipe()
			if err == nil || errors.Is(err, io.EOF) {
				return nil, dialog.ErrCancelled
			}
			return nil, err
		}

		switch c := one[0]; {
		case c == '\r' || c == '\n':
			fmt.Fprint(r.out, "\r\n")
			out, err := secbuf.New(n, hidden)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warn: response buffer not pinned: %v\n", err)
			}
			copy(out.Bytes(), acc.Bytes()[:n])
			acc.Wipe()
			return out, nil
		case c == 0x1b || c == 0x03: // escape, ^C
			acc.Wipe()
			return nil, dialog.ErrCancelled
		case c == 0x7f || c == 0x08: // backspace
			if n > 0 {
				n--
				acc.Bytes()[n] = 0
				fmt.Fprint(r.out, "\b \b")
			}
		case c == 0x15: // ^U, kill line
			for i := 0; i < n; i++ {
				acc.Bytes()[i] = 0
				fmt.Fprint(r.out, "\b \b")
			}
			n = 0
		case c >= 0x20 && c != 0x7f:
			if n < acc.Len() {
				acc.Bytes()[n] = c
				n++
				if hidden {
					fmt.Fprint(r.out, "*")
				} else {
					fmt.Fprintf(r.out, "%c", c)
				}
			}
		}
	}
}
