//go:build unix

package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigil-lock/vigil/internal/session"
)

// newSaverCmd is the built-in saver child: a clock redrawn once a second on
// the exported surface. It runs until the supervisor kills its group.
func newSaverCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "saver",
		Short:  "Draw the built-in screen saver (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, err := openSurface()
			if err != nil {
				return err
			}
			defer surface.Close()

			slot, _ := strconv.Atoi(os.Getenv(session.EnvSaverSlot))

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				now := time.Now().Format("15:04:05")
				fmt.Fprintf(surface, "\x1b[2J\x1b[H\r\n\r\n   %s   [locked:%d]\r\n", now, slot)
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}
