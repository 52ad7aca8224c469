//go:build unix

package cli

import (
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// newHoldCmd is the inert process-group placeholder. It keeps the group id
// alive after the leader dies and does nothing until the supervisor kills
// the whole group.
func newHoldCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "hold",
		Short:  "Keep a child process group alive (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stray user signals must not take the group id with them.
			signal.Ignore(unix.SIGUSR1, unix.SIGUSR2, unix.SIGHUP)
			<-cmd.Context().Done()
			return nil
		},
	}
}
