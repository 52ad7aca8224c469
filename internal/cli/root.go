//go:build unix

// Package cli implements the vigil command tree. The lock command runs the
// supervisor; the hidden subcommands are the child processes it spawns.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vigil-lock/vigil/internal/config"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "vigil",
		Short: "Terminal session locker",
	}

	root.PersistentFlags().
		StringVarP(&configPath, "config", "f", defaultConfigPath(), "Path to configuration file")

	root.AddCommand(newLockCmd(&configPath))
	root.AddCommand(newHoldCmd())
	root.AddCommand(newAuthCmd(&configPath))
	root.AddCommand(newVerifyCmd(&configPath))
	root.AddCommand(newSaverCmd())
	root.AddCommand(newHashpwCmd(&configPath))
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vigil", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "vigil", "config.yaml")
}

func defaultPasswordPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "passwd")
}

// loadConfig falls back to defaults when the file does not exist, so vigil
// locks out of the box.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}
