//go:build unix

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// newHashpwCmd writes the bcrypt hash the built-in verifier checks against.
func newHashpwCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hashpw",
		Short: "Set the unlock password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			path := cfg.Auth.PasswordFile
			if path == "" {
				path = defaultPasswordPath(*configPath)
			}
			return runHashpw(path)
		},
	}
}

func runHashpw(path string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("hashpw needs a terminal")
	}

	fmt.Fprint(os.Stderr, "New password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zero(first)

	fmt.Fprint(os.Stderr, "Retype password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zero(second)

	if len(first) == 0 {
		return errors.New("empty password refused")
	}
	if !bytes.Equal(first, second) {
		return errors.New("passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword(first, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create password directory: %w", err)
	}
	if err := os.WriteFile(path, append(hash, '\n'), 0o600); err != nil {
		return fmt.Errorf("write password file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Password written to %s\n", path)
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
