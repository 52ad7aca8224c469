//go:build unix

package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/vigil-lock/vigil/internal/authproto"
)

// newVerifyCmd is the built-in verifier backend. It speaks the credential
// protocol on stdin/stdout and compares the response against the stored
// bcrypt hash. The exit status is the only authoritative outcome.
func newVerifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:    "verify",
		Short:  "Verify credentials against the password file (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			path := cfg.Auth.PasswordFile
			if path == "" {
				path = defaultPasswordPath(*configPath)
			}
			os.Exit(runVerify(path, os.Stdin, os.Stdout))
			return nil
		},
	}
}

func runVerify(passwordFile string, in io.Reader, out io.Writer) int {
	hash, err := os.ReadFile(passwordFile)
	if err != nil {
		_ = authproto.WriteMessage(out, authproto.TypeError,
			[]byte("no password set; run vigil hashpw"))
		return 1
	}
	hash = bytes.TrimSpace(hash)

	if err := authproto.WriteMessage(out, authproto.TypePromptHidden, []byte("password:")); err != nil {
		return 1
	}

	typ, payload, err := authproto.ReadMessage(in, true)
	if err != nil {
		return 1
	}
	defer payload.Wipe()

	if typ != authproto.TypeResponseHidden {
		// Cancelled, or a frontend that does not follow the protocol.
		return 1
	}
	if !payload.Pinned() {
		fmt.Fprintln(os.Stderr, "warn: response buffer not pinned")
	}

	if bcrypt.CompareHashAndPassword(hash, payload.Bytes()) != nil {
		payload.Wipe()
		_ = authproto.WriteMessage(out, authproto.TypeError, []byte("incorrect password"))
		return 1
	}
	payload.Wipe()
	return 0
}
