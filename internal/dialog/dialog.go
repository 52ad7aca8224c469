//go:build unix

// Package dialog runs the prompt side of the credential conversation. It
// supervises the verifier backend as a process group of its own, relays the
// backend's messages to a renderer and the user's responses back, and trusts
// nothing but the backend's exit status for the authentication outcome.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vigil-lock/vigil/internal/authproto"
	"github.com/vigil-lock/vigil/internal/group"
	"github.com/vigil-lock/vigil/internal/secbuf"
)

// ErrCancelled is returned by a Renderer when the user abandoned the prompt.
var ErrCancelled = errors.New("dialog: prompt cancelled")

// Renderer displays conversation messages and collects responses. Prompt
// must wipe nothing: the returned buffer is owned and wiped by Run.
type Renderer interface {
	Info(msg string)
	Error(msg string)
	Prompt(ctx context.Context, msg string, hidden bool) (*secbuf.Buffer, error)
}

// Config describes the verifier backend to converse with.
type Config struct {
	// Backend is the verifier command. It is spawned with the
	// conversation on its stdin/stdout and nothing else.
	Backend []string
	// Holder is the group placeholder command for the backend's group.
	Holder []string

	// Warn receives non-fatal conversation problems. Optional.
	Warn func(msg string, err error)
}

func (c Config) warn(msg string, err error) {
	if c.Warn != nil {
		c.Warn(msg, err)
	}
}

// Run drives one complete authentication conversation and reports whether
// the backend verified the credentials (exit status 0). Every payload that
// may carry credential material is wiped before Run moves on, on success
// and error paths alike.
func Run(ctx context.Context, cfg Config, r Renderer, n *group.Notifier) (bool, error) {
	if len(cfg.Backend) == 0 {
		return false, errors.New("dialog: no backend command")
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return false, fmt.Errorf("dialog: backend stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return false, fmt.Errorf("dialog: backend stdout pipe: %w", err)
	}

	tracked, err := group.Spawn(group.ChildSpec{
		Name:    "verifier",
		Command: cfg.Backend,
		Stdin:   inR,
		Stdout:  outW,
		Stderr:  os.Stderr,
		Holder:  cfg.Holder,
	})
	_ = inR.Close()
	_ = outW.Close()
	if err != nil && !errors.Is(err, group.ErrHolder) {
		_ = inW.Close()
		_ = outR.Close()
		return false, fmt.Errorf("dialog: start verifier: %w", err)
	}
	if err != nil {
		cfg.warn("verifier group holder", err)
	}

	converse(ctx, cfg, r, inW, outR)

	// No more responses from us either way; let the backend see EOF.
	_ = inW.Close()
	_ = outR.Close()

	st, err := tracked.Wait(ctx, n, true, false)
	if err != nil {
		return false, fmt.Errorf("dialog: wait verifier: %w", err)
	}
	return st.Reason == group.ReasonExited && st.Code == 0, nil
}

// converse relays messages until the backend stops talking. Protocol
// violations end the conversation; they never crash it, and they cannot
// fake a success because only the exit status decides that.
func converse(ctx context.Context, cfg Config, r Renderer, backendIn *os.File, backendOut *os.File) {
	for {
		typ, payload, err := authproto.ReadMessage(backendOut, true)
		if errors.Is(err, authproto.ErrNoMessage) {
			return
		}
		if err != nil {
			cfg.warn("verifier message rejected", err)
			return
		}

		switch typ {
		case authproto.TypeInfo:
			r.Info(string(payload.Bytes()))
			payload.Wipe()
		case authproto.TypeError:
			r.Error(string(payload.Bytes()))
			payload.Wipe()
		case authproto.TypePromptVisible, authproto.TypePromptHidden:
			hidden := typ == authproto.TypePromptHidden
			msg := string(payload.Bytes())
			payload.Wipe()

			resp, err := r.Prompt(ctx, msg, hidden)
			if err != nil {
				if !errors.Is(err, ErrCancelled) {
					cfg.warn("prompt failed", err)
				}
				if werr := authproto.WriteMessage(backendIn, authproto.TypeCancelled, nil); werr != nil {
					cfg.warn("send cancel", werr)
				}
				continue
			}

			respType := authproto.TypeResponseVisible
			if hidden {
				respType = authproto.TypeResponseHidden
			}
			if werr := authproto.WriteMessage(backendIn, respType, resp.Bytes()); werr != nil {
				cfg.warn("send response", werr)
			}
			resp.Wipe()
		default:
			// A response-direction type from the backend is a
			// violation; drop it and stop listening.
			payload.Wipe()
			cfg.warn("unexpected message direction", fmt.Errorf("type %q", byte(typ)))
			return
		}
	}
}
