//go:build unix

package authproto

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/vigil-lock/vigil/internal/secbuf"
)

// Type identifies one message on the credential channel. The case coding is
// part of the wire contract: uppercase types expect a reply, lowercase types
// are terminal for their direction.
type Type byte

const (
	// Backend to frontend.
	TypeInfo          Type = 'i'
	TypeError         Type = 'e'
	TypePromptVisible Type = 'U'
	TypePromptHidden  Type = 'P'

	// Frontend to backend.
	TypeResponseVisible Type = 'u'
	TypeResponseHidden  Type = 'p'
	TypeCancelled       Type = 'x'
)

// MaxPayload bounds the declared length of a single message payload.
const MaxPayload = 65534

var (
	// ErrNoMessage reports a clean end of stream before any byte of a
	// message arrived. Only returned when the reader tolerates EOF.
	ErrNoMessage = errors.New("authproto: no message")

	ErrPayloadTooLarge   = errors.New("authproto: payload exceeds length bound")
	ErrBadType           = errors.New("authproto: unknown message type")
	ErrBadSeparator      = errors.New("authproto: missing separator after type")
	ErrBadLength         = errors.New("authproto: malformed length field")
	ErrTruncatedPayload  = errors.New("authproto: short payload read")
	ErrMissingTerminator = errors.New("authproto: missing trailing newline")
)

// Valid reports whether t is one of the defined wire types.
func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeError, TypePromptVisible, TypePromptHidden,
		TypeResponseVisible, TypeResponseHidden, TypeCancelled:
		return true
	}
	return false
}

// NeedsReply reports whether the sender expects a response message.
func (t Type) NeedsReply() bool {
	return t == TypePromptVisible || t == TypePromptHidden
}

// Secret reports whether the payload may carry credential material and must
// therefore live in pinned memory.
func (t Type) Secret() bool {
	return t == TypeResponseHidden
}

// WriteMessage frames one message onto w. A payload longer than MaxPayload is
// refused before anything is written, so an oversized message never reaches
// the peer half-framed. Short writes surface as errors from w per the
// io.Writer contract.
func WriteMessage(w io.Writer, t Type, payload []byte) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrBadType, byte(t))
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	header := make([]byte, 0, 16)
	header = append(header, byte(t), ' ')
	header = strconv.AppendInt(header, int64(len(payload)), 10)
	header = append(header, '\n')

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("authproto: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("authproto: write payload: %w", err)
		}
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("authproto: write terminator: %w", err)
	}
	return nil
}

// ReadMessage decodes exactly one message from r. When eofTolerant is true a
// clean EOF before the type byte yields ErrNoMessage; EOF anywhere inside a
// message is always a protocol error. The payload buffer is allocated to the
// declared size and, for credential-carrying types, pinned before any payload
// byte is copied into it. The caller owns the buffer and must Wipe it.
func ReadMessage(r io.Reader, eofTolerant bool) (Type, *secbuf.Buffer, error) {
	tb, err := readByte(r)
	if err != nil {
		if eofTolerant && errors.Is(err, io.EOF) {
			return 0, nil, ErrNoMessage
		}
		return 0, nil, fmt.Errorf("authproto: read type: %w", err)
	}
	t := Type(tb)
	if !t.Valid() {
		return 0, nil, fmt.Errorf("%w: %q", ErrBadType, tb)
	}

	sep, err := readByte(r)
	if err != nil {
		return 0, nil, fmt.Errorf("authproto: read separator: %w", err)
	}
	if sep != ' ' {
		return 0, nil, fmt.Errorf("%w: got %q", ErrBadSeparator, sep)
	}

	length := 0
	digits := 0
	for {
		c, err := readByte(r)
		if err != nil {
			return 0, nil, fmt.Errorf("authproto: read length: %w", err)
		}
		if c == '\n' {
			break
		}
		if c < '0' || c > '9' {
			return 0, nil, fmt.Errorf("%w: byte %q", ErrBadLength, c)
		}
		length = length*10 + int(c-'0')
		digits++
		// Bail out before the accumulator can grow without bound.
		if length > MaxPayload {
			return 0, nil, fmt.Errorf("%w: declared %d", ErrPayloadTooLarge, length)
		}
	}
	if digits == 0 {
		return 0, nil, fmt.Errorf("%w: empty field", ErrBadLength)
	}

	payload, err := secbuf.New(length, t.Secret())
	if payload == nil {
		return 0, nil, fmt.Errorf("authproto: allocate payload: %w", err)
	}
	// A pin failure (err != nil with a usable buffer) is tolerated; callers
	// that require pinned credentials can check payload.Pinned().

	if _, err := io.ReadFull(r, payload.Bytes()); err != nil {
		payload.Wipe()
		return 0, nil, fmt.Errorf("%w: %v", ErrTruncatedPayload, err)
	}

	nl, err := readByte(r)
	if err != nil {
		payload.Wipe()
		return 0, nil, fmt.Errorf("%w: %v", ErrMissingTerminator, err)
	}
	if nl != '\n' {
		payload.Wipe()
		return 0, nil, fmt.Errorf("%w: got %q", ErrMissingTerminator, nl)
	}

	return t, payload, nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
