//go:build unix

package authproto

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte(""),
		[]byte("hunter2"),
		[]byte("pass with spaces and \n newline"),
		{0x00, 0xff, 0xfe, 0x80, 0x7f},
		bytes.Repeat([]byte{0xab}, MaxPayload),
	}
	types := []Type{TypeInfo, TypeError, TypePromptVisible, TypePromptHidden,
		TypeResponseVisible, TypeResponseHidden, TypeCancelled}

	for _, typ := range types {
		for _, payload := range payloads {
			var buf bytes.Buffer
			if err := WriteMessage(&buf, typ, payload); err != nil {
				t.Fatalf("write %q (%d bytes): %v", byte(typ), len(payload), err)
			}
			got, body, err := ReadMessage(&buf, false)
			if err != nil {
				t.Fatalf("read %q (%d bytes): %v", byte(typ), len(payload), err)
			}
			if got != typ {
				t.Fatalf("type mismatch: wrote %q, read %q", byte(typ), byte(got))
			}
			if !bytes.Equal(body.Bytes(), payload) && len(payload) > 0 {
				t.Fatalf("payload mismatch for %q", byte(typ))
			}
			body.Wipe()
		}
	}
}

func TestWireFormatIsByteExact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, TypeResponseHidden, []byte("passw0rd")); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "p 8\npassw0rd\n"
	if buf.String() != want {
		t.Fatalf("frame mismatch: got %q, want %q", buf.String(), want)
	}
}

func TestWriteRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMessage(&buf, TypeInfo, make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("oversized write must be a no-op, wrote %d bytes", buf.Len())
	}
}

func TestWriteRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Type('z'), nil); !errors.Is(err, ErrBadType) {
		t.Fatalf("expected ErrBadType, got %v", err)
	}
}

func TestReadTolerantEOF(t *testing.T) {
	_, _, err := ReadMessage(strings.NewReader(""), true)
	if !errors.Is(err, ErrNoMessage) {
		t.Fatalf("expected ErrNoMessage on clean EOF, got %v", err)
	}
}

func TestReadIntolerantEOF(t *testing.T) {
	_, _, err := ReadMessage(strings.NewReader(""), false)
	if err == nil || errors.Is(err, ErrNoMessage) {
		t.Fatalf("expected hard error on EOF, got %v", err)
	}
}

func TestReadStructuralViolations(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"bad type", "z 0\n\n", ErrBadType},
		{"tab separator", "i\t0\n\n", ErrBadSeparator},
		{"non-digit length", "i 1x\nA\n", ErrBadLength},
		{"empty length", "i \n\n", ErrBadLength},
		{"negative-looking length", "i -1\n\n", ErrBadLength},
		{"length over bound", "i 99999\n", ErrPayloadTooLarge},
		{"short payload", "i 5\nab", ErrTruncatedPayload},
		{"missing terminator", "i 2\nab", ErrMissingTerminator},
		{"wrong terminator", "i 2\nabX", ErrMissingTerminator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReadMessage(strings.NewReader(tc.input), true)
			if !errors.Is(err, tc.want) {
				t.Fatalf("input %q: expected %v, got %v", tc.input, tc.want, err)
			}
		})
	}
}

func TestReadEOFInsidePayloadIsErrorEvenWhenTolerant(t *testing.T) {
	_, _, err := ReadMessage(strings.NewReader("P 4\nab"), true)
	if errors.Is(err, ErrNoMessage) || err == nil {
		t.Fatalf("EOF inside a message must be a protocol error, got %v", err)
	}
}

func TestOverlongLengthStopsReading(t *testing.T) {
	// The reader must reject the declared length before consuming the
	// (potentially unbounded) payload that follows it.
	r := &countingReader{r: strings.NewReader("i 99999\n" + strings.Repeat("x", 1024))}
	_, _, err := ReadMessage(r, false)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if r.n > 16 {
		t.Fatalf("reader consumed %d bytes after rejecting the length", r.n)
	}
}

func TestHiddenResponseBufferIsExactSize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, TypeResponseHidden, []byte("secret")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, body, err := ReadMessage(&buf, false)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	defer body.Wipe()
	if body.Len() != len("secret") {
		t.Fatalf("expected exact-size buffer, got %d bytes", body.Len())
	}
}

func TestNeedsReplyConvention(t *testing.T) {
	for _, typ := range []Type{TypePromptVisible, TypePromptHidden} {
		if !typ.NeedsReply() {
			t.Fatalf("%q should require a reply", byte(typ))
		}
	}
	for _, typ := range []Type{TypeInfo, TypeError, TypeResponseVisible, TypeResponseHidden, TypeCancelled} {
		if typ.NeedsReply() {
			t.Fatalf("%q should be terminal", byte(typ))
		}
	}
	if !TypeResponseHidden.Secret() || TypeResponseVisible.Secret() {
		t.Fatal("only hidden responses carry secrets")
	}
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
