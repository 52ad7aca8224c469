//go:build unix

// Package secbuf provides byte buffers for credential material. A pinned
// buffer is locked against swap for its whole lifetime and is always
// overwritten with zeros before its memory is released back to the runtime.
package secbuf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Buffer holds sensitive bytes. The zero value is empty and safe to Wipe.
type Buffer struct {
	data   []byte
	pinned bool
	wiped  bool
}

// New allocates a buffer of exactly n bytes. When pin is true the backing
// memory is mlocked before the caller can copy anything into it. A pin
// failure (commonly RLIMIT_MEMLOCK) is reported alongside the usable buffer;
// scrubbing on release still applies.
func New(n int, pin bool) (*Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("secbuf: negative size %d", n)
	}
	b := &Buffer{data: make([]byte, n)}
	if pin && n > 0 {
		if err := unix.Mlock(b.data); err != nil {
			return b, fmt.Errorf("secbuf: mlock %d bytes: %w", n, err)
		}
		b.pinned = true
	}
	return b, nil
}

// Bytes exposes the backing slice. It must not be retained past Wipe.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len reports the buffer size.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Pinned reports whether the backing memory is locked against swap.
func (b *Buffer) Pinned() bool {
	return b != nil && b.pinned
}

// Wipe zeroes the contents and unpins the memory. It is idempotent and must
// run on every release path, including error paths.
func (b *Buffer) Wipe() {
	if b == nil || b.wiped {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
	if b.pinned {
		_ = unix.Munlock(b.data)
		b.pinned = false
	}
	b.wiped = true
}

// Close makes Buffer usable with defer-based cleanup.
func (b *Buffer) Close() error {
	b.Wipe()
	return nil
}
