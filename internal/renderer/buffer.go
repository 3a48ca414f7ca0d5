package renderer

import (
	"bytes"
	"sync"
)

// Buffer is an in-memory renderer. It records everything written to it and
// lets callers inject keystrokes with Type.
type Buffer struct {
	mu      sync.Mutex
	out     bytes.Buffer
	size    Geometry
	onInput func(string)
}

func NewBuffer(g Geometry) *Buffer {
	if !g.Valid() {
		g = DefaultGeometry
	}
	return &Buffer{size: g}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.Write(p)
}

func (b *Buffer) WriteString(s string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.WriteString(s)
}

func (b *Buffer) OnInput(fn func(string)) {
	b.mu.Lock()
	b.onInput = fn
	b.mu.Unlock()
}

// Type delivers s to the input handler as a single keystroke event.
func (b *Buffer) Type(s string) {
	b.mu.Lock()
	fn := b.onInput
	b.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (b *Buffer) Size() Geometry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Resize(g Geometry) {
	if !g.Valid() {
		return
	}
	b.mu.Lock()
	b.size = g
	b.mu.Unlock()
}

// String returns everything rendered so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// Bytes returns a copy of everything rendered so far.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.out.Bytes()...)
}

// Reset discards recorded output.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.out.Reset()
	b.mu.Unlock()
}
