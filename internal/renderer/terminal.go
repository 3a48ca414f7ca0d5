package renderer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/term"
)

// DetachKey is Ctrl-]. It never reaches the remote shell.
const DetachKey byte = 0x1d

// Terminal renders onto the local TTY and reads keystrokes from it.
type Terminal struct {
	in  *os.File
	out io.Writer
	fd  int

	mu       sync.Mutex
	writeMu  sync.Mutex
	size     Geometry
	onInput  func(string)
	oldState *term.State

	detach chan struct{}
}

// NewTerminal measures in's TTY, using fallback when it cannot be measured.
func NewTerminal(in *os.File, out io.Writer, fallback Geometry) *Terminal {
	if !fallback.Valid() {
		fallback = DefaultGeometry
	}
	t := &Terminal{
		in:     in,
		out:    out,
		fd:     int(in.Fd()),
		size:   fallback,
		detach: make(chan struct{}, 1),
	}
	t.Fit()
	return t
}

// IsTerminal reports whether f is attached to a TTY.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// MakeRaw puts the input TTY into raw mode until Restore is called.
func (t *Terminal) MakeRaw() error {
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.oldState = state
	t.mu.Unlock()
	return nil
}

// Restore returns the TTY to the mode it had before MakeRaw.
func (t *Terminal) Restore() {
	t.mu.Lock()
	state := t.oldState
	t.oldState = nil
	t.mu.Unlock()
	if state == nil {
		return
	}
	if err := term.Restore(t.fd, state); err != nil {
		log.Printf("[renderer] restore terminal: %v", err)
	}
}

func (t *Terminal) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.out.Write(p)
}

func (t *Terminal) WriteString(s string) (int, error) {
	return t.Write([]byte(s))
}

func (t *Terminal) OnInput(fn func(string)) {
	t.mu.Lock()
	t.onInput = fn
	t.mu.Unlock()
}

func (t *Terminal) Size() Geometry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Resize records g as the current size. The local TTY itself cannot be
// resized from here.
func (t *Terminal) Resize(g Geometry) {
	if !g.Valid() {
		return
	}
	t.mu.Lock()
	t.size = g
	t.mu.Unlock()
}

// Fit measures the TTY. The last known size is kept when the measurement
// fails.
func (t *Terminal) Fit() Geometry {
	cols, rows, err := term.GetSize(t.fd)
	if err == nil {
		t.Resize(Geometry{Cols: cols, Rows: rows})
	}
	return t.Size()
}

// Detached fires each time the user presses DetachKey.
func (t *Terminal) Detached() <-chan struct{} {
	return t.detach
}

// ReadInput copies keystrokes to the input handler until ctx is done or
// the input closes. Bytes after DetachKey in the same read are dropped.
func (t *Terminal) ReadInput(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if i := bytes.IndexByte(chunk, DetachKey); i >= 0 {
				t.deliver(chunk[:i])
				select {
				case t.detach <- struct{}{}:
				default:
				}
			} else {
				t.deliver(chunk)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (t *Terminal) deliver(p []byte) {
	if len(p) == 0 {
		return
	}
	t.mu.Lock()
	fn := t.onInput
	t.mu.Unlock()
	if fn != nil {
		fn(string(p))
	}
}
