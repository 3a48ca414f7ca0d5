package renderer

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"
	"time"
)

func TestBufferRecordsOutput(t *testing.T) {
	b := NewBuffer(Geometry{})
	if b.Size() != DefaultGeometry {
		t.Errorf("Size = %v, want default", b.Size())
	}
	b.Write([]byte{0x61, 0x62})
	b.WriteString("cd")
	if b.String() != "abcd" {
		t.Errorf("String = %q", b.String())
	}
	b.Reset()
	if len(b.Bytes()) != 0 {
		t.Error("Reset left output behind")
	}
}

func TestBufferResizeIgnoresInvalid(t *testing.T) {
	b := NewBuffer(Geometry{Cols: 100, Rows: 40})
	b.Resize(Geometry{Cols: 0, Rows: 10})
	if b.Size() != (Geometry{Cols: 100, Rows: 40}) {
		t.Errorf("invalid geometry applied: %v", b.Size())
	}
	b.Resize(Geometry{Cols: 120, Rows: 30})
	if b.Size().String() != "120x30" {
		t.Errorf("Size = %v", b.Size())
	}
}

func TestBufferType(t *testing.T) {
	b := NewBuffer(DefaultGeometry)
	b.Type("ignored")

	var got []string
	b.OnInput(func(s string) { got = append(got, s) })
	b.Type("ls\r")
	if len(got) != 1 || got[0] != "ls\r" {
		t.Errorf("input = %q", got)
	}
}

func TestTerminalReadInputDetach(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var out bytes.Buffer
	term := NewTerminal(r, &out, Geometry{Cols: 100, Rows: 40})
	if term.Size() != (Geometry{Cols: 100, Rows: 40}) {
		t.Errorf("non-TTY size = %v", term.Size())
	}

	var mu sync.Mutex
	var got []string
	term.OnInput(func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- term.ReadInput(context.Background()) }()

	w.Write([]byte("ab\x1dcd"))
	select {
	case <-term.Detached():
	case <-time.After(2 * time.Second):
		t.Fatal("detach key not noticed")
	}
	w.Close()
	if err := <-done; err != nil {
		t.Fatalf("ReadInput: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "ab" {
		t.Errorf("input = %q", got)
	}
}

func TestTerminalWrite(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	term := NewTerminal(r, &out, Geometry{})
	if term.Size() != DefaultGeometry {
		t.Errorf("fallback size = %v", term.Size())
	}
	term.Write([]byte("x"))
	term.WriteString("y")
	if out.String() != "xy" {
		t.Errorf("out = %q", out.String())
	}
	// Restore without MakeRaw is a no-op.
	term.Restore()
}
