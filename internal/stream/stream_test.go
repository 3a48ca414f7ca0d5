package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gluk-w/cohub/internal/auth"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/gluk-w/cohub/internal/registrytest"
	"github.com/gluk-w/cohub/internal/renderer"
)

type phaseLog struct {
	mu      sync.Mutex
	entries []Phase
}

func (l *phaseLog) record(p Phase, _ Reason) {
	l.mu.Lock()
	l.entries = append(l.entries, p)
	l.mu.Unlock()
}

func (l *phaseLog) phases() []Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Phase(nil), l.entries...)
}

type fixture struct {
	srv     *registrytest.Server
	tokens  *auth.Store
	reg     *registry.Client
	session registrytest.Session
	buf     *renderer.Buffer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv := registrytest.New(t)
	srv.AddUser(t, "alice", "Alice", "secret", false)
	tokens := auth.NewStore(nil)
	tokens.Set(auth.Credential{Token: srv.IssueToken(t, "alice"), UID: "alice", Username: "Alice"})
	return &fixture{
		srv:     srv,
		tokens:  tokens,
		reg:     registry.New(srv.APIURL(), tokens),
		session: srv.AddSession(registrytest.Session{Owner: "alice", Status: "idle", Alive: true}),
		buf:     renderer.NewBuffer(renderer.DefaultGeometry),
	}
}

func (f *fixture) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c := New(f.session.ID, f.reg.StreamURL, f.buf, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func expectResize(t *testing.T, f registrytest.Frame, cols, rows int) {
	t.Helper()
	c, r, ok := f.Resize()
	if !ok {
		t.Fatalf("expected resize frame, got %q", f.Data)
	}
	if c != cols || r != rows {
		t.Errorf("resize = %dx%d, want %dx%d", c, r, cols, rows)
	}
}

func TestConnectAnnouncesGeometryFirst(t *testing.T) {
	f := setup(t)
	var phases phaseLog
	c := f.client(t, WithPhaseHandler(phases.record))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)

	expectResize(t, tc.Next(t), 80, 24)
	if c.Phase() != Attached {
		t.Errorf("Phase = %v", c.Phase())
	}
	if c.Geometry() != renderer.DefaultGeometry {
		t.Errorf("Geometry = %v", c.Geometry())
	}

	f.buf.Type("ls -la\r")
	got := tc.Next(t)
	if got.Binary || string(got.Data) != "ls -la\r" {
		t.Errorf("keystroke frame = %+v", got)
	}

	want := []Phase{Connecting, Attached}
	if p := phases.phases(); len(p) != 2 || p[0] != want[0] || p[1] != want[1] {
		t.Errorf("phases = %v, want %v", p, want)
	}
}

func TestOutputFramesRenderIdentically(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)

	tc.SendBinary(t, []byte{0x61, 0x62})
	waitFor(t, "binary output", func() bool { return f.buf.String() == "ab" })

	f.buf.Reset()
	tc.SendText(t, "ab")
	waitFor(t, "text output", func() bool { return f.buf.String() == "ab" })
}

func TestOutputOrderPreserved(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)

	tc.SendText(t, "one ")
	tc.SendBinary(t, []byte("two "))
	tc.SendText(t, "three")
	waitFor(t, "ordered output", func() bool { return f.buf.String() == "one two three" })
}

func TestResizeSendsOneFrame(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)
	expectResize(t, tc.Next(t), 80, 24)

	if err := c.Resize(renderer.Geometry{Cols: 120, Rows: 30}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	expectResize(t, tc.Next(t), 120, 30)

	// Same size again: nothing to announce.
	c.Resize(renderer.Geometry{Cols: 120, Rows: 30})
	c.Refit()
	tc.NoFrame(t, 200*time.Millisecond)
}

func TestInputWhileDisconnectedGoesIdle(t *testing.T) {
	f := setup(t)
	var idle []string
	f.client(t, WithIdleInput(func(s string) { idle = append(idle, s) }))

	f.buf.Type("r")
	if len(idle) != 1 || idle[0] != "r" {
		t.Errorf("idle input = %q", idle)
	}
	if n := f.srv.Dials(f.session.ID); n != 0 {
		t.Errorf("unexpected dials: %d", n)
	}
}

func TestConnectTwiceRejected(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.srv.AcceptTerminal(t)

	if err := c.Connect(context.Background()); !errors.Is(err, ErrNotDisconnected) {
		t.Errorf("second Connect = %v", err)
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)
	tc.Next(t)

	tc.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "disconnect", func() bool { return c.Phase() == Disconnected })
	if c.Reason() != ReasonRemoteClosed {
		t.Errorf("Reason = %q", c.Reason())
	}
}

func TestTransportErrorDisconnects(t *testing.T) {
	f := setup(t)
	var idle []string
	var mu sync.Mutex
	c := f.client(t, WithIdleInput(func(s string) {
		mu.Lock()
		idle = append(idle, s)
		mu.Unlock()
	}))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)
	tc.Next(t)

	tc.Drop()
	waitFor(t, "disconnect", func() bool { return c.Phase() == Disconnected })
	if c.Reason() != ReasonTransportError {
		t.Errorf("Reason = %q", c.Reason())
	}

	// Keys no longer reach the remote side.
	f.buf.Type("x")
	mu.Lock()
	defer mu.Unlock()
	if len(idle) != 1 {
		t.Errorf("idle input = %q", idle)
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := f.srv.AcceptTerminal(t)
	expectResize(t, first.Next(t), 80, 24)

	f.buf.Resize(renderer.Geometry{Cols: 100, Rows: 50})
	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	second := f.srv.AcceptTerminal(t)

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("old connection was not discarded")
	}

	// Geometry is announced again, once, before any keystroke.
	expectResize(t, second.Next(t), 100, 50)
	f.buf.Type("k")
	if got := second.Next(t); string(got.Data) != "k" {
		t.Errorf("keystroke = %q", got.Data)
	}
	second.NoFrame(t, 100*time.Millisecond)

	if n := f.srv.Dials(f.session.ID); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
	if c.Phase() != Attached {
		t.Errorf("late close of the old stream changed phase to %v", c.Phase())
	}
}

func TestReconnectFromDisconnected(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)
	tc.Next(t)
	tc.Drop()
	waitFor(t, "disconnect", func() bool { return c.Phase() == Disconnected })

	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	again := f.srv.AcceptTerminal(t)
	expectResize(t, again.Next(t), 80, 24)
}

func TestUnauthorizedHandshake(t *testing.T) {
	f := setup(t)
	unauthorized := 0
	c := f.client(t, WithUnauthorized(func() { unauthorized++ }))

	f.srv.RevokeTokens()
	err := c.Connect(context.Background())
	if !registry.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if c.Phase() != Disconnected || c.Reason() != ReasonUnauthorized {
		t.Errorf("state = %v/%q", c.Phase(), c.Reason())
	}
	if unauthorized != 1 {
		t.Errorf("unauthorized callback calls = %d", unauthorized)
	}
}

func TestConnectWithoutToken(t *testing.T) {
	f := setup(t)
	f.tokens.Logout()
	c := f.client(t)

	if err := c.Connect(context.Background()); !registry.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if c.Reason() != ReasonUnauthorized {
		t.Errorf("Reason = %q", c.Reason())
	}
}

func TestDialFailure(t *testing.T) {
	f := setup(t)
	dead := f.srv.AddSession(registrytest.Session{Owner: "alice", Status: "dead"})
	c := New(dead.ID, f.reg.StreamURL, f.buf)

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error for a dead session")
	}
	if c.Phase() != Disconnected || c.Reason() != ReasonDialFailed {
		t.Errorf("state = %v/%q", c.Phase(), c.Reason())
	}
}

func TestCloseIsLocal(t *testing.T) {
	f := setup(t)
	var phases phaseLog
	c := f.client(t, WithPhaseHandler(phases.record))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tc := f.srv.AcceptTerminal(t)
	tc.Next(t)

	start := time.Now()
	c.Close()
	if d := time.Since(start); d > time.Second {
		t.Errorf("Close took %v, want it not to wait for the close reply", d)
	}
	if c.Phase() != Disconnected || c.Reason() != ReasonLocalClose {
		t.Errorf("state = %v/%q", c.Phase(), c.Reason())
	}
	select {
	case <-tc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server still connected after Close")
	}

	p := phases.phases()
	if len(p) != 3 || p[2] != Disconnected {
		t.Errorf("phases = %v", p)
	}
}
