// Package stream connects one terminal view to one remote session over a
// websocket.
//
// A Client is Disconnected, Connecting or Attached. Output frames go to the
// renderer in arrival order (binary frames as bytes, text frames as
// strings). Keystrokes from the renderer are sent verbatim as text frames,
// but only while Attached. The first frame on every new connection is a
// resize frame with the current geometry, so the remote side always knows
// the size before it sees any input.
//
// Reconnect is a hard cut: the previous connection is discarded and any
// event it produces afterwards is ignored.
//
// Log prefix: [stream].
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gluk-w/cohub/internal/logutil"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/gluk-w/cohub/internal/renderer"
)

type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Attached
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Attached:
		return "attached"
	}
	return "disconnected"
}

// Reason records why the client last became Disconnected. It is for logs
// and tests; the user only ever sees "disconnected".
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDialFailed     Reason = "dial_failed"
	ReasonRemoteClosed   Reason = "remote_closed"
	ReasonTransportError Reason = "transport_error"
	ReasonReplaced       Reason = "replaced"
	ReasonLocalClose     Reason = "local_close"
	ReasonUnauthorized   Reason = "unauthorized"
)

var (
	ErrNotDisconnected = errors.New("stream: already connected or connecting")
	ErrSuperseded      = errors.New("stream: connection superseded")
)

const (
	defaultWriteTimeout = 5 * time.Second
	readLimit           = 1 << 20
)

// URLFunc returns the websocket address for a session.
type URLFunc func(sessionID string) (string, error)

type resizeMsg struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type Client struct {
	sessionID string
	urlFunc   URLFunc
	r         renderer.Renderer

	dialOpts       *websocket.DialOptions
	onPhase        func(Phase, Reason)
	onIdle         func(string)
	onUnauthorized func()
	writeTimeout   time.Duration

	mu        sync.Mutex
	phase     Phase
	reason    Reason
	gen       uint64
	conn      *websocket.Conn
	cancel    context.CancelFunc
	announced renderer.Geometry
}

type Option func(*Client)

func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) { c.dialOpts = opts }
}

// WithPhaseHandler is called after every phase change, outside any lock.
func WithPhaseHandler(fn func(Phase, Reason)) Option {
	return func(c *Client) { c.onPhase = fn }
}

// WithIdleInput receives keystrokes typed while not Attached.
func WithIdleInput(fn func(string)) Option {
	return func(c *Client) { c.onIdle = fn }
}

// WithUnauthorized is called when the registry rejects the stream's token.
func WithUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// New creates a Disconnected client for sessionID and takes over the
// renderer's input handler.
func New(sessionID string, urlFunc URLFunc, r renderer.Renderer, opts ...Option) *Client {
	c := &Client{
		sessionID:    sessionID,
		urlFunc:      urlFunc,
		r:            r,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	r.OnInput(c.handleInput)
	return c
}

func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Reason is why the client last became Disconnected.
func (c *Client) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Geometry is the size last announced on the current connection, or the
// zero Geometry when none has been.
func (c *Client) Geometry() renderer.Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.announced
}

// Connect opens the stream. It is only valid while Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Disconnected {
		c.mu.Unlock()
		return ErrNotDisconnected
	}
	gen := c.beginLocked()
	c.mu.Unlock()

	c.notify(Connecting, ReasonNone)
	return c.dial(ctx, gen)
}

// Reconnect discards the current connection, whatever its state, and opens
// a new one.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	old, oldCancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	gen := c.beginLocked()
	c.mu.Unlock()

	if old != nil {
		log.Printf("[stream] %s: dropping previous connection (%s)", c.logID(), ReasonReplaced)
		oldCancel()
		old.CloseNow()
	}
	c.notify(Connecting, ReasonNone)
	return c.dial(ctx, gen)
}

// Close detaches locally.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	was := c.phase
	c.gen++
	c.conn, c.cancel = nil, nil
	c.phase = Disconnected
	c.reason = ReasonLocalClose
	c.announced = renderer.Geometry{}
	c.mu.Unlock()

	if conn != nil {
		// The peer's close reply is not awaited; the stale read loop exits
		// once the handshake finishes or times out.
		go func() {
			conn.Close(websocket.StatusNormalClosure, "detached")
			cancel()
		}()
	}
	if was != Disconnected {
		log.Printf("[stream] %s: detached", c.logID())
		c.notify(Disconnected, ReasonLocalClose)
	}
	return nil
}

// Resize applies g to the renderer and, when Attached and the size really
// changed, announces it with one resize frame.
func (c *Client) Resize(g renderer.Geometry) error {
	c.r.Resize(g)
	return c.announce()
}

// Refit re-measures a renderer that supports it, then announces as Resize.
func (c *Client) Refit() error {
	if f, ok := c.r.(renderer.Fitter); ok {
		f.Fit()
	}
	return c.announce()
}

// beginLocked starts a new connection generation. c.mu must be held.
func (c *Client) beginLocked() uint64 {
	c.gen++
	c.phase = Connecting
	c.reason = ReasonNone
	c.announced = renderer.Geometry{}
	return c.gen
}

func (c *Client) dial(ctx context.Context, gen uint64) error {
	url, err := c.urlFunc(c.sessionID)
	if err != nil {
		reason := ReasonDialFailed
		if registry.IsUnauthorized(err) {
			reason = ReasonUnauthorized
		}
		c.fail(gen, reason)
		return err
	}

	conn, resp, err := websocket.Dial(ctx, url, c.dialOpts)
	if err != nil {
		reason := ReasonDialFailed
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			reason = ReasonUnauthorized
		}
		log.Printf("[stream] %s: dial failed: %v", c.logID(), err)
		c.fail(gen, reason)
		if reason == ReasonUnauthorized {
			return &registry.AuthError{Op: "attach"}
		}
		return fmt.Errorf("connect to session %s: %w", c.sessionID, err)
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		conn.CloseNow()
		return ErrSuperseded
	}
	g := c.geometryLocked()
	if err := c.writeResize(conn, g); err != nil {
		c.phase = Disconnected
		c.reason = ReasonTransportError
		c.mu.Unlock()
		conn.CloseNow()
		c.notify(Disconnected, ReasonTransportError)
		return fmt.Errorf("announce geometry: %w", err)
	}
	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.announced = g
	c.phase = Attached
	c.mu.Unlock()

	log.Printf("[stream] %s: attached at %s", c.logID(), g)
	c.notify(Attached, ReasonNone)
	go c.readLoop(readCtx, conn, gen)
	return nil
}

// geometryLocked measures the renderer for a fresh connection.
func (c *Client) geometryLocked() renderer.Geometry {
	if f, ok := c.r.(renderer.Fitter); ok {
		f.Fit()
	}
	g := c.r.Size()
	if !g.Valid() {
		g = renderer.DefaultGeometry
	}
	return g
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	defer conn.CloseNow()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			reason := ReasonTransportError
			if websocket.CloseStatus(err) != -1 {
				reason = ReasonRemoteClosed
			}
			c.drop(gen, reason, err)
			return
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		switch typ {
		case websocket.MessageBinary:
			_, err = c.r.Write(data)
		default:
			_, err = c.r.WriteString(string(data))
		}
		c.mu.Unlock()
		if err != nil {
			log.Printf("[stream] %s: render: %v", c.logID(), err)
		}
	}
}

func (c *Client) handleInput(s string) {
	c.mu.Lock()
	if c.phase != Attached || c.conn == nil {
		idle := c.onIdle
		c.mu.Unlock()
		if idle != nil {
			idle(s)
		}
		return
	}
	gen := c.gen
	err := c.write(c.conn, websocket.MessageText, []byte(s))
	c.mu.Unlock()
	if err != nil {
		c.drop(gen, ReasonTransportError, err)
	}
}

func (c *Client) announce() error {
	c.mu.Lock()
	if c.phase != Attached || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	g := c.r.Size()
	if !g.Valid() || g == c.announced {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	err := c.writeResize(c.conn, g)
	if err == nil {
		c.announced = g
	}
	c.mu.Unlock()
	if err != nil {
		c.drop(gen, ReasonTransportError, err)
	}
	return err
}

func (c *Client) writeResize(conn *websocket.Conn, g renderer.Geometry) error {
	msg, err := json.Marshal(resizeMsg{Type: "resize", Cols: g.Cols, Rows: g.Rows})
	if err != nil {
		return err
	}
	return c.write(conn, websocket.MessageText, msg)
}

func (c *Client) write(conn *websocket.Conn, typ websocket.MessageType, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return conn.Write(ctx, typ, data)
}

// fail ends a connection attempt that never reached Attached.
func (c *Client) fail(gen uint64, reason Reason) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.phase = Disconnected
	c.reason = reason
	c.mu.Unlock()

	c.notify(Disconnected, reason)
	if reason == ReasonUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// drop moves an Attached connection to Disconnected. Stale generations are
// ignored.
func (c *Client) drop(gen uint64, reason Reason, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.phase == Disconnected {
		c.mu.Unlock()
		return
	}
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.phase = Disconnected
	c.reason = reason
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.CloseNow()
	}
	log.Printf("[stream] %s: disconnected (%s): %v", c.logID(), reason, cause)
	c.notify(Disconnected, reason)
}

func (c *Client) notify(p Phase, r Reason) {
	if c.onPhase != nil {
		c.onPhase(p, r)
	}
}

func (c *Client) logID() string {
	return logutil.SanitizeForLog(c.sessionID)
}
