package registrytest

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const waitTimeout = 5 * time.Second

// Frame is one message a client sent on a terminal stream.
type Frame struct {
	Binary bool
	Data   []byte
}

// Resize decodes a {"type":"resize"} control frame.
func (f Frame) Resize() (cols, rows int, ok bool) {
	if f.Binary {
		return 0, 0, false
	}
	var msg struct {
		Type string `json:"type"`
		Cols int    `json:"cols"`
		Rows int    `json:"rows"`
	}
	if err := json.Unmarshal(f.Data, &msg); err != nil || msg.Type != "resize" {
		return 0, 0, false
	}
	return msg.Cols, msg.Rows, true
}

// TermConn is the server end of one terminal stream.
type TermConn struct {
	SessionID string

	conn   *websocket.Conn
	frames chan Frame
	done   chan struct{}
}

// Next returns the next frame the client sent, failing the test if none
// arrives in time.
func (tc *TermConn) Next(t testing.TB) Frame {
	t.Helper()
	select {
	case f := <-tc.frames:
		return f
	case <-time.After(waitTimeout):
		t.Fatalf("no frame from client on session %s", tc.SessionID)
		return Frame{}
	}
}

// NoFrame fails the test if the client sends anything within d.
func (tc *TermConn) NoFrame(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case f := <-tc.frames:
		t.Fatalf("unexpected frame on session %s: %q", tc.SessionID, f.Data)
	case <-time.After(d):
	}
}

// SendBinary pushes raw terminal output to the client.
func (tc *TermConn) SendBinary(t testing.TB, data []byte) {
	t.Helper()
	tc.send(t, websocket.MessageBinary, data)
}

// SendText pushes output as a text frame.
func (tc *TermConn) SendText(t testing.TB, text string) {
	t.Helper()
	tc.send(t, websocket.MessageText, []byte(text))
}

func (tc *TermConn) send(t testing.TB, typ websocket.MessageType, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := tc.conn.Write(ctx, typ, data); err != nil {
		t.Fatalf("write to session %s: %v", tc.SessionID, err)
	}
}

// Close ends the stream with a close frame.
func (tc *TermConn) Close(code websocket.StatusCode, reason string) {
	tc.conn.Close(code, reason)
}

// Drop tears the connection down without a close handshake.
func (tc *TermConn) Drop() {
	tc.conn.CloseNow()
}

// Done is closed once the connection has gone away.
func (tc *TermConn) Done() <-chan struct{} {
	return tc.done
}

// AcceptTerminal returns the next terminal stream a client opens.
func (s *Server) AcceptTerminal(t testing.TB) *TermConn {
	t.Helper()
	select {
	case tc := <-s.conns:
		return tc
	case <-time.After(waitTimeout):
		t.Fatal("no terminal connection")
		return nil
	}
}

// Dials returns how many terminal streams were accepted for a session.
func (s *Server) Dials(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials[id]
}

// handleTerminal bridges one websocket. Client text frames are recorded
// as-is; output is whatever the test pushes.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uid, ok := s.tokens.Get(r.URL.Query().Get("token"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	s.mu.Lock()
	sess := s.findSession(uid, id)
	alive := sess != nil && sess.Alive
	s.mu.Unlock()
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if !alive {
		writeError(w, http.StatusConflict, "Session not running")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[registrytest] accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	tc := &TermConn{
		SessionID: id,
		conn:      conn,
		frames:    make(chan Frame, 256),
		done:      make(chan struct{}),
	}
	defer close(tc.done)

	s.mu.Lock()
	s.terms[id] = append(s.terms[id], tc)
	s.dials[id]++
	s.mu.Unlock()
	defer s.forgetTerminal(tc)

	s.conns <- tc

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		select {
		case tc.frames <- Frame{Binary: typ == websocket.MessageBinary, Data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) forgetTerminal(tc *TermConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.terms[tc.SessionID]
	for i, c := range conns {
		if c == tc {
			s.terms[tc.SessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
}
