package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gluk-w/cohub/internal/config"
	"github.com/gluk-w/cohub/internal/renderer"
	"github.com/gluk-w/cohub/internal/stream"
)

const (
	disconnectedOverlay = "\r\n\x1b[7m[disconnected]\x1b[0m r: reattach  q: quit\r\n"
	detachedNotice      = "\r\n[detached]\r\n"
)

// attacher is the lifecycle Navigator: it turns the local terminal into the
// session's display until the user detaches or quits.
type attacher struct {
	a   *app
	in  io.Reader
	out io.Writer
}

func (t *attacher) Attach(ctx context.Context, sessionID string) error {
	f, ok := t.in.(*os.File)
	if !ok || !renderer.IsTerminal(f) {
		// Nothing to attach to; print the id for scripts.
		fmt.Fprintln(t.out, sessionID)
		return nil
	}

	tty := renderer.NewTerminal(f, t.out, renderer.Geometry{Cols: config.Cfg.DefaultCols, Rows: config.Cfg.DefaultRows})
	if err := tty.MakeRaw(); err != nil {
		return fmt.Errorf("set terminal raw mode: %w", err)
	}
	defer tty.Restore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan string, 8)
	client := stream.New(sessionID, t.a.reg.StreamURL, tty,
		stream.WithPhaseHandler(func(p stream.Phase, r stream.Reason) {
			if p == stream.Disconnected && r != stream.ReasonLocalClose && r != stream.ReasonUnauthorized {
				tty.WriteString(disconnectedOverlay)
			}
		}),
		stream.WithIdleInput(func(s string) {
			select {
			case keys <- s:
			default:
			}
		}),
		stream.WithUnauthorized(t.a.tokens.Revoke),
	)
	defer client.Close()

	tty.WatchResize(ctx, func() {
		if err := client.Refit(); err != nil {
			log.Printf("[cli] resize: %v", err)
		}
	})
	// ReadInput stays blocked in Read after Attach returns and may eat one
	// keystroke typed after detaching. The process exits right after, so
	// the goroutine is left behind rather than closing stdin.
	go func() {
		if err := tty.ReadInput(ctx); err != nil {
			log.Printf("[cli] read input: %v", err)
		}
	}()

	if err := client.Connect(ctx); err != nil {
		log.Printf("[cli] attach %s: %v", sessionID, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tty.Detached():
			client.Close()
			tty.WriteString(detachedNotice)
			return nil
		case k := <-keys:
			switch k {
			case "r", "R":
				if err := client.Reconnect(ctx); err != nil {
					log.Printf("[cli] reattach %s: %v", sessionID, err)
				}
			case "q", "Q", "\x03":
				client.Close()
				return nil
			}
		}
	}
}
