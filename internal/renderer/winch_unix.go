//go:build !windows

package renderer

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchResize calls fn after every SIGWINCH until ctx is done.
func (t *Terminal) WatchResize(ctx context.Context, fn func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				fn()
			}
		}
	}()
}
