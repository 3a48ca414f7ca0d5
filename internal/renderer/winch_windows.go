package renderer

import "context"

// WatchResize is a no-op on Windows, which has no SIGWINCH.
func (t *Terminal) WatchResize(ctx context.Context, fn func()) {}
