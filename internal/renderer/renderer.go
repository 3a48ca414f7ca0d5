// Package renderer is the display side of a terminal stream. The stream
// client only writes output into a Renderer, asks it for its geometry and
// receives keystrokes from it; how the bytes become a screen is up to the
// implementation.
package renderer

import "fmt"

// Geometry is a terminal size in character cells.
type Geometry struct {
	Cols int
	Rows int
}

// DefaultGeometry is used when nothing better is known.
var DefaultGeometry = Geometry{Cols: 80, Rows: 24}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Cols, g.Rows)
}

// Valid reports whether both dimensions are positive.
func (g Geometry) Valid() bool {
	return g.Cols > 0 && g.Rows > 0
}

type Renderer interface {
	// Write renders raw output bytes.
	Write(p []byte) (int, error)
	// WriteString renders output that arrived as text.
	WriteString(s string) (int, error)
	// OnInput registers the handler for user keystrokes. Only one handler
	// is kept; a later call replaces it.
	OnInput(fn func(string))
	Size() Geometry
	Resize(g Geometry)
}

// Fitter is implemented by renderers that can measure their container.
type Fitter interface {
	// Fit recomputes the geometry from the display and returns it.
	Fit() Geometry
}
