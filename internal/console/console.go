// Package console renders listings as lipgloss tables and asks the user
// for confirmations on the terminal.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/gluk-w/cohub/internal/lifecycle"
	"github.com/gluk-w/cohub/internal/registry"
)

const clearScreen = "\x1b[H\x1b[2J"

// Console writes views to Out and reads answers from In. It implements the
// view and confirmer interfaces of the lifecycle, admin and schedules
// packages.
type Console struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader

	// Live clears the screen before each full redraw (watch mode).
	Live bool
	// AssumeYes answers every confirmation with yes.
	AssumeYes bool

	mu     sync.Mutex
	styles styles
	reader *bufio.Reader
}

func New(in io.Reader, out, errOut io.Writer) *Console {
	return &Console{
		In:     in,
		Out:    out,
		Err:    errOut,
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

func (c *Console) ShowSessions(rows []lifecycle.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Live {
		fmt.Fprint(c.Out, clearScreen)
	}
	fmt.Fprintln(c.Out, c.styles.renderSessions(rows))
}

func (c *Console) ShowUsers(users []registry.UserSessions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Live {
		fmt.Fprint(c.Out, clearScreen)
	}
	fmt.Fprintln(c.Out, c.styles.header.Render("Users"))
	fmt.Fprintln(c.Out, c.styles.renderUsers(users))
}

func (c *Console) ShowSchedules(list []registry.Schedule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.Out, c.styles.header.Render("Scheduled tasks"))
	fmt.Fprintln(c.Out, c.styles.renderSchedules(list))
}

func (c *Console) ShowError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.Err, c.styles.err.Render(msg))
}

// Notice prints an informational line to Err.
func (c *Console) Notice(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.Err, c.styles.muted.Render(fmt.Sprintf(format, args...)))
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func (c *Console) Confirm(prompt string) bool {
	if c.AssumeYes {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.Err, "%s [y/N] ", prompt)
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.Err)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
