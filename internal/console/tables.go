package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gluk-w/cohub/internal/lifecycle"
	"github.com/gluk-w/cohub/internal/logutil"
	"github.com/gluk-w/cohub/internal/registry"
)

const (
	firstMessageWidth = 40
	timeLayout        = "2006-01-02 15:04:05"
)

type styles struct {
	header lipgloss.Style
	cell   lipgloss.Style
	title  lipgloss.Style
	id     lipgloss.Style
	muted  lipgloss.Style
	err    lipgloss.Style
	on     lipgloss.Style
	off    lipgloss.Style
	badges map[string]lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		cell:   r.NewStyle().Padding(0, 1),
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1),
		id:     r.NewStyle().Foreground(lipgloss.Color("240")),
		muted:  r.NewStyle().Foreground(lipgloss.Color("243")),
		err:    r.NewStyle().Foreground(lipgloss.Color("196")),
		on:     r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		off:    r.NewStyle().Foreground(lipgloss.Color("243")),
		badges: map[string]lipgloss.Style{
			"idle":    r.NewStyle().Foreground(lipgloss.Color("42")),
			"working": r.NewStyle().Foreground(lipgloss.Color("214")),
			"dead":    r.NewStyle().Foreground(lipgloss.Color("243")),
		},
	}
}

func (s styles) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.muted).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.title
			}
			return s.cell
		})
}

func (s styles) badge(status string) string {
	if st, ok := s.badges[status]; ok {
		return st.Render(status)
	}
	return status
}

func (s styles) sessionCells(sess registry.Session) []string {
	first := "-"
	if sess.FirstMessage != nil {
		first = logutil.Truncate(logutil.SanitizeForLog(*sess.FirstMessage), firstMessageWidth)
	}
	updated := "-"
	if sess.UpdatedAt != nil {
		updated = sess.UpdatedAt.Local().Format(timeLayout)
	}
	return []string{s.id.Render(sess.ShortID()), first, updated, s.badge(sess.Status)}
}

func (s styles) renderSessions(rows []lifecycle.Row) string {
	if len(rows) == 0 {
		return s.muted.Render("No sessions yet")
	}
	t := s.newTable("Session", "First Message", "Updated", "Status", "Actions")
	for _, row := range rows {
		actions := make([]string, len(row.Actions))
		for i, a := range row.Actions {
			actions[i] = string(a)
		}
		t.Row(append(s.sessionCells(row.Session), strings.Join(actions, " "))...)
	}
	return t.String()
}

func (s styles) renderUsers(users []registry.UserSessions) string {
	if len(users) == 0 {
		return s.muted.Render("No users found")
	}
	var b strings.Builder
	for i, u := range users {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.header.Render(fmt.Sprintf("%s (%d)", u.Username, len(u.Sessions))))
		b.WriteString("\n")
		if len(u.Sessions) == 0 {
			b.WriteString(s.muted.Render("No sessions"))
			b.WriteString("\n")
			continue
		}
		t := s.newTable("Session", "First Message", "Updated", "Status")
		for _, sess := range u.Sessions {
			t.Row(s.sessionCells(sess)...)
		}
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s styles) renderSchedules(list []registry.Schedule) string {
	if len(list) == 0 {
		return s.muted.Render("No scheduled tasks")
	}
	t := s.newTable("Name", "Content", "Cron", "Workdir", "Enabled")
	for _, sch := range list {
		workdir := sch.Workdir
		if workdir == "" {
			workdir = "-"
		}
		enabled := s.off.Render("Off")
		if sch.Enabled {
			enabled = s.on.Render("On")
		}
		t.Row(sch.Name, logutil.Truncate(logutil.SanitizeForLog(sch.Content), firstMessageWidth), sch.Cron, workdir, enabled)
	}
	return t.String()
}
