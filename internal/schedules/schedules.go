// Package schedules manages the caller's recurring tasks: list, add,
// enable/disable and delete. Cron expressions are passed through untouched;
// the registry validates them.
package schedules

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gluk-w/cohub/internal/registry"
)

// ErrMissingFields is returned by Add when name, content or cron is empty.
var ErrMissingFields = errors.New("fill in name, content and cron")

var ErrCancelled = errors.New("cancelled")

type Registry interface {
	ListSchedules(ctx context.Context) ([]registry.Schedule, error)
	CreateSchedule(ctx context.Context, in registry.ScheduleInput) (*registry.Schedule, error)
	UpdateSchedule(ctx context.Context, key registry.ScheduleKey, upd registry.ScheduleUpdate) (*registry.Schedule, error)
	DeleteSchedule(ctx context.Context, key registry.ScheduleKey) error
	KeyFor(s registry.Schedule) (registry.ScheduleKey, error)
}

type Confirmer interface {
	Confirm(prompt string) bool
}

type View interface {
	ShowSchedules(schedules []registry.Schedule)
	ShowError(msg string)
}

type Controller struct {
	Registry  Registry
	Confirmer Confirmer
	View      View
}

// Refresh re-fetches and renders the list. After Add, SetEnabled or
// Delete its failure is only logged; the change itself went through.
func (c *Controller) Refresh(ctx context.Context) error {
	list, err := c.Registry.ListSchedules(ctx)
	if err != nil {
		log.Printf("[schedules] failed to load schedules: %v", err)
		return err
	}
	c.View.ShowSchedules(list)
	return nil
}

// Add creates a schedule. Fields are trimmed; all three are required.
// New schedules start enabled. A failed refresh afterwards is only logged.
func (c *Controller) Add(ctx context.Context, name, content, cron string) (*registry.Schedule, error) {
	in := registry.ScheduleInput{
		Name:    strings.TrimSpace(name),
		Content: strings.TrimSpace(content),
		Cron:    strings.TrimSpace(cron),
		Enabled: true,
	}
	if in.Name == "" || in.Content == "" || in.Cron == "" {
		c.View.ShowError("Fill in name, content and cron")
		return nil, ErrMissingFields
	}
	created, err := c.Registry.CreateSchedule(ctx, in)
	if err != nil {
		c.report("Failed to add schedule", err)
		return nil, err
	}
	c.Refresh(ctx)
	return created, nil
}

// Toggle flips s.Enabled.
func (c *Controller) Toggle(ctx context.Context, s registry.Schedule) error {
	return c.SetEnabled(ctx, s, !s.Enabled)
}

// SetEnabled turns a schedule on or off.
func (c *Controller) SetEnabled(ctx context.Context, s registry.Schedule, enabled bool) error {
	key, err := c.Registry.KeyFor(s)
	if err != nil {
		return err
	}
	if _, err := c.Registry.UpdateSchedule(ctx, key, registry.ScheduleUpdate{Enabled: &enabled}); err != nil {
		c.report("Failed to update", err)
		return err
	}
	c.Refresh(ctx)
	return nil
}

// Delete removes a schedule after confirmation.
func (c *Controller) Delete(ctx context.Context, s registry.Schedule) error {
	key, err := c.Registry.KeyFor(s)
	if err != nil {
		return err
	}
	if !c.Confirmer.Confirm("Delete this schedule?") {
		return ErrCancelled
	}
	if err := c.Registry.DeleteSchedule(ctx, key); err != nil {
		c.report("Failed to delete", err)
		return err
	}
	c.Refresh(ctx)
	return nil
}

// Find looks a schedule up by name or id in the current list.
func (c *Controller) Find(ctx context.Context, ref string) (registry.Schedule, error) {
	list, err := c.Registry.ListSchedules(ctx)
	if err != nil {
		return registry.Schedule{}, err
	}
	for _, s := range list {
		if s.Name == ref || (s.ID != "" && s.ID == ref) {
			return s, nil
		}
	}
	return registry.Schedule{}, &registry.RequestError{Op: "find schedule", StatusCode: http.StatusNotFound, Detail: "Schedule not found: " + ref}
}

func (c *Controller) report(prefix string, err error) {
	if registry.IsUnauthorized(err) {
		return
	}
	c.View.ShowError(prefix + ": " + registry.Detail(err))
}
