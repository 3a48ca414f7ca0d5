// Package admin shows the read-only administrative overview: every user's
// sessions and every schedule, fetched in one call.
package admin

import (
	"context"
	"log"
	"time"

	"github.com/gluk-w/cohub/internal/poller"
	"github.com/gluk-w/cohub/internal/registry"
)

type Fetcher interface {
	AdminOverview(ctx context.Context) (*registry.Overview, error)
}

// View renders the two halves of the overview independently.
type View interface {
	ShowUsers(users []registry.UserSessions)
	ShowSchedules(schedules []registry.Schedule)
}

type Aggregator struct {
	Fetcher Fetcher
	View    View
}

// Refresh fetches the overview and renders both sections. A failed fetch
// leaves whatever is on screen.
func (a *Aggregator) Refresh(ctx context.Context) error {
	ov, err := a.Fetcher.AdminOverview(ctx)
	if err != nil {
		log.Printf("[admin] failed to load overview: %v", err)
		return err
	}
	a.View.ShowUsers(ov.Users)
	a.View.ShowSchedules(ov.Schedules)
	return nil
}

// Watch refreshes every interval until ctx is done.
func (a *Aggregator) Watch(ctx context.Context, interval time.Duration) {
	poller.New(interval, func(ctx context.Context) {
		a.Refresh(ctx)
	}).Run(ctx)
}
