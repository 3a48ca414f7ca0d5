// Package poller re-runs a refresh function on a fixed interval.
//
// Runs are not serialized: a slow refresh may overlap the next tick or a
// manual refresh, and whichever response arrives last is what the caller
// ends up showing.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// MinInterval is the smallest supported interval.
const MinInterval = time.Second

type Poller struct {
	interval time.Duration
	fn       func(context.Context)
	cron     *cron.Cron
}

// New creates a stopped poller. Intervals below MinInterval are raised to
// it.
func New(interval time.Duration, fn func(context.Context)) *Poller {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Poller{interval: interval, fn: fn}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start runs fn once before returning, then every interval until Stop or
// until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.fn(ctx)

	p.cron = cron.New()
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		p.fn(ctx)
	}))
	p.cron.Start()
	log.Printf("[poller] polling every %s", p.interval)
}

// Stop halts the schedule and waits for in-flight runs.
func (p *Poller) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
}

// Run starts the poller and blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
}
