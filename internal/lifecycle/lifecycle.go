// Package lifecycle decides what can be done to a session and carries it
// out: create, open, resume, close and delete, each followed by the
// navigation or listing refresh the user expects.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gluk-w/cohub/internal/poller"
	"github.com/gluk-w/cohub/internal/registry"
)

type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionResume Action = "resume"
	ActionDelete Action = "delete"
)

var (
	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("cancelled")
	// ErrNotOffered is returned for an action the session does not allow.
	ErrNotOffered = errors.New("action not available for this session")
)

// Actions returns what may be done to s. Alive sessions can be opened or
// closed; anything else can be resumed or deleted.
func Actions(s registry.Session) []Action {
	if s.Alive {
		return []Action{ActionOpen, ActionClose}
	}
	return []Action{ActionResume, ActionDelete}
}

// Offered reports whether a is one of Actions(s).
func Offered(s registry.Session, a Action) bool {
	for _, candidate := range Actions(s) {
		if candidate == a {
			return true
		}
	}
	return false
}

// Registry is the subset of the registry client the controller uses.
type Registry interface {
	ListSessions(ctx context.Context) ([]registry.Session, error)
	CreateSession(ctx context.Context) (string, error)
	ResumeSession(ctx context.Context, id string) error
	CloseSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
}

// Navigator moves the user into a session's terminal view.
type Navigator interface {
	Attach(ctx context.Context, sessionID string) error
}

type Confirmer interface {
	Confirm(prompt string) bool
}

// Row is one listed session with the actions offered for it.
type Row struct {
	Session registry.Session
	Actions []Action
}

type View interface {
	ShowSessions(rows []Row)
	// ShowError reports the failure of a user-triggered action.
	ShowError(msg string)
}

type Controller struct {
	Registry  Registry
	Navigator Navigator
	Confirmer Confirmer
	View      View
}

// Rows pairs each session with its actions, keeping registry order.
func Rows(sessions []registry.Session) []Row {
	rows := make([]Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, Row{Session: s, Actions: Actions(s)})
	}
	return rows
}

// Refresh re-fetches the listing. On failure the previous listing stays
// on screen.
func (c *Controller) Refresh(ctx context.Context) error {
	sessions, err := c.Registry.ListSessions(ctx)
	if err != nil {
		log.Printf("[lifecycle] failed to load sessions: %v", err)
		return err
	}
	c.View.ShowSessions(Rows(sessions))
	return nil
}

// Watch refreshes the listing every interval until ctx is done.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) {
	poller.New(interval, func(ctx context.Context) {
		c.Refresh(ctx)
	}).Run(ctx)
}

// Create allocates a session and attaches to it. The attach is attempted
// whatever the new session's state turns out to be.
func (c *Controller) Create(ctx context.Context) error {
	id, err := c.Registry.CreateSession(ctx)
	if err != nil {
		c.report("Failed to create session", err)
		return err
	}
	return c.Navigator.Attach(ctx, id)
}

// Open attaches to an alive session.
func (c *Controller) Open(ctx context.Context, s registry.Session) error {
	if !Offered(s, ActionOpen) {
		return ErrNotOffered
	}
	return c.Navigator.Attach(ctx, s.ID)
}

// Resume restarts a session that is not alive and attaches to it. A
// failure leaves the listing as it was.
func (c *Controller) Resume(ctx context.Context, s registry.Session) error {
	if !Offered(s, ActionResume) {
		return ErrNotOffered
	}
	if err := c.Registry.ResumeSession(ctx, s.ID); err != nil {
		c.report("Failed to resume", err)
		return err
	}
	return c.Navigator.Attach(ctx, s.ID)
}

// Close stops an alive session after confirmation and refreshes the
// listing. A failed refresh is only logged.
func (c *Controller) Close(ctx context.Context, s registry.Session) error {
	if !Offered(s, ActionClose) {
		return ErrNotOffered
	}
	if !c.Confirmer.Confirm(fmt.Sprintf("Close session %s?", s.ShortID())) {
		return ErrCancelled
	}
	if err := c.Registry.CloseSession(ctx, s.ID); err != nil {
		c.report("Failed to close", err)
		return err
	}
	c.Refresh(ctx)
	return nil
}

// Delete permanently removes a session that is not alive after
// confirmation and refreshes the listing.
func (c *Controller) Delete(ctx context.Context, s registry.Session) error {
	if !Offered(s, ActionDelete) {
		return ErrNotOffered
	}
	if !c.Confirmer.Confirm(fmt.Sprintf("Delete session %s permanently?", s.ShortID())) {
		return ErrCancelled
	}
	if err := c.Registry.DeleteSession(ctx, s.ID); err != nil {
		c.report("Failed to delete", err)
		return err
	}
	c.Refresh(ctx)
	return nil
}

// Perform runs action a on s.
func (c *Controller) Perform(ctx context.Context, a Action, s registry.Session) error {
	switch a {
	case ActionOpen:
		return c.Open(ctx, s)
	case ActionClose:
		return c.Close(ctx, s)
	case ActionResume:
		return c.Resume(ctx, s)
	case ActionDelete:
		return c.Delete(ctx, s)
	}
	return fmt.Errorf("%w: %s", ErrNotOffered, a)
}

// report shows a request failure. Auth failures are left to the token
// store's revocation handler, which sends the user back to login.
func (c *Controller) report(prefix string, err error) {
	if registry.IsUnauthorized(err) {
		return
	}
	c.View.ShowError(prefix + ": " + registry.Detail(err))
}
