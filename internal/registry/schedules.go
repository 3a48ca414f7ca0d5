package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// KeyKind is how a deployment addresses schedules: by human-chosen name or
// by server-assigned id. A client uses exactly one kind.
type KeyKind int

const (
	KeyByName KeyKind = iota
	KeyByID
)

func (k KeyKind) String() string {
	if k == KeyByID {
		return "id"
	}
	return "name"
}

// ParseKeyKind maps the COHUB_SCHEDULE_KEY setting to a KeyKind.
func ParseKeyKind(s string) (KeyKind, error) {
	switch s {
	case "", "name":
		return KeyByName, nil
	case "id":
		return KeyByID, nil
	}
	return KeyByName, fmt.Errorf("unknown schedule key kind %q (want name or id)", s)
}

// ScheduleKey is an opaque schedule identifier with one backing
// representation.
type ScheduleKey struct {
	kind  KeyKind
	value string
}

func NameKey(name string) ScheduleKey { return ScheduleKey{kind: KeyByName, value: name} }
func IDKey(id string) ScheduleKey     { return ScheduleKey{kind: KeyByID, value: id} }

func (k ScheduleKey) Kind() KeyKind  { return k.kind }
func (k ScheduleKey) String() string { return k.value }

// Key returns the schedule's identifier in the given kind.
func (s Schedule) Key(kind KeyKind) (ScheduleKey, error) {
	if kind == KeyByID {
		if s.ID == "" {
			return ScheduleKey{}, fmt.Errorf("schedule %q has no id: %w", s.Name, ErrScheduleKeyKind)
		}
		return IDKey(s.ID), nil
	}
	if s.Name == "" {
		return ScheduleKey{}, fmt.Errorf("schedule %q has no name: %w", s.ID, ErrScheduleKeyKind)
	}
	return NameKey(s.Name), nil
}

// ScheduleKeyKind returns the kind this client addresses schedules by.
func (c *Client) ScheduleKeyKind() KeyKind {
	return c.keyKind
}

// KeyFor is shorthand for s.Key(c.ScheduleKeyKind()).
func (c *Client) KeyFor(s Schedule) (ScheduleKey, error) {
	return s.Key(c.keyKind)
}

func (c *Client) schedulePath(op string, key ScheduleKey) (string, error) {
	if key.kind != c.keyKind {
		return "", fmt.Errorf("%s: %s key given to a %s-keyed registry: %w", op, key.kind, c.keyKind, ErrScheduleKeyKind)
	}
	if key.value == "" {
		return "", fmt.Errorf("%s: empty schedule key", op)
	}
	return "/schedules/" + url.PathEscape(key.value), nil
}

// ListSchedules returns the caller's schedules.
func (c *Client) ListSchedules(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	if err := c.do(ctx, "list schedules", http.MethodGet, "/schedules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSchedule adds a schedule and returns the stored record.
func (c *Client) CreateSchedule(ctx context.Context, in ScheduleInput) (*Schedule, error) {
	var out Schedule
	if err := c.do(ctx, "create schedule", http.MethodPost, "/schedules", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSchedule applies a partial update (typically toggling Enabled).
func (c *Client) UpdateSchedule(ctx context.Context, key ScheduleKey, upd ScheduleUpdate) (*Schedule, error) {
	path, err := c.schedulePath("update schedule", key)
	if err != nil {
		return nil, err
	}
	var out Schedule
	if err := c.do(ctx, "update schedule", http.MethodPut, path, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSchedule removes a schedule permanently.
func (c *Client) DeleteSchedule(ctx context.Context, key ScheduleKey) error {
	path, err := c.schedulePath("delete schedule", key)
	if err != nil {
		return err
	}
	return c.do(ctx, "delete schedule", http.MethodDelete, path, nil, nil)
}
