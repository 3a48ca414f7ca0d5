package registry

import (
	"encoding/json"
	"time"
)

// Session is one remote shell record. FirstMessage and UpdatedAt are nil
// when the registry has nothing to report. Status is an opaque display
// label (idle, working, dead, ...); Alive says whether a backing process
// can be attached to.
type Session struct {
	ID           string     `json:"session_id" yaml:"session_id"`
	FirstMessage *string    `json:"first_message" yaml:"first_message"`
	UpdatedAt    *time.Time `json:"updated_at" yaml:"updated_at"`
	Status       string     `json:"status" yaml:"status"`
	Alive        bool       `json:"alive" yaml:"alive"`
}

// naive timestamps (no zone) are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           string  `json:"session_id"`
		FirstMessage *string `json:"first_message"`
		UpdatedAt    *string `json:"updated_at"`
		Status       string  `json:"status"`
		Alive        bool    `json:"alive"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Session{ID: raw.ID, Status: raw.Status, Alive: raw.Alive}
	if raw.FirstMessage != nil && *raw.FirstMessage != "" {
		s.FirstMessage = raw.FirstMessage
	}
	if raw.UpdatedAt != nil && *raw.UpdatedAt != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, *raw.UpdatedAt); err == nil {
				s.UpdatedAt = &t
				break
			}
		}
	}
	return nil
}

// ShortID is the 8-character prefix shown in listings.
func (s Session) ShortID() string {
	if len(s.ID) <= 8 {
		return s.ID
	}
	return s.ID[:8]
}

// Schedule is a recurring task definition. Cron is opaque to the client:
// it is displayed and round-tripped, never parsed.
type Schedule struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
	Cron    string `json:"cron" yaml:"cron"`
	Workdir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// ScheduleInput is the body of a schedule creation.
type ScheduleInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
}

// ScheduleUpdate is a partial update; nil fields are left unchanged.
type ScheduleUpdate struct {
	Content *string `json:"content,omitempty"`
	Cron    *string `json:"cron,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// UserSessions groups one user's sessions in the admin overview.
type UserSessions struct {
	Username string    `json:"username" yaml:"username"`
	Sessions []Session `json:"sessions" yaml:"sessions"`
}

// Overview is the combined admin snapshot.
type Overview struct {
	Users     []UserSessions `json:"users" yaml:"users"`
	Schedules []Schedule     `json:"schedules" yaml:"schedules"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token    string `json:"token"`
	UID      string `json:"uid"`
	Username string `json:"username"`
}
