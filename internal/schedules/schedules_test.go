package schedules

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gluk-w/cohub/internal/auth"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/gluk-w/cohub/internal/registrytest"
)

type fakeConfirmer struct{ answer bool }

func (c fakeConfirmer) Confirm(string) bool { return c.answer }

type fakeView struct {
	lists  [][]registry.Schedule
	errors []string
}

func (v *fakeView) ShowSchedules(s []registry.Schedule) { v.lists = append(v.lists, s) }
func (v *fakeView) ShowError(msg string)               { v.errors = append(v.errors, msg) }

func setup(t *testing.T, byID bool) (*registrytest.Server, *fakeView, *Controller) {
	t.Helper()
	var srvOpts []registrytest.Option
	var regOpts []registry.Option
	if byID {
		srvOpts = append(srvOpts, registrytest.WithScheduleKeyByID())
		regOpts = append(regOpts, registry.WithScheduleKeyKind(registry.KeyByID))
	}
	srv := registrytest.New(t, srvOpts...)
	srv.AddUser(t, "alice", "Alice", "pw", false)
	tokens := auth.NewStore(nil)
	tokens.Set(auth.Credential{Token: srv.IssueToken(t, "alice"), UID: "alice", Username: "Alice"})
	view := &fakeView{}
	return srv, view, &Controller{
		Registry:  registry.New(srv.APIURL(), tokens, regOpts...),
		Confirmer: fakeConfirmer{answer: true},
		View:      view,
	}
}

func TestAddRequiresFields(t *testing.T) {
	srv, view, ctl := setup(t, false)

	_, err := ctl.Add(context.Background(), "nightly", "  ", "0 3 * * *")
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("Add = %v", err)
	}
	if n := srv.Requests(http.MethodPost, "/schedules"); n != 0 {
		t.Error("incomplete schedule reached the registry")
	}
	if len(view.errors) != 1 {
		t.Errorf("errors = %q", view.errors)
	}
}

func TestAddCreatesEnabled(t *testing.T) {
	srv, view, ctl := setup(t, false)

	created, err := ctl.Add(context.Background(), " nightly ", "run tests", "0 3 * * *")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created.Name != "nightly" || !created.Enabled {
		t.Errorf("created = %+v", created)
	}
	if got := srv.Schedules("alice"); len(got) != 1 {
		t.Errorf("stored = %+v", got)
	}
	if len(view.lists) != 1 || len(view.lists[0]) != 1 {
		t.Errorf("list not refreshed: %+v", view.lists)
	}
}

func TestAddInvalidCronReported(t *testing.T) {
	_, view, ctl := setup(t, false)

	if _, err := ctl.Add(context.Background(), "bad", "x", "whenever"); err == nil {
		t.Fatal("expected error")
	}
	if len(view.errors) != 1 || !strings.HasPrefix(view.errors[0], "Failed to add schedule: Invalid cron expression") {
		t.Errorf("errors = %q", view.errors)
	}
}

func TestToggle(t *testing.T) {
	for _, byID := range []bool{false, true} {
		srv, _, ctl := setup(t, byID)
		srv.AddSchedule(registrytest.Schedule{Owner: "alice", Name: "nightly", Content: "x", Cron: "0 3 * * *", Enabled: true})

		s, err := ctl.Find(context.Background(), "nightly")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if err := ctl.Toggle(context.Background(), s); err != nil {
			t.Fatalf("Toggle (byID=%v): %v", byID, err)
		}
		if got := srv.Schedules("alice"); got[0].Enabled {
			t.Errorf("byID=%v: still enabled", byID)
		}
	}
}

func TestDelete(t *testing.T) {
	srv, view, ctl := setup(t, false)
	srv.AddSchedule(registrytest.Schedule{Owner: "alice", Name: "nightly", Content: "x", Cron: "0 3 * * *"})

	s, err := ctl.Find(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := ctl.Delete(context.Background(), s); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := srv.Schedules("alice"); len(got) != 0 {
		t.Errorf("stored = %+v", got)
	}
	if last := view.lists[len(view.lists)-1]; len(last) != 0 {
		t.Errorf("list after delete = %+v", last)
	}
}

func TestDeleteDeclined(t *testing.T) {
	srv, _, ctl := setup(t, false)
	ctl.Confirmer = fakeConfirmer{answer: false}
	srv.AddSchedule(registrytest.Schedule{Owner: "alice", Name: "nightly", Content: "x", Cron: "0 3 * * *"})

	if err := ctl.Delete(context.Background(), registry.Schedule{Name: "nightly"}); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Delete = %v", err)
	}
	if len(srv.Schedules("alice")) != 1 {
		t.Error("declined delete removed the schedule")
	}
}

func TestFindMissing(t *testing.T) {
	_, _, ctl := setup(t, false)
	if _, err := ctl.Find(context.Background(), "nope"); err == nil {
		t.Error("expected not found")
	}
}

func TestAddSucceedsWhenRefreshFails(t *testing.T) {
	srv, view, ctl := setup(t, false)
	srv.FailNext(http.MethodGet, "/schedules", http.StatusBadGateway, "upstream down")

	created, err := ctl.Add(context.Background(), "nightly", "run tests", "0 3 * * *")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created == nil || created.Name != "nightly" {
		t.Errorf("created = %+v", created)
	}
	if got := srv.Schedules("alice"); len(got) != 1 {
		t.Errorf("stored = %+v", got)
	}
	if len(view.lists) != 0 || len(view.errors) != 0 {
		t.Errorf("lists = %d, errors = %q", len(view.lists), view.errors)
	}
}
