package admin

import (
	"context"
	"net/http"
	"testing"

	"github.com/gluk-w/cohub/internal/auth"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/gluk-w/cohub/internal/registrytest"
)

type recordingView struct {
	users     [][]registry.UserSessions
	schedules [][]registry.Schedule
}

func (v *recordingView) ShowUsers(u []registry.UserSessions)  { v.users = append(v.users, u) }
func (v *recordingView) ShowSchedules(s []registry.Schedule) { v.schedules = append(v.schedules, s) }

func setup(t *testing.T) (*registrytest.Server, *recordingView, *Aggregator) {
	t.Helper()
	srv := registrytest.New(t)
	srv.AddUser(t, "root", "admin", "pw", true)
	srv.AddUser(t, "alice", "alice", "pw", false)
	tokens := auth.NewStore(nil)
	tokens.Set(auth.Credential{Token: srv.IssueToken(t, "root"), UID: "root", Username: "admin"})
	view := &recordingView{}
	return srv, view, &Aggregator{Fetcher: registry.New(srv.APIURL(), tokens), View: view}
}

func TestRefreshRendersBothSections(t *testing.T) {
	srv, view, agg := setup(t)
	srv.AddSession(registrytest.Session{Owner: "alice", FirstMessage: "hello", Status: "working", Alive: true})
	srv.AddSession(registrytest.Session{Owner: "alice", Status: "dead"})
	srv.AddSchedule(registrytest.Schedule{Owner: "alice", Name: "nightly", Content: "x", Cron: "0 3 * * *", Workdir: "/srv", Enabled: false})

	if err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(view.users) != 1 || len(view.schedules) != 1 {
		t.Fatalf("renders: users=%d schedules=%d", len(view.users), len(view.schedules))
	}

	users := view.users[0]
	if len(users) != 2 || users[0].Username != "admin" || users[1].Username != "alice" {
		t.Fatalf("users = %+v", users)
	}
	if len(users[0].Sessions) != 0 || len(users[1].Sessions) != 2 {
		t.Errorf("session counts: %d, %d", len(users[0].Sessions), len(users[1].Sessions))
	}
	for _, s := range users[1].Sessions {
		if s.Alive {
			t.Error("overview sessions carry no alive flag")
		}
	}

	sch := view.schedules[0]
	if len(sch) != 1 || sch[0].Workdir != "/srv" || sch[0].Enabled {
		t.Errorf("schedules = %+v", sch)
	}
}

func TestRefreshFailureKeepsScreen(t *testing.T) {
	srv, view, agg := setup(t)
	srv.FailNext(http.MethodGet, "/admin/overview", http.StatusInternalServerError, "boom")

	if err := agg.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(view.users) != 0 || len(view.schedules) != 0 {
		t.Error("view updated after a failed fetch")
	}
}

func TestNoWritesToRegistry(t *testing.T) {
	srv, _, agg := setup(t)
	agg.Refresh(context.Background())
	if n := srv.Requests(http.MethodGet, "/admin/overview"); n != 1 {
		t.Errorf("overview requests = %d", n)
	}
}
