package registrytest

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type sessionResponse struct {
	SessionID    string `json:"session_id"`
	FirstMessage string `json:"first_message"`
	UpdatedAt    string `json:"updated_at"`
	Status       string `json:"status"`
	Alive        *bool  `json:"alive,omitempty"`
}

type scheduleResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Cron    string `json:"cron"`
	Workdir string `json:"workdir"`
	Enabled bool   `json:"enabled"`
}

func sessionJSON(sess *Session, withAlive bool) sessionResponse {
	resp := sessionResponse{
		SessionID:    sess.ID,
		FirstMessage: sess.FirstMessage,
		Status:       sess.Status,
	}
	if !sess.UpdatedAt.IsZero() {
		resp.UpdatedAt = sess.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if withAlive {
		alive := sess.Alive
		resp.Alive = &alive
	}
	return resp
}

func scheduleJSON(sch *Schedule) scheduleResponse {
	return scheduleResponse{
		ID:      sch.ID,
		Name:    sch.Name,
		Content: sch.Content,
		Cron:    sch.Cron,
		Workdir: sch.Workdir,
		Enabled: sch.Enabled,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID      string `json:"uid"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	u := s.users[body.UID]
	s.mu.Unlock()
	if u == nil || !checkPassword(body.Password, u.Hash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := s.tokens.Create(u.UID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"uid":      u.UID,
		"username": u.Username,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	uid := currentUID(r)
	s.mu.Lock()
	out := []sessionResponse{}
	for _, sess := range s.sessions {
		if sess.Owner == uid {
			out = append(out, sessionJSON(sess, true))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     currentUID(r),
		UpdatedAt: time.Now(),
		Status:    "idle",
		Alive:     true,
	}
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findSession(currentUID(r), chi.URLParam(r, "id"))
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if sess.Alive {
		writeError(w, http.StatusBadRequest, "Session is already running")
		return
	}
	sess.Alive = true
	sess.Status = "idle"
	sess.UpdatedAt = time.Now()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sess := s.findSession(currentUID(r), id)
	if sess == nil || !sess.Alive {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Session not running")
		return
	}
	sess.Alive = false
	sess.Status = "dead"
	sess.UpdatedAt = time.Now()
	conns := s.terms[id]
	delete(s.terms, id)
	s.mu.Unlock()

	for _, tc := range conns {
		tc.Close(4000, "Session closed")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	sess := s.findSession(currentUID(r), id)
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if sess.Alive {
		writeError(w, http.StatusConflict, "Close the session before deleting it")
		return
	}
	for i, candidate := range s.sessions {
		if candidate == sess {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	uid := currentUID(r)
	s.mu.Lock()
	out := []scheduleResponse{}
	for _, sch := range s.schedules {
		if sch.Owner == uid {
			out = append(out, scheduleJSON(sch))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		Cron    string `json:"cron"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Name == "" || body.Content == "" || body.Cron == "" {
		writeError(w, http.StatusBadRequest, "name, content and cron are required")
		return
	}
	if _, err := cron.ParseStandard(body.Cron); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cron expression: "+err.Error())
		return
	}

	uid := currentUID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sch := range s.schedules {
		if sch.Owner == uid && sch.Name == body.Name {
			writeError(w, http.StatusBadRequest, "A schedule with that name already exists")
			return
		}
	}
	sch := &Schedule{
		ID:      uuid.NewString(),
		Owner:   uid,
		Name:    body.Name,
		Content: body.Content,
		Cron:    body.Cron,
		Enabled: body.Enabled == nil || *body.Enabled,
	}
	s.schedules = append(s.schedules, sch)
	writeJSON(w, http.StatusOK, scheduleJSON(sch))
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content *string `json:"content"`
		Cron    *string `json:"cron"`
		Enabled *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Cron != nil {
		if _, err := cron.ParseStandard(*body.Cron); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cron expression: "+err.Error())
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sch := s.findSchedule(currentUID(r), chi.URLParam(r, "key"))
	if sch == nil {
		writeError(w, http.StatusNotFound, "Schedule not found")
		return
	}
	if body.Content != nil {
		sch.Content = *body.Content
	}
	if body.Cron != nil {
		sch.Cron = *body.Cron
	}
	if body.Enabled != nil {
		sch.Enabled = *body.Enabled
	}
	writeJSON(w, http.StatusOK, scheduleJSON(sch))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch := s.findSchedule(currentUID(r), chi.URLParam(r, "key"))
	if sch == nil {
		writeError(w, http.StatusNotFound, "Schedule not found")
		return
	}
	for i, candidate := range s.schedules {
		if candidate == sch {
			s.schedules = append(s.schedules[:i], s.schedules[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	type userSessions struct {
		Username string            `json:"username"`
		Sessions []sessionResponse `json:"sessions"`
	}

	s.mu.Lock()
	users := make([]*user, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	out := struct {
		Users     []userSessions     `json:"users"`
		Schedules []scheduleResponse `json:"schedules"`
	}{Users: []userSessions{}, Schedules: []scheduleResponse{}}
	for _, u := range users {
		entry := userSessions{Username: u.Username, Sessions: []sessionResponse{}}
		for _, sess := range s.sessions {
			if sess.Owner == u.UID {
				entry.Sessions = append(entry.Sessions, sessionJSON(sess, false))
			}
		}
		out.Users = append(out.Users, entry)
	}
	for _, sch := range s.schedules {
		out.Schedules = append(out.Schedules, scheduleJSON(sch))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}
