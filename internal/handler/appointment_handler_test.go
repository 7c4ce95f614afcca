package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
)

type sessionStore struct {
	mu    sync.Mutex
	items map[string]*models.Appointment
}

func (s *sessionStore) Create(_ context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt.ID = "new"
	stored := *appt
	s.items[appt.ID] = &stored
	return nil
}

func (s *sessionStore) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *a
	return &found, nil
}

func (s *sessionStore) List(_ context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, a := range s.items {
		if filter.TutorID != "" && a.TutorID != filter.TutorID {
			continue
		}
		if filter.TuteeID != "" && a.TuteeID != filter.TuteeID {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *sessionStore) ListByStatuses(context.Context, []models.AppointmentStatus, int) ([]models.Appointment, error) {
	return nil, nil
}

func (s *sessionStore) UpdateStatus(_ context.Context, update models.AppointmentStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[update.ID]
	if !ok || a.Status != update.From {
		return sql.ErrNoRows
	}
	a.Status = update.To
	return nil
}

func (s *sessionStore) UpdateSchedule(_ context.Context, update models.AppointmentScheduleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[update.ID]
	if !ok {
		return sql.ErrNoRows
	}
	a.SessionDate, a.StartTime, a.EndTime = update.SessionDate, update.StartTime, update.EndTime
	return nil
}

func (s *sessionStore) UpdateResources(_ context.Context, id string, link, note *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.ResourceLink, a.ResourceNote = link, note
	return nil
}

func (s *sessionStore) UpdateLinks(_ context.Context, id string, onlineLink, fileLink *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.OnlineLink, a.FileLink = onlineLink, fileLink
	return nil
}

func (s *sessionStore) DeletePending(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok || a.Status != models.StatusPending {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

type evaluationStore struct {
	sessions *sessionStore
	evals    map[string]*models.Evaluation
}

func (e *evaluationStore) FindByAppointment(_ context.Context, id string) (*models.Evaluation, error) {
	eval, ok := e.evals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return eval, nil
}

func (e *evaluationStore) SaveScores(_ context.Context, eval *models.Evaluation) error {
	e.evals[eval.AppointmentID] = eval
	return nil
}

func (e *evaluationStore) SubmitSurvey(_ context.Context, eval *models.Evaluation) error {
	e.sessions.mu.Lock()
	e.sessions.items[eval.AppointmentID].Status = models.StatusCompleted
	e.sessions.mu.Unlock()
	e.evals[eval.AppointmentID] = eval
	return nil
}

type mondayAvailability struct{}

func (mondayAvailability) ListByTutor(_ context.Context, tutorID string) ([]models.TutorAvailability, error) {
	return []models.TutorAvailability{{TutorID: tutorID, DayOfWeek: "Monday", StartTime: "08:00", EndTime: "12:00"}}, nil
}

type userDirectory map[string]*models.User

func (u userDirectory) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

const (
	routeTutor = "tutor-1"
	routeTutee = "tutee-1"
)

// upcomingMonday is at least a week ahead so no session in these tests expires.
func upcomingMonday() models.Date {
	d := time.Now().In(service.DefaultSessionPolicy().Location).AddDate(0, 0, 7)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return models.DateOf(d)
}

func newAppointmentRouter(t *testing.T, userID string, role models.UserRole) (*gin.Engine, *sessionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	date := upcomingMonday()
	session := func(id string, status models.AppointmentStatus) *models.Appointment {
		return &models.Appointment{
			ID: id, TutorID: routeTutor, TuteeID: routeTutee, SessionDate: date,
			StartTime: "09:00", EndTime: "10:00", Subject: "Physics", Mode: models.ModeOnline,
			NumberOfTutees: 1, Status: status,
		}
	}
	store := &sessionStore{items: map[string]*models.Appointment{
		"p1":  session("p1", models.StatusPending),
		"c1":  session("c1", models.StatusConfirmed),
		"s1":  session("s1", models.StatusStarted),
		"af1": session("af1", models.StatusAwaitingFeedback),
	}}
	sessions := service.NewAppointmentService(service.AppointmentDeps{
		Repo:         store,
		Availability: mondayAvailability{},
		Users: userDirectory{
			routeTutor: {ID: routeTutor, FullName: "Dewi", Role: models.RoleTutor, Active: true},
			routeTutee: {ID: routeTutee, FullName: "Raka", Role: models.RoleTutee, Active: true},
		},
	})
	evaluations := service.NewEvaluationService(&evaluationStore{sessions: store, evals: map[string]*models.Evaluation{}}, sessions, nil, nil, nil, nil)

	r := gin.New()
	group := r.Group("/appointments", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
		c.Next()
	})
	NewAppointmentHandler(sessions, evaluations).Register(group)
	return r, store
}

func TestAppointmentRoutesRoleGates(t *testing.T) {
	bookBody := `{"tutor_id":"tutor-1","date":"` + upcomingMonday().String() + `","start_time":"10:00","end_time":"11:00","subject":"Physics","mode":"online"}`
	survey := `{"tutor_ratings":[5,4,5,0,4],"organization_ratings":[4,4,4,4,4]}`

	cases := []struct {
		name   string
		userID string
		role   models.UserRole
		method string
		path   string
		body   string
		want   int
	}{
		{"tutee books", routeTutee, models.RoleTutee, http.MethodPost, "/appointments", bookBody, http.StatusCreated},
		{"tutor cannot book", routeTutor, models.RoleTutor, http.MethodPost, "/appointments", bookBody, http.StatusForbidden},
		{"tutee reschedules pending", routeTutee, models.RoleTutee, http.MethodPut, "/appointments/p1/schedule", `{"date":"` + upcomingMonday().String() + `","start_time":"10:00","end_time":"11:00"}`, http.StatusOK},
		{"tutor confirms", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/p1/confirm", `{"location":"Library"}`, http.StatusOK},
		{"confirm needs location", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/p1/confirm", `{"location":" "}`, http.StatusBadRequest},
		{"tutee cannot confirm", routeTutee, models.RoleTutee, http.MethodPost, "/appointments/p1/confirm", `{"location":"Library"}`, http.StatusForbidden},
		{"tutor declines", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/p1/decline", `{"reason":"fully booked"}`, http.StatusOK},
		{"tutee cannot decline", routeTutee, models.RoleTutee, http.MethodPost, "/appointments/p1/decline", `{"reason":"x"}`, http.StatusForbidden},
		{"tutor starts", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/c1/start", `{}`, http.StatusOK},
		{"tutee cannot start", routeTutee, models.RoleTutee, http.MethodPost, "/appointments/c1/start", `{}`, http.StatusForbidden},
		{"tutee cancels", routeTutee, models.RoleTutee, http.MethodPost, "/appointments/c1/cancel", `{"reason":"exam clash"}`, http.StatusOK},
		{"tutor cancels", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/c1/cancel", `{"reason":"ill"}`, http.StatusOK},
		{"admin cannot cancel", "admin-1", models.RoleAdmin, http.MethodPost, "/appointments/c1/cancel", `{"reason":"x"}`, http.StatusForbidden},
		{"tutor ends", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/s1/end", `{}`, http.StatusOK},
		{"tutee cannot end", routeTutee, models.RoleTutee, http.MethodPost, "/appointments/s1/end", `{}`, http.StatusForbidden},
		{"tutee completes", routeTutee, models.RoleTutee, http.MethodPost, "/appointments/af1/complete", survey, http.StatusOK},
		{"tutor cannot complete", routeTutor, models.RoleTutor, http.MethodPost, "/appointments/af1/complete", survey, http.StatusForbidden},
		{"tutee shares resources", routeTutee, models.RoleTutee, http.MethodPut, "/appointments/c1/resources", `{"resource_link":"https://notes.example/ch3"}`, http.StatusOK},
		{"tutor shares resources", routeTutor, models.RoleTutor, http.MethodPut, "/appointments/c1/resources", `{"resource_note":"bring calculator"}`, http.StatusOK},
		{"outsider cannot share resources", "tutee-2", models.RoleTutee, http.MethodPut, "/appointments/c1/resources", `{"resource_note":"x"}`, http.StatusNotFound},
		{"tutor sets links", routeTutor, models.RoleTutor, http.MethodPut, "/appointments/c1/links", `{"online_link":"https://meet.example/abc"}`, http.StatusOK},
		{"tutee cannot set links", routeTutee, models.RoleTutee, http.MethodPut, "/appointments/c1/links", `{"online_link":"https://meet.example/abc"}`, http.StatusForbidden},
		{"tutee deletes pending", routeTutee, models.RoleTutee, http.MethodDelete, "/appointments/p1", "", http.StatusNoContent},
		{"tutor deletes pending", routeTutor, models.RoleTutor, http.MethodDelete, "/appointments/p1", "", http.StatusNoContent},
		{"confirmed is not deletable", routeTutee, models.RoleTutee, http.MethodDelete, "/appointments/c1", "", http.StatusConflict},
		{"admin cannot delete", "admin-1", models.RoleAdmin, http.MethodDelete, "/appointments/p1", "", http.StatusForbidden},
		{"tutor lists", routeTutor, models.RoleTutor, http.MethodGet, "/appointments", "", http.StatusOK},
		{"admin reads any session", "admin-1", models.RoleAdmin, http.MethodGet, "/appointments/c1", "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newAppointmentRouter(t, tc.userID, tc.role)
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestTuteeResourcesArePersisted(t *testing.T) {
	r, store := newAppointmentRouter(t, routeTutee, models.RoleTutee)
	req := httptest.NewRequest(http.MethodPut, "/appointments/c1/resources",
		bytes.NewBufferString(`{"resource_link":"https://notes.example/ch3","resource_note":"chapter 3"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := store.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, stored.ResourceLink)
	assert.Equal(t, "https://notes.example/ch3", *stored.ResourceLink)
	require.NotNil(t, stored.ResourceNote)
	assert.Equal(t, "chapter 3", *stored.ResourceNote)
}
