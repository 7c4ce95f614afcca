package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

var appointmentRowColumns = []string{
	"id", "tutor_id", "tutee_id", "session_date", "start_time", "end_time", "subject", "topic", "mode",
	"session_location", "number_of_tutees", "status", "tutor_decline_reason", "tutee_decline_reason",
	"resource_link", "resource_note", "online_link", "file_link", "created_at", "updated_at",
	"tutor_name", "tutee_name", "tutor_online_link", "tutor_file_link", "has_evaluation", "survey_submitted",
}

func TestAppointmentCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(sqlmock.NewResult(1, 1))

	appt := &models.Appointment{TutorID: "tutor-1", TuteeID: "tutee-1", SessionDate: models.NewDate(2024, 5, 6), StartTime: "09:00", EndTime: "10:00", Subject: "Math", Mode: models.ModeOnline, NumberOfTutees: 1}
	require.NoError(t, repo.Create(context.Background(), appt))
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, models.StatusPending, appt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentFindByIDScansJoinedColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	now := time.Now()
	link := "https://meet.example/t1"
	rows := sqlmock.NewRows(appointmentRowColumns).AddRow(
		"a1", "tutor-1", "tutee-1", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), "09:00", "10:00", "Math", "Fractions", "Online",
		nil, 1, "confirmed", nil, nil,
		nil, nil, nil, nil, now, now,
		"Tutor One", "Tutee One", link, nil, false, false,
	)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.id = $1")).WithArgs("a1").WillReturnRows(rows)

	appt, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06", appt.SessionDate.String())
	assert.Equal(t, models.StatusConfirmed, appt.Status)
	require.NotNil(t, appt.TutorOnlineLink)
	assert.Equal(t, link, *appt.TutorOnlineLink)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAppointmentListBuildsFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	from := models.NewDate(2024, 5, 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.tutor_id = $1 AND a.status = ANY($2) AND a.session_date >= $3 AND (LOWER(a.subject) LIKE $4")).
		WithArgs("tutor-1", sqlmock.AnyArg(), from, "%math%").
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments a")).
		WithArgs("tutor-1", sqlmock.AnyArg(), from, "%math%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	appts, total, err := repo.List(context.Background(), models.AppointmentFilter{
		TutorID:  "tutor-1",
		Statuses: []models.AppointmentStatus{models.StatusPending, models.StatusConfirmed},
		DateFrom: &from,
		Search:   " Math ",
	})
	require.NoError(t, err)
	assert.Empty(t, appts)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentUpdateStatusGuardsCurrentStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	location := "Library room 2"
	mock.ExpectExec(`UPDATE appointments SET status = \S+, updated_at = \S+, session_location = \S+ WHERE id = \S+ AND status = \S+`).
		WithArgs("confirmed", sqlmock.AnyArg(), location, "a1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), models.AppointmentStatusUpdate{
		ID: "a1", From: models.StatusPending, To: models.StatusConfirmed, SessionLocation: &location,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentDeletePendingOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM appointments WHERE id = $1 AND status = 'pending'")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeletePending(context.Background(), "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentUpdateResourcesRequiresActiveSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	link := "https://docs.example/notes"
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status IN ('confirmed', 'started')")).
		WithArgs("a1", link, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateResources(context.Background(), "a1", &link, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
