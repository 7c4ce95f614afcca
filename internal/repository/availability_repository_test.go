package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestAvailabilityListByTutor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "tutor_id", "day_of_week", "start_time", "end_time", "created_at"}).
		AddRow("s1", "t1", "Monday", "08:00", "10:00", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM tutor_availability WHERE tutor_id = $1")).
		WithArgs("t1").
		WillReturnRows(rows)

	slots, err := repo.ListByTutor(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Monday", slots[0].DayOfWeek)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityReplaceIsTransactional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tutor_availability WHERE tutor_id = $1")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO tutor_availability").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tutor_availability").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), "t1", []models.TutorAvailability{
		{DayOfWeek: "Monday", StartTime: "08:00", EndTime: "10:00"},
		{DayOfWeek: "Tuesday", StartTime: "13:00", EndTime: "15:00"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
