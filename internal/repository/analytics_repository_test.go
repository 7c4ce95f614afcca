package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestAnalyticsStatusCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).AddRow("completed", 4).AddRow("pending", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.status, COUNT(*) AS count FROM appointments a WHERE a.tutor_id = $1 GROUP BY a.status")).
		WithArgs("tutor-1").
		WillReturnRows(rows)

	counts, err := repo.StatusCounts(context.Background(), models.AnalyticsFilter{TutorID: "tutor-1"})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.StatusCompleted, counts[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsSubjectCountsClampsLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY a.subject ORDER BY count DESC, a.subject ASC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"subject", "count"}).AddRow("Math", 3))

	counts, err := repo.SubjectCounts(context.Background(), models.AnalyticsFilter{}, 500)
	require.NoError(t, err)
	assert.Equal(t, "Math", counts[0].Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsScoreSamplesAppendsScoreCondition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	from := models.NewDate(2024, 1, 1)
	total := 10.0
	rows := sqlmock.NewRows([]string{"appointment_id", "tutor_id", "tutor_name", "tutee_id", "tutee_name", "subject", "pre_test_score", "post_test_score", "pre_test_total", "session_date"}).
		AddRow("a1", "t1", "Tutor", "s1", "Tutee", "Math", 6.0, 9.0, total, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.session_date >= $1 AND e.pre_test_score IS NOT NULL AND e.post_test_score IS NOT NULL")).
		WithArgs(from).
		WillReturnRows(rows)

	samples, err := repo.ScoreSamples(context.Background(), models.AnalyticsFilter{DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.NotNil(t, samples[0].PreTestTotal)
	assert.Equal(t, 10.0, *samples[0].PreTestTotal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
