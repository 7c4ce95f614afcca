package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

var evaluationRowColumns = []string{"id", "appointment_id", "pre_test_score", "post_test_score", "pre_test_total", "post_test_total", "tutor_notes",
	"tutor_ratings", "organization_ratings", "comment", "submitted_at", "created_at", "updated_at"}

func surveyEvaluation() *models.Evaluation {
	return &models.Evaluation{
		AppointmentID:       "a1",
		TutorRatings:        pq.Int64Array{5, 4, 5, 0, 3},
		OrganizationRatings: pq.Int64Array{4, 4, 4, 4, 4},
	}
}

func TestSubmitSurveyCompletesAppointmentAndInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = 'completed', updated_at = $2 WHERE id = $1 AND status = 'awaiting_feedback'")).
		WithArgs("a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE appointment_id = $1 FOR UPDATE")).
		WithArgs("a1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO evaluations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	eval := surveyEvaluation()
	require.NoError(t, repo.SubmitSurvey(context.Background(), eval))
	assert.NotEmpty(t, eval.ID)
	assert.NotNil(t, eval.SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitSurveyRollsBackWhenNotAwaitingFeedback(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = 'completed'")).
		WithArgs("a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SubmitSurvey(context.Background(), surveyEvaluation())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveScoresUpdatesExistingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE appointment_id = $1 FOR UPDATE")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(evaluationRowColumns).AddRow("e1", "a1", nil, nil, nil, nil, nil, "{}", "{}", nil, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET pre_test_score = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pre, post := 6.0, 9.0
	eval := &models.Evaluation{AppointmentID: "a1", PreTestScore: &pre, PostTestScore: &post}
	require.NoError(t, repo.SaveScores(context.Background(), eval))
	assert.Equal(t, "e1", eval.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
