package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/database"
)

const evaluationColumns = `id, appointment_id, pre_test_score, post_test_score, pre_test_total, post_test_total, tutor_notes,
tutor_ratings, organization_ratings, comment, submitted_at, created_at, updated_at`

// EvaluationRepository persists tutor scoring and satisfaction surveys.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// FindByAppointment returns the evaluation of an appointment or sql.ErrNoRows.
func (r *EvaluationRepository) FindByAppointment(ctx context.Context, appointmentID string) (*models.Evaluation, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluations WHERE appointment_id = $1", evaluationColumns)
	var eval models.Evaluation
	if err := r.db.GetContext(ctx, &eval, query, appointmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find evaluation: %w", err)
	}
	return &eval, nil
}

// SaveScores stores the tutor's scores, inserting the row on first use.
func (r *EvaluationRepository) SaveScores(ctx context.Context, eval *models.Evaluation) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		existing, err := lockEvaluation(ctx, tx, eval.AppointmentID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if existing == nil {
			prepareNewEvaluation(eval, now)
			return insertEvaluation(ctx, tx, eval)
		}
		eval.ID = existing.ID
		eval.CreatedAt = existing.CreatedAt
		eval.UpdatedAt = now
		const query = `UPDATE evaluations SET pre_test_score = $2, post_test_score = $3, pre_test_total = $4, post_test_total = $5,
tutor_notes = $6, updated_at = $7 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, eval.ID, eval.PreTestScore, eval.PostTestScore, eval.PreTestTotal, eval.PostTestTotal, eval.TutorNotes, eval.UpdatedAt); err != nil {
			return fmt.Errorf("update evaluation scores: %w", err)
		}
		return nil
	})
}

// SubmitSurvey stores the tutee's survey and moves the appointment from awaiting_feedback to
// completed in the same transaction. It returns sql.ErrNoRows when the appointment is no longer
// awaiting feedback, leaving the survey unsaved.
func (r *EvaluationRepository) SubmitSurvey(ctx context.Context, eval *models.Evaluation) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		const flip = `UPDATE appointments SET status = 'completed', updated_at = $2 WHERE id = $1 AND status = 'awaiting_feedback'`
		result, err := tx.ExecContext(ctx, flip, eval.AppointmentID, now)
		if err != nil {
			return fmt.Errorf("complete appointment: %w", err)
		}
		if err := expectAffected(result, "complete appointment"); err != nil {
			return err
		}

		existing, err := lockEvaluation(ctx, tx, eval.AppointmentID)
		if err != nil {
			return err
		}
		eval.SubmittedAt = &now
		if existing == nil {
			prepareNewEvaluation(eval, now)
			return insertEvaluation(ctx, tx, eval)
		}
		eval.ID = existing.ID
		eval.CreatedAt = existing.CreatedAt
		eval.UpdatedAt = now
		const query = `UPDATE evaluations SET tutor_ratings = $2, organization_ratings = $3, comment = $4, submitted_at = $5, updated_at = $6
WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, eval.ID, eval.TutorRatings, eval.OrganizationRatings, eval.Comment, eval.SubmittedAt, eval.UpdatedAt); err != nil {
			return fmt.Errorf("update evaluation survey: %w", err)
		}
		return nil
	})
}

// ListRecords returns evaluations joined with their sessions for reporting.
func (r *EvaluationRepository) ListRecords(ctx context.Context, filter models.AnalyticsFilter) ([]models.EvaluationRecord, error) {
	where, args := analyticsWhere(filter)
	query := fmt.Sprintf(`SELECT e.id, e.appointment_id, e.pre_test_score, e.post_test_score, e.pre_test_total, e.post_test_total, e.tutor_notes,
e.tutor_ratings, e.organization_ratings, e.comment, e.submitted_at, e.created_at, e.updated_at,
a.tutor_id, a.tutee_id, tu.full_name AS tutor_name, te.full_name AS tutee_name, a.subject, a.session_date
FROM evaluations e
JOIN appointments a ON a.id = e.appointment_id
JOIN users tu ON tu.id = a.tutor_id
JOIN users te ON te.id = a.tutee_id%s
ORDER BY a.session_date DESC`, where)
	var records []models.EvaluationRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list evaluation records: %w", err)
	}
	return records, nil
}

func lockEvaluation(ctx context.Context, tx *sqlx.Tx, appointmentID string) (*models.Evaluation, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluations WHERE appointment_id = $1 FOR UPDATE", evaluationColumns)
	var existing models.Evaluation
	if err := tx.GetContext(ctx, &existing, query, appointmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock evaluation: %w", err)
	}
	return &existing, nil
}

func prepareNewEvaluation(eval *models.Evaluation, now time.Time) {
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	if eval.TutorRatings == nil {
		eval.TutorRatings = []int64{}
	}
	if eval.OrganizationRatings == nil {
		eval.OrganizationRatings = []int64{}
	}
	eval.CreatedAt = now
	eval.UpdatedAt = now
}

func insertEvaluation(ctx context.Context, tx *sqlx.Tx, eval *models.Evaluation) error {
	const query = `INSERT INTO evaluations
	(id, appointment_id, pre_test_score, post_test_score, pre_test_total, post_test_total, tutor_notes,
	 tutor_ratings, organization_ratings, comment, submitted_at, created_at, updated_at)
	VALUES (:id, :appointment_id, :pre_test_score, :post_test_score, :pre_test_total, :post_test_total, :tutor_notes,
	 :tutor_ratings, :organization_ratings, :comment, :submitted_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, eval); err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}
