package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// AnalyticsRepository exposes read-optimised queries for analytics endpoints.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// StatusCounts groups sessions by status.
func (r *AnalyticsRepository) StatusCounts(ctx context.Context, filter models.AnalyticsFilter) ([]models.StatusCount, error) {
	where, args := analyticsWhere(filter)
	query := fmt.Sprintf("SELECT a.status, COUNT(*) AS count FROM appointments a%s GROUP BY a.status ORDER BY count DESC", where)
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	return counts, nil
}

// SubjectCounts groups sessions by subject, most booked first.
func (r *AnalyticsRepository) SubjectCounts(ctx context.Context, filter models.AnalyticsFilter, limit int) ([]models.SubjectCount, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	where, args := analyticsWhere(filter)
	args = append(args, limit)
	query := fmt.Sprintf("SELECT a.subject, COUNT(*) AS count FROM appointments a%s GROUP BY a.subject ORDER BY count DESC, a.subject ASC LIMIT $%d", where, len(args))
	var counts []models.SubjectCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("query subject counts: %w", err)
	}
	return counts, nil
}

// ScoreSamples returns every evaluation that has both a pre and a post score.
func (r *AnalyticsRepository) ScoreSamples(ctx context.Context, filter models.AnalyticsFilter) ([]models.ScoreSample, error) {
	where, args := analyticsWhere(filter)
	cond := "e.pre_test_score IS NOT NULL AND e.post_test_score IS NOT NULL"
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}
	query := fmt.Sprintf(`SELECT e.appointment_id, a.tutor_id, tu.full_name AS tutor_name, a.tutee_id, te.full_name AS tutee_name, a.subject,
e.pre_test_score, e.post_test_score, e.pre_test_total, a.session_date
FROM evaluations e
JOIN appointments a ON a.id = e.appointment_id
JOIN users tu ON tu.id = a.tutor_id
JOIN users te ON te.id = a.tutee_id%s
ORDER BY a.session_date ASC, a.start_time ASC`, where)
	var samples []models.ScoreSample
	if err := r.db.SelectContext(ctx, &samples, query, args...); err != nil {
		return nil, fmt.Errorf("query score samples: %w", err)
	}
	return samples, nil
}

// SurveyRatings returns the submitted rating arrays for satisfaction averages.
func (r *AnalyticsRepository) SurveyRatings(ctx context.Context, filter models.AnalyticsFilter) ([]models.Evaluation, error) {
	where, args := analyticsWhere(filter)
	cond := "e.submitted_at IS NOT NULL"
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}
	query := fmt.Sprintf(`SELECT e.tutor_ratings, e.organization_ratings FROM evaluations e
JOIN appointments a ON a.id = e.appointment_id%s`, where)
	var rows []models.Evaluation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query survey ratings: %w", err)
	}
	return rows, nil
}

// analyticsWhere renders filter against the appointments alias "a".
func analyticsWhere(filter models.AnalyticsFilter) (string, []interface{}) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("a.session_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("a.session_date <= $%d", len(args)))
	}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("a.tutor_id = $%d", len(args)))
	}
	if filter.TuteeID != "" {
		args = append(args, filter.TuteeID)
		conditions = append(conditions, fmt.Sprintf("a.tutee_id = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
