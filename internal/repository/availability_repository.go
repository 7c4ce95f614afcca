package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/database"
)

// AvailabilityRepository stores the weekly slots tutors accept bookings in.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTutor returns every slot of a tutor ordered by weekday then start time.
func (r *AvailabilityRepository) ListByTutor(ctx context.Context, tutorID string) ([]models.TutorAvailability, error) {
	const query = `SELECT id, tutor_id, day_of_week, start_time, end_time, created_at FROM tutor_availability
WHERE tutor_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.TutorAvailability
	if err := r.db.SelectContext(ctx, &slots, query, tutorID); err != nil {
		return nil, fmt.Errorf("list tutor availability: %w", err)
	}
	return slots, nil
}

// Replace swaps the tutor's whole weekly schedule atomically.
func (r *AvailabilityRepository) Replace(ctx context.Context, tutorID string, slots []models.TutorAvailability) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tutor_availability WHERE tutor_id = $1`, tutorID); err != nil {
			return fmt.Errorf("clear tutor availability: %w", err)
		}
		now := time.Now().UTC()
		const insert = `INSERT INTO tutor_availability (id, tutor_id, day_of_week, start_time, end_time, created_at)
VALUES (:id, :tutor_id, :day_of_week, :start_time, :end_time, :created_at)`
		for i := range slots {
			slot := &slots[i]
			if slot.ID == "" {
				slot.ID = uuid.NewString()
			}
			slot.TutorID = tutorID
			slot.CreatedAt = now
			if _, err := tx.NamedExecContext(ctx, insert, slot); err != nil {
				return fmt.Errorf("insert tutor availability: %w", err)
			}
		}
		return nil
	})
}
