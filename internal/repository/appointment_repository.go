package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const appointmentColumns = `a.id, a.tutor_id, a.tutee_id, a.session_date, a.start_time, a.end_time, a.subject, a.topic, a.mode,
a.session_location, a.number_of_tutees, a.status, a.tutor_decline_reason, a.tutee_decline_reason,
a.resource_link, a.resource_note, a.online_link, a.file_link, a.created_at, a.updated_at,
tu.full_name AS tutor_name, te.full_name AS tutee_name, p.online_link AS tutor_online_link, p.file_link AS tutor_file_link,
(e.id IS NOT NULL) AS has_evaluation, (e.submitted_at IS NOT NULL) AS survey_submitted`

const appointmentJoins = `FROM appointments a
JOIN users tu ON tu.id = a.tutor_id
JOIN users te ON te.id = a.tutee_id
LEFT JOIN profiles p ON p.user_id = a.tutor_id
LEFT JOIN evaluations e ON e.appointment_id = a.id`

// AppointmentRepository persists tutoring sessions.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts a new appointment row.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.StatusPending
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = appt.CreatedAt

	const query = `INSERT INTO appointments
	(id, tutor_id, tutee_id, session_date, start_time, end_time, subject, topic, mode, session_location, number_of_tutees,
	 status, resource_link, resource_note, created_at, updated_at)
	VALUES (:id, :tutor_id, :tutee_id, :session_date, :start_time, :end_time, :subject, :topic, :mode, :session_location, :number_of_tutees,
	 :status, :resource_link, :resource_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// FindByID returns one appointment with participant names and tutor links.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1", appointmentColumns, appointmentJoins)
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return &appt, nil
}

// List returns appointments matching filter with the total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("a.tutor_id = $%d", len(args)))
	}
	if filter.TuteeID != "" {
		args = append(args, filter.TuteeID)
		conditions = append(conditions, fmt.Sprintf("a.tutee_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("a.session_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("a.session_date <= $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(a.subject) LIKE $%[1]d OR LOWER(a.topic) LIKE $%[1]d OR LOWER(tu.full_name) LIKE $%[1]d OR LOWER(te.full_name) LIKE $%[1]d)", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s%s ORDER BY a.session_date %s, a.start_time %s LIMIT %d OFFSET %d",
		appointmentColumns, appointmentJoins, where, sortOrder, sortOrder, pageSize, offset)
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", appointmentJoins, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appts, total, nil
}

// ListByStatuses returns up to limit appointments in the given statuses, oldest session first.
func (r *AppointmentRepository) ListByStatuses(ctx context.Context, statuses []models.AppointmentStatus, limit int) ([]models.Appointment, error) {
	if limit <= 0 {
		limit = 500
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := fmt.Sprintf("SELECT %s %s WHERE a.status = ANY($1) ORDER BY a.session_date ASC, a.start_time ASC LIMIT $2", appointmentColumns, appointmentJoins)
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, pq.Array(values), limit); err != nil {
		return nil, fmt.Errorf("list appointments by status: %w", err)
	}
	return appts, nil
}

// UpdateStatus moves an appointment from update.From to update.To.
// It returns sql.ErrNoRows when the row is missing or no longer in update.From.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, update models.AppointmentStatusUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now().UTC()
	}
	setParts := []string{"status = :to", "updated_at = :updated_at"}
	if update.SessionLocation != nil {
		setParts = append(setParts, "session_location = :session_location")
	}
	if update.TutorDeclineReason != nil {
		setParts = append(setParts, "tutor_decline_reason = :tutor_decline_reason")
	}
	if update.TuteeDeclineReason != nil {
		setParts = append(setParts, "tutee_decline_reason = :tutee_decline_reason")
	}
	query := fmt.Sprintf("UPDATE appointments SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                   update.ID,
		"from":                 update.From,
		"to":                   update.To,
		"updated_at":           update.UpdatedAt,
		"session_location":     update.SessionLocation,
		"tutor_decline_reason": update.TutorDeclineReason,
		"tutee_decline_reason": update.TuteeDeclineReason,
	})
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	return expectAffected(result, "update appointment status")
}

// UpdateSchedule changes the date and times of a pending appointment.
func (r *AppointmentRepository) UpdateSchedule(ctx context.Context, update models.AppointmentScheduleUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now().UTC()
	}
	const query = `UPDATE appointments SET session_date = $2, start_time = $3, end_time = $4, updated_at = $5
WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, update.ID, update.SessionDate, update.StartTime, update.EndTime, update.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment schedule: %w", err)
	}
	return expectAffected(result, "update appointment schedule")
}

// UpdateResources overwrites the tutee's preparation material while the session is confirmed or started.
func (r *AppointmentRepository) UpdateResources(ctx context.Context, id string, link, note *string) error {
	const query = `UPDATE appointments SET resource_link = $2, resource_note = $3, updated_at = $4
WHERE id = $1 AND status IN ('confirmed', 'started')`
	result, err := r.db.ExecContext(ctx, query, id, link, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update appointment resources: %w", err)
	}
	return expectAffected(result, "update appointment resources")
}

// UpdateLinks overwrites the tutor's meeting and file links on a non-terminal session.
func (r *AppointmentRepository) UpdateLinks(ctx context.Context, id string, onlineLink, fileLink *string) error {
	const query = `UPDATE appointments SET online_link = $2, file_link = $3, updated_at = $4
WHERE id = $1 AND status IN ('pending', 'confirmed', 'started', 'awaiting_feedback')`
	result, err := r.db.ExecContext(ctx, query, id, onlineLink, fileLink, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update appointment links: %w", err)
	}
	return expectAffected(result, "update appointment links")
}

// DeletePending removes an appointment only while it is still pending.
func (r *AppointmentRepository) DeletePending(ctx context.Context, id string) error {
	const query = `DELETE FROM appointments WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return expectAffected(result, "delete appointment")
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
