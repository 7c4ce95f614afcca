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
)

const notificationColumns = `id, recipient_id, actor_id, type, appointment_id, payload, content, status, created_at`

// NotificationRepository persists user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = models.NotificationUnread
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, recipient_id, actor_id, type, appointment_id, payload, content, status, created_at)
VALUES (:id, :recipient_id, :actor_id, :type, :appointment_id, :payload, :content, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns the recipient's notifications newest first, with total and unread counts.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, int, error) {
	args := []interface{}{filter.RecipientID}
	where := "WHERE recipient_id = $1"
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM notifications %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		notificationColumns, where, pageSize, (page-1)*pageSize)

	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, 0, fmt.Errorf("list notifications: %w", err)
	}

	var counts struct {
		Total  int `db:"total"`
		Unread int `db:"unread"`
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE status = 'unread') AS unread FROM notifications %s", where)
	if err := r.db.GetContext(ctx, &counts, countQuery, args...); err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, counts.Total, counts.Unread, nil
}

// MarkRead flags one notification read if it belongs to recipientID.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	const query = `UPDATE notifications SET status = 'read' WHERE id = $1 AND recipient_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectAffected(result, "mark notification read")
}

// MarkAllRead flags every unread notification of recipientID and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	const query = `UPDATE notifications SET status = 'read' WHERE recipient_id = $1 AND status = 'unread'`
	result, err := r.db.ExecContext(ctx, query, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return rows, nil
}

// ExistsForAppointment reports whether recipientID already has a notification of type for the appointment.
func (r *NotificationRepository) ExistsForAppointment(ctx context.Context, recipientID, appointmentID string, typ models.NotificationType) (bool, error) {
	const query = `SELECT id FROM notifications WHERE recipient_id = $1 AND appointment_id = $2 AND type = $3 LIMIT 1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, recipientID, appointmentID, typ); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check notification: %w", err)
	}
	return true, nil
}
