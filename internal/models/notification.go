package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType enumerates structured notification kinds.
type NotificationType string

const (
	NotificationBooked             NotificationType = "APPOINTMENT_BOOKED"
	NotificationConfirmed          NotificationType = "APPOINTMENT_CONFIRMED"
	NotificationDeclined           NotificationType = "APPOINTMENT_DECLINED"
	NotificationCancelled          NotificationType = "APPOINTMENT_CANCELLED"
	NotificationSessionEndingSoon  NotificationType = "SESSION_ENDING_SOON"
	NotificationEvaluationRequired NotificationType = "EVALUATION_REQUESTED"
	NotificationAnnouncement       NotificationType = "ANNOUNCEMENT"
)

// NotificationStatus tracks whether the recipient has seen a notification.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// NotificationPayload carries the typed details a notification was rendered from.
type NotificationPayload map[string]string

// Value marshals the payload as JSONB.
func (p NotificationPayload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]string(p))
	if err != nil {
		return nil, fmt.Errorf("marshal notification payload: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB into the payload.
func (p *NotificationPayload) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = NotificationPayload{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for NotificationPayload", value)
	}
	out := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal notification payload: %w", err)
		}
	}
	*p = out
	return nil
}

// Notification is a message addressed to one user.
type Notification struct {
	ID            string              `db:"id" json:"id"`
	RecipientID   string              `db:"recipient_id" json:"recipient_id"`
	ActorID       *string             `db:"actor_id" json:"actor_id,omitempty"`
	Type          NotificationType    `db:"type" json:"type"`
	AppointmentID *string             `db:"appointment_id" json:"appointment_id,omitempty"`
	Payload       NotificationPayload `db:"payload" json:"payload"`
	Content       string              `db:"content" json:"content"`
	Status        NotificationStatus  `db:"status" json:"status"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes a recipient's inbox listing.
type NotificationFilter struct {
	RecipientID string
	Status      *NotificationStatus
	Page        int
	PageSize    int
}
