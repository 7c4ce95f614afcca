package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/changefeed"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/mailer"
)

// JobTypeNotification tags notification jobs on the queue.
const JobTypeNotification = "notification"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type changePublisher interface {
	Publish(ctx context.Context, change changefeed.Change) error
}

// Notice is a notification waiting to be rendered and stored.
type Notice struct {
	RecipientID   string
	ActorID       string
	Type          models.NotificationType
	AppointmentID string
	Payload       models.NotificationPayload
}

// NotificationService records notifications and optionally mirrors them by email.
type NotificationService struct {
	repo   notificationRepository
	users  userLookup
	mail   mailer.Mailer
	queue  notificationQueue
	feed   changePublisher
	logger *zap.Logger
}

// NewNotificationService constructs the service. Without a queue Notify delivers inline.
func NewNotificationService(repo notificationRepository, users userLookup, mail mailer.Mailer, feed changePublisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, mail: mail, feed: feed, logger: logger}
}

// UseQueue routes Notify through q. The queue handler must be HandleJob.
func (s *NotificationService) UseQueue(q notificationQueue) {
	s.queue = q
}

// Notify dispatches a notice without waiting for it to be stored. Failures are logged only.
func (s *NotificationService) Notify(ctx context.Context, notice Notice) {
	if notice.RecipientID == "" {
		return
	}
	if s.queue != nil {
		err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeNotification, Payload: notice})
		if err == nil {
			return
		}
		s.logger.Warn("notification queue unavailable, delivering inline", zap.String("type", string(notice.Type)), zap.Error(err))
	}
	if err := s.Deliver(context.WithoutCancel(ctx), notice); err != nil {
		s.logger.Warn("notification delivery failed", zap.String("recipient_id", notice.RecipientID), zap.String("type", string(notice.Type)), zap.Error(err))
	}
}

// HandleJob is the queue handler for notification jobs.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	notice, ok := job.Payload.(Notice)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.Deliver(ctx, notice)
}

// Deliver renders and stores the notice, then emails the recipient when a mailer is set.
// An email failure is logged and does not fail delivery.
func (s *NotificationService) Deliver(ctx context.Context, notice Notice) error {
	n := &models.Notification{
		RecipientID: notice.RecipientID,
		Type:        notice.Type,
		Payload:     notice.Payload,
		Content:     RenderNotification(notice.Type, notice.Payload),
	}
	if n.Payload == nil {
		n.Payload = models.NotificationPayload{}
	}
	if notice.ActorID != "" {
		actor := notice.ActorID
		n.ActorID = &actor
	}
	if notice.AppointmentID != "" {
		apptID := notice.AppointmentID
		n.AppointmentID = &apptID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if s.feed != nil {
		if err := s.feed.Publish(ctx, changefeed.Change{Table: "notifications", ID: n.ID, Op: changefeed.OpInsert, Audience: []string{n.RecipientID}}); err != nil {
			s.logger.Warn("publish notification change failed", zap.Error(err))
		}
	}
	s.email(ctx, n)
	return nil
}

func (s *NotificationService) email(ctx context.Context, n *models.Notification) {
	if s.mail == nil || s.users == nil {
		return
	}
	user, err := s.users.FindByID(ctx, n.RecipientID)
	if err != nil {
		s.logger.Warn("notification recipient lookup failed", zap.String("recipient_id", n.RecipientID), zap.Error(err))
		return
	}
	msg := mailer.Message{
		To:      []mailer.Address{{Name: user.FullName, Email: user.Email}},
		Subject: notificationSubject(n.Type),
		Text:    n.Content,
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warn("notification email failed", zap.String("recipient_id", n.RecipientID), zap.Error(err))
	}
}

// List returns the caller's notifications and unread count.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	items, total, unread, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, unread, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.repo.MarkRead(ctx, id, recipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notifications")
	}
	return n, nil
}

// RenderNotification produces the human-readable text for a notification.
func RenderNotification(typ models.NotificationType, p models.NotificationPayload) string {
	subject := orDefault(p["subject"], "tutoring")
	when := strings.TrimSpace(p["date"] + " " + timeRange(p["start_time"], p["end_time"]))
	switch typ {
	case models.NotificationBooked:
		return fmt.Sprintf("%s requested a %s session on %s.", orDefault(p["actor_name"], "A tutee"), subject, when)
	case models.NotificationConfirmed:
		return fmt.Sprintf("Your %s session on %s was confirmed. Location: %s.", subject, when, p["location"])
	case models.NotificationDeclined:
		return fmt.Sprintf("Your %s session request for %s was declined. Reason: %s", subject, when, p["reason"])
	case models.NotificationCancelled:
		return fmt.Sprintf("%s cancelled the %s session on %s. Reason: %s", orDefault(p["actor_name"], "The other party"), subject, when, p["reason"])
	case models.NotificationSessionEndingSoon:
		return fmt.Sprintf("Your %s session ends at %s.", subject, p["end_time"])
	case models.NotificationEvaluationRequired:
		return fmt.Sprintf("Your %s session on %s has ended. Please complete the satisfaction survey.", subject, p["date"])
	case models.NotificationAnnouncement:
		return orDefault(p["title"], "New announcement")
	}
	return string(typ)
}

func notificationSubject(typ models.NotificationType) string {
	switch typ {
	case models.NotificationBooked:
		return "New session request"
	case models.NotificationConfirmed:
		return "Session confirmed"
	case models.NotificationDeclined:
		return "Session declined"
	case models.NotificationCancelled:
		return "Session cancelled"
	case models.NotificationSessionEndingSoon:
		return "Session ending soon"
	case models.NotificationEvaluationRequired:
		return "Please rate your session"
	}
	return "Announcement"
}

func timeRange(start, end string) string {
	switch {
	case start != "" && end != "":
		return start + "-" + end
	case start != "":
		return start
	}
	return ""
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// appointmentPayload captures the schedule fields every session notification carries.
func appointmentPayload(appt *models.Appointment) models.NotificationPayload {
	p := models.NotificationPayload{
		"subject":    appt.Subject,
		"date":       appt.SessionDate.String(),
		"start_time": appt.StartTime,
		"end_time":   appt.EndTime,
	}
	if appt.SessionLocation != nil {
		p["location"] = *appt.SessionLocation
	}
	return p
}
