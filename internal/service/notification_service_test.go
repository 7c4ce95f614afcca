package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/changefeed"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/mailer"
)

type memoryNotificationRepo struct {
	stored    []models.Notification
	createErr error
}

func (m *memoryNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = "n-" + n.RecipientID
	n.Status = models.NotificationUnread
	m.stored = append(m.stored, *n)
	return nil
}

func (m *memoryNotificationRepo) List(_ context.Context, filter models.NotificationFilter) ([]models.Notification, int, int, error) {
	var out []models.Notification
	unread := 0
	for _, n := range m.stored {
		if n.RecipientID != filter.RecipientID {
			continue
		}
		out = append(out, n)
		if n.Status == models.NotificationUnread {
			unread++
		}
	}
	return out, len(out), unread, nil
}

func (m *memoryNotificationRepo) MarkRead(_ context.Context, id, recipientID string) error {
	for i := range m.stored {
		if m.stored[i].ID == id && m.stored[i].RecipientID == recipientID {
			m.stored[i].Status = models.NotificationRead
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryNotificationRepo) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	var n int64
	for i := range m.stored {
		if m.stored[i].RecipientID == recipientID && m.stored[i].Status == models.NotificationUnread {
			m.stored[i].Status = models.NotificationRead
			n++
		}
	}
	return n, nil
}

type recordingMailer struct {
	sent []mailer.Message
	err  error
}

func (r *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type failingQueue struct{ jobs []jobs.Job }

func (f *failingQueue) TryEnqueue(job jobs.Job) error {
	f.jobs = append(f.jobs, job)
	return errors.New("queue full")
}

type acceptingQueue struct{ jobs []jobs.Job }

func (a *acceptingQueue) TryEnqueue(job jobs.Job) error {
	a.jobs = append(a.jobs, job)
	return nil
}

func confirmedNotice() Notice {
	return Notice{
		RecipientID:   tuteeID,
		ActorID:       tutorID,
		Type:          models.NotificationConfirmed,
		AppointmentID: "a1",
		Payload: models.NotificationPayload{
			"subject": "Math", "date": "2024-03-04", "start_time": "09:00", "end_time": "10:00", "location": "Library",
		},
	}
}

func TestNotifyDeliversInlineWithoutQueue(t *testing.T) {
	repo := &memoryNotificationRepo{}
	mail := &recordingMailer{}
	feed := changefeed.NewMemoryFeed()
	changes, cancel, err := feed.Subscribe(context.Background(), "notifications")
	require.NoError(t, err)
	defer cancel()

	svc := NewNotificationService(repo, stubUsers{tuteeID: {ID: tuteeID, FullName: "Sari", Email: "sari@example.com"}}, mail, feed, nil)
	svc.Notify(context.Background(), confirmedNotice())

	require.Len(t, repo.stored, 1)
	n := repo.stored[0]
	assert.Equal(t, models.NotificationConfirmed, n.Type)
	require.NotNil(t, n.AppointmentID)
	assert.Equal(t, "a1", *n.AppointmentID)
	assert.Contains(t, n.Content, "Library")
	assert.Contains(t, n.Content, "09:00-10:00")

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "sari@example.com", mail.sent[0].To[0].Email)

	select {
	case change := <-changes:
		assert.Equal(t, "notifications", change.Table)
	default:
		t.Fatal("expected a notifications change")
	}
}

func TestNotifyFallsBackWhenQueueRejects(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil, nil, nil, nil)
	queue := &failingQueue{}
	svc.UseQueue(queue)

	svc.Notify(context.Background(), confirmedNotice())
	assert.Len(t, queue.jobs, 1)
	assert.Len(t, repo.stored, 1)
}

func TestNotifyEnqueuesAndHandleJobDelivers(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil, nil, nil, nil)
	queue := &acceptingQueue{}
	svc.UseQueue(queue)

	svc.Notify(context.Background(), confirmedNotice())
	require.Len(t, queue.jobs, 1)
	assert.Empty(t, repo.stored)
	assert.Equal(t, JobTypeNotification, queue.jobs[0].Type)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	assert.Len(t, repo.stored, 1)

	err := svc.HandleJob(context.Background(), jobs.Job{Type: JobTypeNotification, Payload: "junk"})
	assert.Error(t, err)
}

func TestNotifySwallowsStoreAndMailFailures(t *testing.T) {
	repo := &memoryNotificationRepo{createErr: errors.New("db down")}
	mail := &recordingMailer{}
	svc := NewNotificationService(repo, stubUsers{}, mail, nil, nil)

	assert.NotPanics(t, func() { svc.Notify(context.Background(), confirmedNotice()) })
	assert.Empty(t, mail.sent)

	repo.createErr = nil
	mail.err = errors.New("smtp down")
	require.NoError(t, svc.Deliver(context.Background(), confirmedNotice()))
	assert.Len(t, repo.stored, 1)
}

func TestNotifyIgnoresMissingRecipient(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil, nil, nil, nil)
	svc.Notify(context.Background(), Notice{Type: models.NotificationBooked})
	assert.Empty(t, repo.stored)
}

func TestNotificationInbox(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil, nil, nil, nil)
	require.NoError(t, svc.Deliver(context.Background(), confirmedNotice()))

	items, page, unread, err := svc.List(context.Background(), models.NotificationFilter{RecipientID: tuteeID})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, unread)
	assert.Equal(t, 20, page.PageSize)

	err = svc.MarkRead(context.Background(), items[0].ID, tutorID)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	require.NoError(t, svc.MarkRead(context.Background(), items[0].ID, tuteeID))
	count, err := svc.MarkAllRead(context.Background(), tuteeID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRenderNotificationTexts(t *testing.T) {
	payload := models.NotificationPayload{"subject": "Physics", "date": "2024-03-04", "start_time": "13:00", "end_time": "14:00", "reason": "exam week", "actor_name": "Budi"}

	assert.Equal(t, "Budi requested a Physics session on 2024-03-04 13:00-14:00.", RenderNotification(models.NotificationBooked, payload))
	assert.Contains(t, RenderNotification(models.NotificationDeclined, payload), "Reason: exam week")
	assert.Contains(t, RenderNotification(models.NotificationCancelled, payload), "Budi cancelled the Physics session")
	assert.Equal(t, "Your Physics session ends at 14:00.", RenderNotification(models.NotificationSessionEndingSoon, payload))
}
