package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type memoryEventRepo struct {
	items      map[string]*models.Event
	lastFilter models.EventFilter
}

func (r *memoryEventRepo) List(_ context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	r.lastFilter = filter
	var out []models.Event
	for _, e := range r.items {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (r *memoryEventRepo) GetByID(_ context.Context, id string) (*models.Event, error) {
	e, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *e
	return &found, nil
}

func (r *memoryEventRepo) Create(_ context.Context, e *models.Event) error {
	e.ID = "evt-1"
	stored := *e
	r.items[e.ID] = &stored
	return nil
}

func (r *memoryEventRepo) Update(_ context.Context, e *models.Event) error {
	if _, ok := r.items[e.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *e
	r.items[e.ID] = &stored
	return nil
}

func (r *memoryEventRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	return nil
}

func TestEventCreateAndListUpcoming(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	repo := &memoryEventRepo{items: map[string]*models.Event{}}
	svc := NewEventService(repo, nil, 0, nil, nil, nil)
	svc.now = func() time.Time { return now }

	event, err := svc.Create(context.Background(), "admin-1", EventRequest{Title: " Open day ", EventDate: now.Add(48 * time.Hour), Venue: "Hall"})
	require.NoError(t, err)
	assert.Equal(t, "Open day", event.Title)
	require.NotNil(t, event.CreatedBy)

	_, page, err := svc.List(context.Background(), EventListRequest{UpcomingOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
	require.NotNil(t, repo.lastFilter.UpcomingFrom)
	assert.Equal(t, now, *repo.lastFilter.UpcomingFrom)
}

func TestEventCreateRequiresTitle(t *testing.T) {
	svc := NewEventService(&memoryEventRepo{items: map[string]*models.Event{}}, nil, 0, nil, nil, nil)
	_, err := svc.Create(context.Background(), "admin-1", EventRequest{EventDate: time.Now()})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEventUploadImageReplacesPrevious(t *testing.T) {
	oldKey := "events/evt-1_old.png"
	repo := &memoryEventRepo{items: map[string]*models.Event{"evt-1": {ID: "evt-1", Title: "Fair", ImageKey: &oldKey}}}
	store := &memoryObjectStore{objects: map[string][]byte{oldKey: {1}}}
	svc := NewEventService(repo, store, 1024, nil, nil, nil)

	event, err := svc.UploadImage(context.Background(), "evt-1", pngUpload())
	require.NoError(t, err)
	require.NotNil(t, event.ImageURL)
	assert.Contains(t, *event.ImageKey, "events/evt-1_")
	assert.Equal(t, []string{oldKey}, store.deleted)
	assert.Equal(t, *event.ImageKey, *repo.items["evt-1"].ImageKey)
}

func TestEventUploadRejectsNonImage(t *testing.T) {
	repo := &memoryEventRepo{items: map[string]*models.Event{"evt-1": {ID: "evt-1"}}}
	store := &memoryObjectStore{objects: map[string][]byte{}}
	svc := NewEventService(repo, store, 1024, nil, nil, nil)

	text := []byte("just some text")
	_, err := svc.UploadImage(context.Background(), "evt-1", ImageUpload{Filename: "a.txt", Size: int64(len(text)), Content: bytes.NewReader(text)})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, store.objects)
}

func TestEventDeleteRemovesImage(t *testing.T) {
	key := "events/evt-1_a.png"
	repo := &memoryEventRepo{items: map[string]*models.Event{"evt-1": {ID: "evt-1", ImageKey: &key}}}
	store := &memoryObjectStore{objects: map[string][]byte{key: {1}}}
	svc := NewEventService(repo, store, 1024, nil, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "evt-1"))
	assert.Equal(t, []string{key}, store.deleted)
	err := svc.Delete(context.Background(), "evt-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
