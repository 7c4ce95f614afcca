package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/events"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	GetByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

// EventRequest is the create and update payload of an event.
type EventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	EventDate   time.Time `json:"event_date" validate:"required"`
	Venue       string    `json:"venue" validate:"max=200"`
}

// EventListRequest filters the event listing.
type EventListRequest struct {
	UpcomingOnly bool `json:"upcoming_only"`
	Page         int  `json:"page"`
	PageSize     int  `json:"page_size"`
}

// EventService manages landing-page events and their images.
type EventService struct {
	repo      eventRepository
	images    imageUploader
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs the service. A nil store disables image uploads.
func NewEventService(repo eventRepository, store storage.ObjectStore, maxImageBytes int64, bus eventPublisher, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &EventService{
		repo:      repo,
		images:    imageUploader{store: store, maxBytes: maxImageBytes, logger: logger},
		events:    bus,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns events ordered by date.
func (s *EventService) List(ctx context.Context, req EventListRequest) ([]models.Event, *models.Pagination, error) {
	filter := models.EventFilter{Page: req.Page, PageSize: req.PageSize}
	if req.UpcomingOnly {
		from := s.now().UTC()
		filter.UpcomingFrom = &from
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Create stores a new event.
func (s *EventService) Create(ctx context.Context, actorID string, req EventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	event := &models.Event{}
	applyEvent(event, req)
	if actorID != "" {
		event.CreatedBy = &actorID
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "events", ID: event.ID, Op: "insert"})
	return event, nil
}

// Update replaces the editable fields of an event.
func (s *EventService) Update(ctx context.Context, id string, req EventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyEvent(event, req)
	if err := s.save(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// UploadImage attaches an image to the event and removes the previous one best-effort.
func (s *EventService) UploadImage(ctx context.Context, id string, upload ImageUpload) (*models.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := s.images.put(ctx, "events", id, upload)
	if err != nil {
		return nil, err
	}
	previous := event.ImageKey
	event.ImageKey = &obj.Key
	event.ImageURL = &obj.URL
	if err := s.save(ctx, event); err != nil {
		s.images.discard(ctx, &obj.Key)
		return nil, err
	}
	if previous != nil && *previous != obj.Key {
		s.images.discard(ctx, previous)
	}
	return event, nil
}

// Delete removes an event and its image.
func (s *EventService) Delete(ctx context.Context, id string) error {
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.images.discard(ctx, event.ImageKey)
	s.events.Publish(ctx, events.ContentChanged{Table: "events", ID: id, Op: "delete"})
	return nil
}

func (s *EventService) save(ctx context.Context, event *models.Event) error {
	if err := s.repo.Update(ctx, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "events", ID: event.ID, Op: "update"})
	return nil
}

func applyEvent(event *models.Event, req EventRequest) {
	event.Title = strings.TrimSpace(req.Title)
	event.Description = req.Description
	event.EventDate = req.EventDate.UTC()
	event.Venue = strings.TrimSpace(req.Venue)
}
