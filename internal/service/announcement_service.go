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
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, bus eventPublisher, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	svc := &AnnouncementService{repo: repo, events: bus, validator: validate, logger: logger, now: time.Now}
	svc.validator.RegisterValidation("audience", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementAudience(strings.ToUpper(fl.Field().String())) {
		case models.AnnouncementAudienceAll, models.AnnouncementAudienceTutors, models.AnnouncementAudienceTutees:
			return true
		default:
			return false
		}
	})
	return svc
}

// AnnouncementListRequest describes filters for listing announcements.
type AnnouncementListRequest struct {
	Page          int  `json:"page"`
	PageSize      int  `json:"page_size"`
	IncludePinned bool `json:"include_pinned"`
}

// AnnouncementRequest describes the create and update payload.
type AnnouncementRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Content     string     `json:"content" validate:"required"`
	Audience    string     `json:"audience" validate:"required,audience"`
	IsPinned    bool       `json:"is_pinned"`
	PublishedAt *time.Time `json:"published_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// List returns the announcements visible to the viewer. Staff see drafts and expired rows too.
func (s *AnnouncementService) List(ctx context.Context, viewer Viewer, req AnnouncementListRequest) ([]models.Announcement, *models.Pagination, error) {
	filter := models.AnnouncementFilter{
		Audiences:     models.AudiencesFor(viewer.Role),
		IncludePinned: req.IncludePinned,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}
	if !viewer.Role.IsStaff() {
		now := s.now().UTC()
		filter.ActiveAt = &now
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns an announcement the viewer may read.
func (s *AnnouncementService) Get(ctx context.Context, viewer Viewer, id string) (*models.Announcement, error) {
	ann, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.Role.IsStaff() {
		return ann, nil
	}
	now := s.now().UTC()
	visible := false
	for _, audience := range models.AudiencesFor(viewer.Role) {
		if ann.Audience == audience {
			visible = true
		}
	}
	if !visible || ann.PublishedAt.After(now) || (ann.ExpiresAt != nil && !ann.ExpiresAt.After(now)) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	return ann, nil
}

// Create registers a new announcement.
func (s *AnnouncementService) Create(ctx context.Context, actorID string, req AnnouncementRequest) (*models.Announcement, error) {
	announcement := &models.Announcement{}
	if err := s.apply(announcement, req); err != nil {
		return nil, err
	}
	if actorID != "" {
		announcement.CreatedBy = &actorID
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "announcements", ID: announcement.ID, Op: "insert"})
	return announcement, nil
}

// Update modifies an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req AnnouncementRequest) (*models.Announcement, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(existing, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "announcements", ID: id, Op: "update"})
	return existing, nil
}

// Delete removes an announcement by id.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "announcements", ID: id, Op: "delete"})
	return nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.Announcement, error) {
	ann, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get announcement")
	}
	return ann, nil
}

func (s *AnnouncementService) apply(ann *models.Announcement, req AnnouncementRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	published := ann.PublishedAt
	if published.IsZero() {
		published = s.now().UTC()
	}
	if req.PublishedAt != nil {
		published = req.PublishedAt.UTC()
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(published) {
		return appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
	}
	ann.Title = strings.TrimSpace(req.Title)
	ann.Content = req.Content
	ann.Audience = models.AnnouncementAudience(strings.ToUpper(req.Audience))
	ann.IsPinned = req.IsPinned
	ann.PublishedAt = published
	ann.ExpiresAt = req.ExpiresAt
	return nil
}

