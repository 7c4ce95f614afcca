package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/events"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

type profileRepository interface {
	FindByUser(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
	SetImage(ctx context.Context, userID, key, url string) (*string, error)
	ListTutors(ctx context.Context, filter models.TutorFilter) ([]models.Profile, int, error)
}

// UpdateProfileRequest holds the editable profile fields.
type UpdateProfileRequest struct {
	Specialization []string `json:"specialization" validate:"max=20,dive,required,max=80"`
	Bio            string   `json:"bio" validate:"max=2000"`
	OnlineLink     *string  `json:"online_link" validate:"omitempty,url"`
	FileLink       *string  `json:"file_link" validate:"omitempty,url"`
}

// ProfileService manages public profiles and the tutor directory.
type ProfileService struct {
	repo      profileRepository
	images    imageUploader
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs the service. A nil store disables image uploads.
func NewProfileService(repo profileRepository, store storage.ObjectStore, maxImageBytes int64, bus eventPublisher, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &ProfileService{
		repo:      repo,
		images:    imageUploader{store: store, maxBytes: maxImageBytes, logger: logger},
		events:    bus,
		validator: validate,
		logger:    logger,
	}
}

// Get returns the profile of an active user.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Update stores the caller's editable profile fields.
func (s *ProfileService) Update(ctx context.Context, userID string, req UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	specialization := make([]string, 0, len(req.Specialization))
	seen := make(map[string]struct{}, len(req.Specialization))
	for _, subject := range req.Specialization {
		subject = strings.TrimSpace(subject)
		key := strings.ToLower(subject)
		if _, dup := seen[key]; dup || subject == "" {
			continue
		}
		seen[key] = struct{}{}
		specialization = append(specialization, subject)
	}
	profile := &models.Profile{
		UserID:         userID,
		Specialization: specialization,
		Bio:            strings.TrimSpace(req.Bio),
		OnlineLink:     trimmedOrNil(req.OnlineLink),
		FileLink:       trimmedOrNil(req.FileLink),
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save profile")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "profiles", ID: userID, Op: "update"})
	return s.Get(ctx, userID)
}

// UploadImage replaces the caller's profile picture. The old image is removed best-effort.
func (s *ProfileService) UploadImage(ctx context.Context, userID string, upload ImageUpload) (*models.Profile, error) {
	obj, err := s.images.put(ctx, "profiles", userID, upload)
	if err != nil {
		return nil, err
	}
	previous, err := s.repo.SetImage(ctx, userID, obj.Key, obj.URL)
	if err != nil {
		s.images.discard(ctx, &obj.Key)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save profile image")
	}
	if previous != nil && *previous != obj.Key {
		s.images.discard(ctx, previous)
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "profiles", ID: userID, Op: "update"})
	return s.Get(ctx, userID)
}

// ListTutors returns the tutor directory.
func (s *ProfileService) ListTutors(ctx context.Context, filter models.TutorFilter) ([]models.Profile, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	filter.Subject = strings.TrimSpace(filter.Subject)
	filter.Search = strings.TrimSpace(filter.Search)
	tutors, total, err := s.repo.ListTutors(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tutors")
	}
	return tutors, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
