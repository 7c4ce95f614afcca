package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/events"
)

type availabilityRepository interface {
	ListByTutor(ctx context.Context, tutorID string) ([]models.TutorAvailability, error)
	Replace(ctx context.Context, tutorID string, slots []models.TutorAvailability) error
}

// AvailabilitySlot is one weekly slot as submitted by a tutor.
type AvailabilitySlot struct {
	DayOfWeek string `json:"day_of_week" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// SetAvailabilityRequest replaces the tutor's whole weekly schedule.
type SetAvailabilityRequest struct {
	Slots []AvailabilitySlot `json:"slots" validate:"max=50,dive"`
}

// AvailabilityService manages the weekly schedules tutors publish.
type AvailabilityService struct {
	repo      availabilityRepository
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(repo availabilityRepository, bus eventPublisher, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &AvailabilityService{repo: repo, events: bus, validator: validate, logger: logger}
}

// List returns a tutor's weekly slots ordered Monday first.
func (s *AvailabilityService) List(ctx context.Context, tutorID string) ([]models.TutorAvailability, error) {
	slots, err := s.repo.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	sortSlots(slots)
	return slots, nil
}

// Replace validates and stores the caller's weekly schedule. Overlapping slots on one day are rejected.
func (s *AvailabilityService) Replace(ctx context.Context, viewer Viewer, req SetAvailabilityRequest) ([]models.TutorAvailability, error) {
	if viewer.Role != models.RoleTutor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only tutors publish availability")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	slots := make([]models.TutorAvailability, 0, len(req.Slots))
	for i, raw := range req.Slots {
		day, ok := normalizeWeekday(raw.DayOfWeek)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %d: unknown weekday %q", i+1, raw.DayOfWeek))
		}
		start, err := normalizeClock(raw.StartTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %d: %s", i+1, err.Error()))
		}
		end, err := normalizeClock(raw.EndTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %d: %s", i+1, err.Error()))
		}
		if end <= start {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %d: end time must be after start time", i+1))
		}
		slots = append(slots, models.TutorAvailability{TutorID: viewer.UserID, DayOfWeek: day, StartTime: start, EndTime: end})
	}
	sortSlots(slots)
	for i := 1; i < len(slots); i++ {
		prev, cur := slots[i-1], slots[i]
		if prev.DayOfWeek == cur.DayOfWeek && cur.StartTime < prev.EndTime {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("%s slots %s-%s and %s-%s overlap", cur.DayOfWeek, prev.StartTime, prev.EndTime, cur.StartTime, cur.EndTime))
		}
	}

	if err := s.repo.Replace(ctx, viewer.UserID, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}
	s.events.Publish(ctx, events.ContentChanged{Table: "tutor_availability", ID: viewer.UserID, Op: "update"})
	s.logger.Info("availability replaced", zap.String("tutor_id", viewer.UserID), zap.Int("slots", len(slots)))
	return slots, nil
}

var weekdayOrder = map[string]int{
	"Monday": 0, "Tuesday": 1, "Wednesday": 2, "Thursday": 3, "Friday": 4, "Saturday": 5, "Sunday": 6,
}

func sortSlots(slots []models.TutorAvailability) {
	sort.SliceStable(slots, func(i, j int) bool {
		di, dj := weekdayOrder[slots[i].DayOfWeek], weekdayOrder[slots[j].DayOfWeek]
		if di != dj {
			return di < dj
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}
