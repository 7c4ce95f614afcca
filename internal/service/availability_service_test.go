package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type memoryAvailabilityRepo struct {
	slots    map[string][]models.TutorAvailability
	replaced int
}

func (m *memoryAvailabilityRepo) ListByTutor(_ context.Context, tutorID string) ([]models.TutorAvailability, error) {
	return append([]models.TutorAvailability(nil), m.slots[tutorID]...), nil
}

func (m *memoryAvailabilityRepo) Replace(_ context.Context, tutorID string, slots []models.TutorAvailability) error {
	m.replaced++
	m.slots[tutorID] = slots
	return nil
}

func TestReplaceAvailabilityNormalizesAndSorts(t *testing.T) {
	repo := &memoryAvailabilityRepo{slots: map[string][]models.TutorAvailability{}}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	slots, err := svc.Replace(context.Background(), tutorViewer, SetAvailabilityRequest{Slots: []AvailabilitySlot{
		{DayOfWeek: "wed", StartTime: "13:00:00", EndTime: "15:00"},
		{DayOfWeek: "MONDAY", StartTime: "10:00", EndTime: "11:00"},
		{DayOfWeek: "monday", StartTime: "08:00", EndTime: "09:30"},
	}})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "Monday", slots[0].DayOfWeek)
	assert.Equal(t, "08:00", slots[0].StartTime)
	assert.Equal(t, "Wednesday", slots[2].DayOfWeek)
	assert.Equal(t, "13:00", slots[2].StartTime)

	listed, err := svc.List(context.Background(), tutorID)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestReplaceAvailabilityRejections(t *testing.T) {
	repo := &memoryAvailabilityRepo{slots: map[string][]models.TutorAvailability{}}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	cases := map[string][]AvailabilitySlot{
		"unknown weekday":  {{DayOfWeek: "Funday", StartTime: "08:00", EndTime: "09:00"}},
		"bad clock":        {{DayOfWeek: "Monday", StartTime: "8am", EndTime: "09:00"}},
		"end before start": {{DayOfWeek: "Monday", StartTime: "10:00", EndTime: "09:00"}},
		"overlap": {
			{DayOfWeek: "Monday", StartTime: "08:00", EndTime: "10:00"},
			{DayOfWeek: "Mon", StartTime: "09:30", EndTime: "11:00"},
		},
	}
	for name, slots := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Replace(context.Background(), tutorViewer, SetAvailabilityRequest{Slots: slots})
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation), err)
		})
	}

	_, err := svc.Replace(context.Background(), tuteeViewer, SetAvailabilityRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	assert.Zero(t, repo.replaced)
}
