package service

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

func TestCheckTransitionRejectsEdgesOutsideTable(t *testing.T) {
	statuses := models.AllAppointmentStatuses
	actors := []Actor{ActorTutor, ActorTutee, ActorSystem}
	allowed := map[[3]string]bool{}
	for _, rule := range transitionTable {
		for _, a := range rule.actors {
			allowed[[3]string{string(rule.from), string(rule.to), string(a)}] = true
		}
	}

	for _, from := range statuses {
		for _, to := range statuses {
			for _, actor := range actors {
				err := CheckTransition(TransitionRequest{
					From: from, To: to, Actor: actor,
					Location: "Room 1", Reason: "busy",
					Survey: &models.Evaluation{TutorRatings: pq.Int64Array{5, 5, 5, 5, 5}, OrganizationRatings: pq.Int64Array{5, 5, 5, 5, 5}},
				})
				if allowed[[3]string{string(from), string(to), string(actor)}] {
					assert.NoError(t, err, "%s %s->%s", actor, from, to)
				} else {
					assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition), "%s %s->%s", actor, from, to)
				}
			}
		}
	}
}

func TestCheckTransitionRequiresSideData(t *testing.T) {
	err := CheckTransition(TransitionRequest{From: models.StatusPending, To: models.StatusConfirmed, Actor: ActorTutor, Location: "  "})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	err = CheckTransition(TransitionRequest{From: models.StatusPending, To: models.StatusDeclined, Actor: ActorTutor})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	err = CheckTransition(TransitionRequest{From: models.StatusConfirmed, To: models.StatusCancelled, Actor: ActorTutee})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	assert.NoError(t, CheckTransition(TransitionRequest{From: models.StatusConfirmed, To: models.StatusCancelled, Actor: ActorSystem}))
}

func TestCheckTransitionSurveyGate(t *testing.T) {
	partial := &models.Evaluation{TutorRatings: pq.Int64Array{5, 4, 3, 2}, OrganizationRatings: pq.Int64Array{5, 5, 5, 5, 5}}
	err := CheckTransition(TransitionRequest{From: models.StatusAwaitingFeedback, To: models.StatusCompleted, Actor: ActorTutee, Survey: partial})
	assert.True(t, appErrors.Is(err, appErrors.ErrSurveyIncomplete))

	outOfRange := &models.Evaluation{TutorRatings: pq.Int64Array{5, 4, 3, 2, 6}, OrganizationRatings: pq.Int64Array{5, 5, 5, 5, 5}}
	err = CheckTransition(TransitionRequest{From: models.StatusAwaitingFeedback, To: models.StatusCompleted, Actor: ActorTutee, Survey: outOfRange})
	assert.True(t, appErrors.Is(err, appErrors.ErrSurveyIncomplete))

	err = CheckTransition(TransitionRequest{From: models.StatusAwaitingFeedback, To: models.StatusCompleted, Actor: ActorTutee})
	assert.True(t, appErrors.Is(err, appErrors.ErrSurveyIncomplete))

	withNA := &models.Evaluation{TutorRatings: pq.Int64Array{5, 0, 3, 0, 1}, OrganizationRatings: pq.Int64Array{0, 0, 0, 0, 0}}
	assert.NoError(t, CheckTransition(TransitionRequest{From: models.StatusAwaitingFeedback, To: models.StatusCompleted, Actor: ActorTutee, Survey: withNA}))
}

func TestAllowedTransitions(t *testing.T) {
	assert.ElementsMatch(t, []models.AppointmentStatus{models.StatusConfirmed, models.StatusDeclined}, AllowedTransitions(models.StatusPending, ActorTutor))
	assert.Empty(t, AllowedTransitions(models.StatusPending, ActorTutee))
	assert.Empty(t, AllowedTransitions(models.StatusCompleted, ActorTutor))
}

func TestEffectiveStatusCancelsStaleConfirmed(t *testing.T) {
	policy := DefaultSessionPolicy()
	appt := &models.Appointment{Status: models.StatusConfirmed, SessionDate: models.NewDate(2024, 3, 1), StartTime: "09:00", EndTime: "10:00"}

	justInside := time.Date(2024, 3, 4, 23, 59, 0, 0, policy.Location)
	assert.False(t, policy.EffectiveStatus(appt, justInside).Changed(appt.Status))

	boundary := time.Date(2024, 3, 5, 0, 0, 0, 0, policy.Location)
	assert.False(t, policy.EffectiveStatus(appt, boundary).Changed(appt.Status))

	after := boundary.Add(time.Second)
	expiry := policy.EffectiveStatus(appt, after)
	require.True(t, expiry.Changed(appt.Status))
	assert.Equal(t, models.StatusCancelled, expiry.Status)
	require.NotNil(t, expiry.Reason)
	assert.Equal(t, AutoCancelReason, *expiry.Reason)
}

func TestEffectiveStatusEndsStartedSession(t *testing.T) {
	policy := DefaultSessionPolicy()
	appt := &models.Appointment{Status: models.StatusStarted, SessionDate: models.NewDate(2024, 3, 1), StartTime: "09:00", EndTime: "10:30"}

	before := time.Date(2024, 3, 1, 10, 29, 0, 0, policy.Location)
	assert.Equal(t, models.StatusStarted, policy.EffectiveStatus(appt, before).Status)

	atEnd := time.Date(2024, 3, 1, 10, 30, 0, 0, policy.Location)
	assert.Equal(t, models.StatusAwaitingFeedback, policy.EffectiveStatus(appt, atEnd).Status)

	inUTC := atEnd.UTC()
	assert.Equal(t, models.StatusAwaitingFeedback, policy.EffectiveStatus(appt, inUTC).Status)
}

func TestEffectiveStatusLeavesOtherStatusesAlone(t *testing.T) {
	policy := DefaultSessionPolicy()
	far := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, status := range []models.AppointmentStatus{models.StatusPending, models.StatusAwaitingFeedback, models.StatusCompleted, models.StatusDeclined} {
		appt := &models.Appointment{Status: status, SessionDate: models.NewDate(2024, 3, 1), StartTime: "09:00", EndTime: "10:00"}
		assert.Equal(t, status, policy.EffectiveStatus(appt, far).Status)
	}
}

func TestEndingSoonWindow(t *testing.T) {
	policy := DefaultSessionPolicy()
	appt := &models.Appointment{Status: models.StatusStarted, SessionDate: models.NewDate(2024, 3, 1), StartTime: "09:00", EndTime: "10:00"}

	assert.False(t, policy.EndingSoon(appt, time.Date(2024, 3, 1, 9, 49, 0, 0, policy.Location)))
	assert.True(t, policy.EndingSoon(appt, time.Date(2024, 3, 1, 9, 50, 0, 0, policy.Location)))
	assert.False(t, policy.EndingSoon(appt, time.Date(2024, 3, 1, 10, 0, 0, 0, policy.Location)))
}
