package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// Actor identifies who drives an appointment transition.
type Actor string

const (
	ActorTutor  Actor = "tutor"
	ActorTutee  Actor = "tutee"
	ActorSystem Actor = "system"
)

// AutoCancelReason is stored on sessions the expiry policy cancels.
const AutoCancelReason = "Automatically cancelled: the session was not started within 3 days of its scheduled date."

type transitionInput int

const (
	inputNone transitionInput = iota
	inputLocation
	inputReason
	inputSurvey
)

type transitionRule struct {
	from   models.AppointmentStatus
	to     models.AppointmentStatus
	actors []Actor
	input  transitionInput
}

var transitionTable = []transitionRule{
	{from: models.StatusPending, to: models.StatusConfirmed, actors: []Actor{ActorTutor}, input: inputLocation},
	{from: models.StatusPending, to: models.StatusDeclined, actors: []Actor{ActorTutor}, input: inputReason},
	{from: models.StatusConfirmed, to: models.StatusStarted, actors: []Actor{ActorTutor}},
	{from: models.StatusConfirmed, to: models.StatusCancelled, actors: []Actor{ActorTutor, ActorTutee}, input: inputReason},
	{from: models.StatusConfirmed, to: models.StatusCancelled, actors: []Actor{ActorSystem}},
	{from: models.StatusStarted, to: models.StatusAwaitingFeedback, actors: []Actor{ActorTutor, ActorSystem}},
	{from: models.StatusAwaitingFeedback, to: models.StatusCompleted, actors: []Actor{ActorTutee}, input: inputSurvey},
}

// TransitionRequest carries the side data a transition may require.
type TransitionRequest struct {
	From     models.AppointmentStatus
	To       models.AppointmentStatus
	Actor    Actor
	Location string
	Reason   string
	Survey   *models.Evaluation
}

// CheckTransition validates an edge of the appointment state machine and its required input.
// It never touches storage, so a rejected request performs no write.
func CheckTransition(req TransitionRequest) error {
	rule, ok := findRule(req.From, req.To, req.Actor)
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("%s cannot move a session from %s to %s", req.Actor, req.From, req.To))
	}
	switch rule.input {
	case inputLocation:
		if strings.TrimSpace(req.Location) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "location is required to confirm a session")
		}
	case inputReason:
		if strings.TrimSpace(req.Reason) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "a reason is required")
		}
	case inputSurvey:
		if !req.Survey.SurveyComplete() {
			return appErrors.Clone(appErrors.ErrSurveyIncomplete,
				fmt.Sprintf("all %d tutor and %d organization ratings are required", models.SurveyQuestionCount, models.SurveyQuestionCount))
		}
	}
	return nil
}

// AllowedTransitions lists the statuses actor may move a session in from to.
func AllowedTransitions(from models.AppointmentStatus, actor Actor) []models.AppointmentStatus {
	var out []models.AppointmentStatus
	for _, rule := range transitionTable {
		if rule.from == from && hasActor(rule.actors, actor) {
			out = append(out, rule.to)
		}
	}
	return out
}

func findRule(from, to models.AppointmentStatus, actor Actor) (transitionRule, bool) {
	for _, rule := range transitionTable {
		if rule.from == from && rule.to == to && hasActor(rule.actors, actor) {
			return rule, true
		}
	}
	return transitionRule{}, false
}

func hasActor(actors []Actor, actor Actor) bool {
	for _, a := range actors {
		if a == actor {
			return true
		}
	}
	return false
}

// Expiry is the outcome of applying the time-based policy to a stored appointment.
type Expiry struct {
	Status models.AppointmentStatus
	Reason *string
}

// Changed reports whether the policy moved the appointment away from stored.
func (e Expiry) Changed(stored models.AppointmentStatus) bool {
	return e.Status != stored
}

// EffectiveStatus derives the current status of appt at now from its stored status and
// schedule. Confirmed sessions more than GraceDays past the end of their date are cancelled;
// started sessions past their end time await feedback.
func (p SessionPolicy) EffectiveStatus(appt *models.Appointment, now time.Time) Expiry {
	switch appt.Status {
	case models.StatusConfirmed:
		if now.After(p.ExpiryDeadline(appt)) {
			reason := AutoCancelReason
			return Expiry{Status: models.StatusCancelled, Reason: &reason}
		}
	case models.StatusStarted:
		end, err := p.SessionEnd(appt)
		if err == nil && !now.Before(end) {
			return Expiry{Status: models.StatusAwaitingFeedback}
		}
	}
	return Expiry{Status: appt.Status}
}

// ExpiryDeadline is the end of the session date plus the grace period, in the session zone.
func (p SessionPolicy) ExpiryDeadline(appt *models.Appointment) time.Time {
	endOfDay := appt.SessionDate.In(24*60, p.Location)
	return endOfDay.AddDate(0, 0, p.GraceDays)
}

// SessionStart resolves the wall-clock start of appt in the session zone.
func (p SessionPolicy) SessionStart(appt *models.Appointment) (time.Time, error) {
	minutes, err := parseClock(appt.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return appt.SessionDate.In(minutes, p.Location), nil
}

// SessionEnd resolves the wall-clock end of appt in the session zone.
func (p SessionPolicy) SessionEnd(appt *models.Appointment) (time.Time, error) {
	minutes, err := parseClock(appt.EndTime)
	if err != nil {
		return time.Time{}, err
	}
	return appt.SessionDate.In(minutes, p.Location), nil
}

// EndingSoon reports whether a started session is inside the warning window before its end.
func (p SessionPolicy) EndingSoon(appt *models.Appointment, now time.Time) bool {
	if appt.Status != models.StatusStarted || p.EndingSoonLead <= 0 {
		return false
	}
	end, err := p.SessionEnd(appt)
	if err != nil {
		return false
	}
	return now.Before(end) && !now.Before(end.Add(-p.EndingSoonLead))
}
