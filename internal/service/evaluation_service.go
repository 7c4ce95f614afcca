package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/events"
)

type evaluationRepository interface {
	FindByAppointment(ctx context.Context, appointmentID string) (*models.Evaluation, error)
	SaveScores(ctx context.Context, eval *models.Evaluation) error
	SubmitSurvey(ctx context.Context, eval *models.Evaluation) error
}

type sessionReader interface {
	Get(ctx context.Context, viewer Viewer, id string) (*models.Appointment, error)
}

// EvaluationView is an evaluation with its derived improvement percentage.
type EvaluationView struct {
	*models.Evaluation
	Improvement *float64 `json:"improvement,omitempty"`
}

// SaveScoresRequest carries the tutor's test results for a session.
type SaveScoresRequest struct {
	PreTestScore  *float64 `json:"pre_test_score" validate:"omitempty,gte=0"`
	PostTestScore *float64 `json:"post_test_score" validate:"omitempty,gte=0"`
	PreTestTotal  *float64 `json:"pre_test_total" validate:"omitempty,gt=0"`
	PostTestTotal *float64 `json:"post_test_total" validate:"omitempty,gt=0"`
	TutorNotes    *string  `json:"tutor_notes" validate:"omitempty,max=2000"`
}

// SubmitSurveyRequest carries the tutee's satisfaction survey. 0 marks a question as N/A.
type SubmitSurveyRequest struct {
	TutorRatings        []int64 `json:"tutor_ratings"`
	OrganizationRatings []int64 `json:"organization_ratings"`
	Comment             *string `json:"comment" validate:"omitempty,max=2000"`
}

// EvaluationService records tutor scoring and closes sessions with the tutee's survey.
type EvaluationService struct {
	repo      evaluationRepository
	sessions  sessionReader
	events    eventPublisher
	metrics   transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEvaluationService constructs the service.
func NewEvaluationService(repo evaluationRepository, sessions sessionReader, bus eventPublisher, metrics transitionObserver, validate *validator.Validate, logger *zap.Logger) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &EvaluationService{repo: repo, sessions: sessions, events: bus, metrics: metrics, validator: validate, logger: logger}
}

// Get returns the evaluation of a session the caller can see.
func (s *EvaluationService) Get(ctx context.Context, viewer Viewer, appointmentID string) (*EvaluationView, error) {
	if _, err := s.sessions.Get(ctx, viewer, appointmentID); err != nil {
		return nil, err
	}
	eval, err := s.repo.FindByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	return &EvaluationView{Evaluation: eval, Improvement: EvaluationImprovement(eval)}, nil
}

// SaveScores stores the tutor's scores once the session has ended.
func (s *EvaluationService) SaveScores(ctx context.Context, viewer Viewer, appointmentID string, req SaveScoresRequest) (*EvaluationView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := checkScore("pre-test", req.PreTestScore, req.PreTestTotal); err != nil {
		return nil, err
	}
	if err := checkScore("post-test", req.PostTestScore, req.PostTestTotal); err != nil {
		return nil, err
	}
	appt, err := s.sessions.Get(ctx, viewer, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.TutorID != viewer.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the tutor can record scores")
	}
	if appt.Status != models.StatusAwaitingFeedback && appt.Status != models.StatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "scores can be recorded once the session has ended")
	}

	eval := &models.Evaluation{
		AppointmentID: appt.ID,
		PreTestScore:  req.PreTestScore,
		PostTestScore: req.PostTestScore,
		PreTestTotal:  req.PreTestTotal,
		PostTestTotal: req.PostTestTotal,
		TutorNotes:    trimmedOrNil(req.TutorNotes),
	}
	if err := s.repo.SaveScores(ctx, eval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save scores")
	}
	s.events.Publish(ctx, events.EvaluationSaved{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID})
	if stored, err := s.repo.FindByAppointment(ctx, appt.ID); err == nil {
		eval = stored
	} else {
		s.logger.Warn("reload evaluation failed", zap.String("appointment_id", appt.ID), zap.Error(err))
	}
	return &EvaluationView{Evaluation: eval, Improvement: EvaluationImprovement(eval)}, nil
}

// SubmitSurvey stores the tutee's survey and completes the session in one transaction.
func (s *EvaluationService) SubmitSurvey(ctx context.Context, viewer Viewer, appointmentID string, req SubmitSurveyRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	appt, err := s.sessions.Get(ctx, viewer, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(viewer.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the tutee can submit the survey")
	}
	actor := actorOf(viewer, appt)
	eval := &models.Evaluation{
		AppointmentID:       appt.ID,
		TutorRatings:        pq.Int64Array(req.TutorRatings),
		OrganizationRatings: pq.Int64Array(req.OrganizationRatings),
		Comment:             trimmedOrNil(req.Comment),
	}
	if err := CheckTransition(TransitionRequest{From: appt.Status, To: models.StatusCompleted, Actor: actor, Survey: eval}); err != nil {
		return nil, err
	}
	if err := s.repo.SubmitSurvey(ctx, eval); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session was changed by someone else; reload and try again")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit survey")
	}

	from := appt.Status
	appt.Status = models.StatusCompleted
	appt.SurveySubmitted = true
	appt.HasEvaluation = true
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(appt.Status), string(actor))
	}
	s.events.Publish(ctx, events.EvaluationSaved{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID})
	s.events.Publish(ctx, events.AppointmentChanged{
		AppointmentID: appt.ID,
		TutorID:       appt.TutorID,
		TuteeID:       appt.TuteeID,
		From:          string(from),
		To:            string(appt.Status),
		Actor:         string(actor),
	})
	s.logger.Info("session completed", zap.String("appointment_id", appt.ID))
	return appt, nil
}

func checkScore(label string, score, total *float64) error {
	if score == nil || total == nil {
		return nil
	}
	if *score > *total {
		return appErrors.Clone(appErrors.ErrValidation, label+" score cannot exceed its total")
	}
	return nil
}
