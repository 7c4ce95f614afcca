package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/events"
)

type appointmentRepository interface {
	Create(ctx context.Context, appt *models.Appointment) error
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	ListByStatuses(ctx context.Context, statuses []models.AppointmentStatus, limit int) ([]models.Appointment, error)
	UpdateStatus(ctx context.Context, update models.AppointmentStatusUpdate) error
	UpdateSchedule(ctx context.Context, update models.AppointmentScheduleUpdate) error
	UpdateResources(ctx context.Context, id string, link, note *string) error
	UpdateLinks(ctx context.Context, id string, onlineLink, fileLink *string) error
	DeletePending(ctx context.Context, id string) error
}

type availabilityReader interface {
	ListByTutor(ctx context.Context, tutorID string) ([]models.TutorAvailability, error)
}

type notifier interface {
	Notify(ctx context.Context, notice Notice)
}

type eventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}

type transitionObserver interface {
	ObserveTransition(from, to, actor string)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Viewer is the authenticated caller of an appointment operation.
type Viewer struct {
	UserID string
	Role   models.UserRole
}

// AppointmentDeps bundles the collaborators of AppointmentService.
type AppointmentDeps struct {
	Repo         appointmentRepository
	Availability availabilityReader
	Users        userLookup
	Notifier     notifier
	Events       eventPublisher
	Metrics      transitionObserver
	Audit        auditWriter
	Validator    *validator.Validate
	Policy       SessionPolicy
	Logger       *zap.Logger
}

// AppointmentService runs the session lifecycle.
type AppointmentService struct {
	repo         appointmentRepository
	availability availabilityReader
	users        userLookup
	notifier     notifier
	events       eventPublisher
	metrics      transitionObserver
	audit        auditWriter
	validator    *validator.Validate
	policy       SessionPolicy
	logger       *zap.Logger
	now          func() time.Time
}

// NewAppointmentService constructs the service.
func NewAppointmentService(deps AppointmentDeps) *AppointmentService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy.Location == nil {
		deps.Policy = DefaultSessionPolicy()
	}
	if deps.Events == nil {
		deps.Events = events.NewBus(deps.Logger)
	}
	svc := &AppointmentService{
		repo:         deps.Repo,
		availability: deps.Availability,
		users:        deps.Users,
		notifier:     deps.Notifier,
		events:       deps.Events,
		metrics:      deps.Metrics,
		audit:        deps.Audit,
		validator:    deps.Validator,
		policy:       deps.Policy,
		logger:       deps.Logger,
		now:          time.Now,
	}
	svc.validator.RegisterValidation("session_mode", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseSessionMode(fl.Field().String())
		return ok
	})
	return svc
}

// BookAppointmentRequest is a tutee's booking request.
type BookAppointmentRequest struct {
	TutorID        string  `json:"tutor_id" validate:"required"`
	Date           string  `json:"date" validate:"required"`
	StartTime      string  `json:"start_time" validate:"required"`
	EndTime        string  `json:"end_time" validate:"required"`
	Subject        string  `json:"subject" validate:"required,max=120"`
	Topic          string  `json:"topic" validate:"max=255"`
	Mode           string  `json:"mode" validate:"required,session_mode"`
	NumberOfTutees int     `json:"number_of_tutees" validate:"omitempty,min=1,max=50"`
	ResourceLink   *string `json:"resource_link" validate:"omitempty,url"`
	ResourceNote   *string `json:"resource_note" validate:"omitempty,max=1000"`
}

// RescheduleRequest moves a pending session.
type RescheduleRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// ListAppointmentsRequest filters the caller's sessions.
type ListAppointmentsRequest struct {
	Statuses  []string
	DateFrom  string
	DateTo    string
	Search    string
	Page      int
	PageSize  int
	SortOrder string
}

// Book creates a pending session after checking the tutor's availability.
func (s *AppointmentService) Book(ctx context.Context, viewer Viewer, req BookAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	mode, _ := models.ParseSessionMode(req.Mode)
	if req.TutorID == viewer.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book a session with yourself")
	}
	tutor, err := s.users.FindByID(ctx, req.TutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor")
	}
	if tutor.Role != models.RoleTutor || !tutor.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected user is not an active tutor")
	}
	start, end, err := s.checkSlot(ctx, req.TutorID, date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		TutorID:        req.TutorID,
		TuteeID:        viewer.UserID,
		SessionDate:    date,
		StartTime:      start,
		EndTime:        end,
		Subject:        strings.TrimSpace(req.Subject),
		Topic:          strings.TrimSpace(req.Topic),
		Mode:           mode,
		NumberOfTutees: req.NumberOfTutees,
		Status:         models.StatusPending,
		ResourceLink:   req.ResourceLink,
		ResourceNote:   req.ResourceNote,
		TutorName:      tutor.FullName,
	}
	if appt.NumberOfTutees == 0 {
		appt.NumberOfTutees = 1
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book session")
	}

	payload := appointmentPayload(appt)
	if tutee, err := s.users.FindByID(ctx, viewer.UserID); err == nil {
		payload["actor_name"] = tutee.FullName
		appt.TuteeName = tutee.FullName
	}
	s.notify(ctx, Notice{RecipientID: appt.TutorID, ActorID: viewer.UserID, Type: models.NotificationBooked, AppointmentID: appt.ID, Payload: payload})
	s.events.Publish(ctx, events.AppointmentChanged{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID, To: string(appt.Status), Actor: string(ActorTutee)})
	return appt, nil
}

// List returns the caller's sessions with expired statuses brought up to date.
// Staff see every session.
func (s *AppointmentService) List(ctx context.Context, viewer Viewer, req ListAppointmentsRequest) ([]models.Appointment, *models.Pagination, error) {
	filter := models.AppointmentFilter{
		Search:    req.Search,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortOrder: req.SortOrder,
	}
	switch viewer.Role {
	case models.RoleTutor:
		filter.TutorID = viewer.UserID
	case models.RoleTutee:
		filter.TuteeID = viewer.UserID
	}
	for _, raw := range req.Statuses {
		status, ok := models.ParseAppointmentStatus(raw)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status "+raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	var err error
	if filter.DateFrom, err = optionalDate(req.DateFrom); err != nil {
		return nil, nil, err
	}
	if filter.DateTo, err = optionalDate(req.DateTo); err != nil {
		return nil, nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	appts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	now := s.now()
	for i := range appts {
		s.Reconcile(ctx, &appts[i], now)
		appts[i].InheritTutorLinks()
	}
	return appts, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one session visible to the caller.
func (s *AppointmentService) Get(ctx context.Context, viewer Viewer, id string) (*models.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(viewer.UserID) && !viewer.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	appt.InheritTutorLinks()
	return appt, nil
}

// Reschedule changes the date and time of a pending session.
func (s *AppointmentService) Reschedule(ctx context.Context, viewer Viewer, id string, req RescheduleRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	appt, err := s.loadForParty(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending sessions can be rescheduled")
	}
	start, end, err := s.checkSlot(ctx, appt.TutorID, date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	update := models.AppointmentScheduleUpdate{ID: appt.ID, SessionDate: date, StartTime: start, EndTime: end, UpdatedAt: s.now().UTC()}
	if err := s.repo.UpdateSchedule(ctx, update); err != nil {
		return nil, s.writeError(err, "failed to reschedule session")
	}
	appt.SessionDate, appt.StartTime, appt.EndTime, appt.UpdatedAt = date, start, end, update.UpdatedAt
	s.events.Publish(ctx, events.AppointmentChanged{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID, From: string(appt.Status), To: string(appt.Status), Actor: string(actorOf(viewer, appt))})
	return appt, nil
}

// Confirm accepts a pending session at location.
func (s *AppointmentService) Confirm(ctx context.Context, viewer Viewer, id, location string) (*models.Appointment, error) {
	return s.transition(ctx, viewer, id, TransitionRequest{To: models.StatusConfirmed, Location: location})
}

// Decline rejects a pending session.
func (s *AppointmentService) Decline(ctx context.Context, viewer Viewer, id, reason string) (*models.Appointment, error) {
	return s.transition(ctx, viewer, id, TransitionRequest{To: models.StatusDeclined, Reason: reason})
}

// Start marks a confirmed session as running.
func (s *AppointmentService) Start(ctx context.Context, viewer Viewer, id string) (*models.Appointment, error) {
	return s.transition(ctx, viewer, id, TransitionRequest{To: models.StatusStarted})
}

// Cancel calls off a confirmed session. Either party may cancel with a reason.
func (s *AppointmentService) Cancel(ctx context.Context, viewer Viewer, id, reason string) (*models.Appointment, error) {
	return s.transition(ctx, viewer, id, TransitionRequest{To: models.StatusCancelled, Reason: reason})
}

// End finishes a started session and asks the tutee for feedback.
func (s *AppointmentService) End(ctx context.Context, viewer Viewer, id string) (*models.Appointment, error) {
	return s.transition(ctx, viewer, id, TransitionRequest{To: models.StatusAwaitingFeedback})
}

// ShareResources overwrites the preparation link and note of a confirmed or started session.
func (s *AppointmentService) ShareResources(ctx context.Context, viewer Viewer, id string, link, note *string) (*models.Appointment, error) {
	appt, err := s.loadForParty(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusConfirmed && appt.Status != models.StatusStarted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "resources can only be shared on confirmed or started sessions")
	}
	link, note = trimmedOrNil(link), trimmedOrNil(note)
	if err := s.repo.UpdateResources(ctx, appt.ID, link, note); err != nil {
		return nil, s.writeError(err, "failed to share resources")
	}
	appt.ResourceLink, appt.ResourceNote = link, note
	s.events.Publish(ctx, events.AppointmentChanged{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID, From: string(appt.Status), To: string(appt.Status), Actor: string(actorOf(viewer, appt))})
	return appt, nil
}

// UpdateLinks sets the tutor's meeting and material links on an open session.
func (s *AppointmentService) UpdateLinks(ctx context.Context, viewer Viewer, id string, onlineLink, fileLink *string) (*models.Appointment, error) {
	appt, err := s.loadForParty(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if appt.TutorID != viewer.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the tutor can change session links")
	}
	if appt.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "links cannot be changed on a closed session")
	}
	onlineLink, fileLink = trimmedOrNil(onlineLink), trimmedOrNil(fileLink)
	if err := s.repo.UpdateLinks(ctx, appt.ID, onlineLink, fileLink); err != nil {
		return nil, s.writeError(err, "failed to update links")
	}
	appt.OnlineLink, appt.FileLink = onlineLink, fileLink
	appt.InheritTutorLinks()
	s.events.Publish(ctx, events.AppointmentChanged{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID, From: string(appt.Status), To: string(appt.Status), Actor: string(ActorTutor)})
	return appt, nil
}

// Delete removes a session that is still pending. Either party may delete it.
func (s *AppointmentService) Delete(ctx context.Context, viewer Viewer, id string) error {
	appt, err := s.loadForParty(ctx, viewer, id)
	if err != nil {
		return err
	}
	if appt.Status != models.StatusPending {
		return appErrors.Clone(appErrors.ErrConflict, "only pending sessions can be deleted")
	}
	if err := s.repo.DeletePending(ctx, appt.ID); err != nil {
		return s.writeError(err, "failed to delete session")
	}
	s.events.Publish(ctx, events.AppointmentChanged{AppointmentID: appt.ID, TutorID: appt.TutorID, TuteeID: appt.TuteeID, From: string(appt.Status), Actor: string(actorOf(viewer, appt)), Deleted: true})
	return nil
}

// Reconcile applies the expiry policy to appt at now and persists any forced transition.
// appt is updated in place; it reports whether the stored status changed.
func (s *AppointmentService) Reconcile(ctx context.Context, appt *models.Appointment, now time.Time) bool {
	expiry := s.policy.EffectiveStatus(appt, now)
	if !expiry.Changed(appt.Status) {
		return false
	}
	from := appt.Status
	if err := CheckTransition(TransitionRequest{From: from, To: expiry.Status, Actor: ActorSystem}); err != nil {
		s.logger.Error("expiry produced an invalid transition", zap.String("appointment_id", appt.ID), zap.Error(err))
		return false
	}
	update := models.AppointmentStatusUpdate{ID: appt.ID, From: from, To: expiry.Status, TutorDeclineReason: expiry.Reason, UpdatedAt: now.UTC()}
	if err := s.repo.UpdateStatus(ctx, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("expiry lost race", zap.String("appointment_id", appt.ID))
			if fresh, ferr := s.repo.FindByID(ctx, appt.ID); ferr == nil {
				*appt = *fresh
				applyExpiry(appt, s.policy.EffectiveStatus(appt, now))
				return false
			}
		} else {
			s.logger.Warn("persist expiry failed", zap.String("appointment_id", appt.ID), zap.Error(err))
		}
		applyExpiry(appt, expiry)
		return false
	}
	applyExpiry(appt, expiry)
	appt.UpdatedAt = update.UpdatedAt
	s.logger.Info("session auto-transitioned",
		zap.String("appointment_id", appt.ID),
		zap.String("from", string(from)),
		zap.String("to", string(appt.Status)))
	s.recordAudit(ctx, appt, from, ActorSystem, "")
	s.afterTransition(ctx, appt, from, ActorSystem, "")
	return true
}

// applyExpiry overlays a derived status on appt without persisting it.
func applyExpiry(appt *models.Appointment, expiry Expiry) {
	if !expiry.Changed(appt.Status) {
		return
	}
	appt.Status = expiry.Status
	if expiry.Reason != nil {
		appt.TutorDeclineReason = expiry.Reason
	}
}

// SweepExpired reconciles every confirmed or started session and returns how many changed.
func (s *AppointmentService) SweepExpired(ctx context.Context, now time.Time, limit int) (int, []models.Appointment, error) {
	appts, err := s.repo.ListByStatuses(ctx, []models.AppointmentStatus{models.StatusConfirmed, models.StatusStarted}, limit)
	if err != nil {
		return 0, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open sessions")
	}
	changed := 0
	for i := range appts {
		if err := ctx.Err(); err != nil {
			return changed, appts, err
		}
		if s.Reconcile(ctx, &appts[i], now) {
			changed++
		}
	}
	return changed, appts, nil
}

func (s *AppointmentService) transition(ctx context.Context, viewer Viewer, id string, req TransitionRequest) (*models.Appointment, error) {
	appt, err := s.loadForParty(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	req.From = appt.Status
	req.Actor = actorOf(viewer, appt)
	if err := CheckTransition(req); err != nil {
		return nil, err
	}

	update := models.AppointmentStatusUpdate{ID: appt.ID, From: req.From, To: req.To, UpdatedAt: s.now().UTC()}
	location := strings.TrimSpace(req.Location)
	reason := strings.TrimSpace(req.Reason)
	switch req.To {
	case models.StatusConfirmed:
		update.SessionLocation = &location
	case models.StatusDeclined:
		update.TutorDeclineReason = &reason
	case models.StatusCancelled:
		if req.Actor == ActorTutee {
			update.TuteeDeclineReason = &reason
		} else {
			update.TutorDeclineReason = &reason
		}
	}
	if err := s.repo.UpdateStatus(ctx, update); err != nil {
		return nil, s.writeError(err, "failed to update session")
	}

	appt.Status = req.To
	appt.UpdatedAt = update.UpdatedAt
	if update.SessionLocation != nil {
		appt.SessionLocation = update.SessionLocation
	}
	if update.TutorDeclineReason != nil {
		appt.TutorDeclineReason = update.TutorDeclineReason
	}
	if update.TuteeDeclineReason != nil {
		appt.TuteeDeclineReason = update.TuteeDeclineReason
	}
	s.recordAudit(ctx, appt, req.From, req.Actor, viewer.UserID)
	s.afterTransition(ctx, appt, req.From, req.Actor, viewer.UserID)
	appt.InheritTutorLinks()
	return appt, nil
}

// afterTransition runs the side effects of a committed transition. None of them can fail it.
func (s *AppointmentService) afterTransition(ctx context.Context, appt *models.Appointment, from models.AppointmentStatus, actor Actor, actorID string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(appt.Status), string(actor))
	}
	s.events.Publish(ctx, events.AppointmentChanged{
		AppointmentID: appt.ID,
		TutorID:       appt.TutorID,
		TuteeID:       appt.TuteeID,
		From:          string(from),
		To:            string(appt.Status),
		Actor:         string(actor),
	})

	payload := appointmentPayload(appt)
	notice := Notice{ActorID: actorID, AppointmentID: appt.ID, Payload: payload}
	switch appt.Status {
	case models.StatusConfirmed:
		notice.RecipientID, notice.Type = appt.TuteeID, models.NotificationConfirmed
	case models.StatusDeclined:
		notice.RecipientID, notice.Type = appt.TuteeID, models.NotificationDeclined
		payload["reason"] = deref(appt.TutorDeclineReason)
	case models.StatusCancelled:
		switch actor {
		case ActorTutor:
			notice.RecipientID, notice.Type = appt.TuteeID, models.NotificationCancelled
			payload["reason"] = deref(appt.TutorDeclineReason)
			payload["actor_name"] = appt.TutorName
		case ActorTutee:
			notice.RecipientID, notice.Type = appt.TutorID, models.NotificationCancelled
			payload["reason"] = deref(appt.TuteeDeclineReason)
			payload["actor_name"] = appt.TuteeName
		}
	case models.StatusAwaitingFeedback:
		notice.RecipientID, notice.Type = appt.TuteeID, models.NotificationEvaluationRequired
	}
	if notice.RecipientID != "" {
		s.notify(ctx, notice)
	}
}

func (s *AppointmentService) recordAudit(ctx context.Context, appt *models.Appointment, from models.AppointmentStatus, actor Actor, actorID string) {
	if s.audit == nil {
		return
	}
	action := models.AuditActionTransition
	var userID *string
	if actor == ActorSystem {
		action = models.AuditActionAutoTransition
	} else if actorID != "" {
		userID = &actorID
	}
	oldValues, _ := json.Marshal(map[string]string{"status": string(from)})
	newValues, _ := json.Marshal(map[string]string{"status": string(appt.Status), "actor": string(actor)})
	resourceID := appt.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "appointment",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("audit transition failed", zap.String("appointment_id", appt.ID), zap.Error(err))
	}
}

func (s *AppointmentService) notify(ctx context.Context, notice Notice) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notice)
}

// load fetches a session and applies the expiry policy before anything else sees it.
func (s *AppointmentService) load(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	s.Reconcile(ctx, appt, s.now())
	return appt, nil
}

func (s *AppointmentService) loadForParty(ctx context.Context, viewer Viewer, id string) (*models.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(viewer.UserID) {
		if viewer.Role.IsStaff() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the tutor or tutee can act on this session")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return appt, nil
}

func (s *AppointmentService) checkSlot(ctx context.Context, tutorID string, date models.Date, startRaw, endRaw string) (string, string, error) {
	start, err := normalizeClock(startRaw)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	end, err := normalizeClock(endRaw)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	slots, err := s.availability.ListByTutor(ctx, tutorID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor availability")
	}
	if err := s.policy.ValidateSlot(date, start, end, slots); err != nil {
		return "", "", err
	}
	startMinutes, _ := parseClock(start)
	if date.In(startMinutes, s.policy.Location).Before(s.now()) {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "sessions cannot be scheduled in the past")
	}
	return start, end, nil
}

// writeError maps a guarded write that matched no row to a conflict.
func (s *AppointmentService) writeError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "session was changed by someone else; reload and try again")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func actorOf(viewer Viewer, appt *models.Appointment) Actor {
	switch viewer.UserID {
	case appt.TutorID:
		return ActorTutor
	case appt.TuteeID:
		return ActorTutee
	}
	return Actor("")
}

func optionalDate(raw string) (*models.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return &d, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
