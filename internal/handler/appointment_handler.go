package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

// AppointmentHandler exposes the session lifecycle and evaluations.
type AppointmentHandler struct {
	sessions    *service.AppointmentService
	evaluations *service.EvaluationService
}

// NewAppointmentHandler constructs the handler.
func NewAppointmentHandler(sessions *service.AppointmentService, evaluations *service.EvaluationService) *AppointmentHandler {
	return &AppointmentHandler{sessions: sessions, evaluations: evaluations}
}

// Register mounts the session routes on group. Role gates only narrow the caller; the
// services still require the caller to be the tutor or tutee of the session.
func (h *AppointmentHandler) Register(group *gin.RouterGroup) {
	tutor := middleware.RequireRoles(models.RoleTutor)
	tutee := middleware.RequireRoles(models.RoleTutee)
	party := middleware.RequireRoles(models.RoleTutor, models.RoleTutee)

	group.POST("", tutee, h.Book)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PUT("/:id/schedule", party, h.Reschedule)
	group.POST("/:id/confirm", tutor, h.Confirm)
	group.POST("/:id/decline", tutor, h.Decline)
	group.POST("/:id/start", tutor, h.Start)
	group.POST("/:id/cancel", party, h.Cancel)
	group.POST("/:id/end", tutor, h.End)
	group.POST("/:id/complete", tutee, h.Complete)
	group.PUT("/:id/resources", party, h.ShareResources)
	group.PUT("/:id/links", tutor, h.UpdateLinks)
	group.DELETE("/:id", party, h.Delete)
	group.GET("/:id/evaluation", h.Evaluation)
	group.PUT("/:id/evaluation", tutor, h.SaveScores)
}

type confirmPayload struct {
	Location string `json:"location"`
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

type resourcesPayload struct {
	ResourceLink *string `json:"resource_link"`
	ResourceNote *string `json:"resource_note"`
}

type linksPayload struct {
	OnlineLink *string `json:"online_link"`
	FileLink   *string `json:"file_link"`
}

// Book godoc
// @Summary Book a session
// @Description Tutee books a pending session inside the tutor's availability
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.BookAppointmentRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BookAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	appt, err := h.sessions.Book(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appt)
}

// List godoc
// @Summary List own sessions
// @Description Lists the caller's sessions. Expired sessions are reconciled before they are returned.
// @Tags Appointments
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param search query string false "Subject, topic or name"
// @Param sort_order query string false "asc or desc"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, size := pageParams(c)
	req := service.ListAppointmentsRequest{
		DateFrom:  c.Query("date_from"),
		DateTo:    c.Query("date_to"),
		Search:    c.Query("search"),
		SortOrder: c.Query("sort_order"),
		Page:      page,
		PageSize:  size,
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.Statuses = append(req.Statuses, part)
			}
		}
	}
	items, pagination, err := h.sessions.List(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a session
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.Get(c.Request.Context(), v, c.Param("id"))
	})
}

// Reschedule godoc
// @Summary Reschedule a pending session
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.RescheduleRequest true "New slot"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/schedule [put]
func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.Reschedule(c.Request.Context(), v, c.Param("id"), req)
	})
}

// Confirm godoc
// @Summary Confirm a pending session
// @Description Tutor confirms with a location
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body confirmPayload true "Location"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/confirm [post]
func (h *AppointmentHandler) Confirm(c *gin.Context) {
	var req confirmPayload
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.Confirm(c.Request.Context(), v, c.Param("id"), req.Location)
	})
}

// Decline godoc
// @Summary Decline a pending session
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body reasonPayload true "Reason"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/decline [post]
func (h *AppointmentHandler) Decline(c *gin.Context) {
	var req reasonPayload
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.Decline(c.Request.Context(), v, c.Param("id"), req.Reason)
	})
}

// Start godoc
// @Summary Start a confirmed session
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/start [post]
func (h *AppointmentHandler) Start(c *gin.Context) {
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.Start(c.Request.Context(), v, c.Param("id"))
	})
}

// Cancel godoc
// @Summary Cancel a session
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body reasonPayload true "Reason"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	var req reasonPayload
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.Cancel(c.Request.Context(), v, c.Param("id"), req.Reason)
	})
}

// End godoc
// @Summary End a started session
// @Description Moves the session to awaiting_feedback
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/end [post]
func (h *AppointmentHandler) End(c *gin.Context) {
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.End(c.Request.Context(), v, c.Param("id"))
	})
}

// Complete godoc
// @Summary Submit the satisfaction survey
// @Description Tutee submits five tutor and five organization ratings (0 = N/A); the session becomes completed
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.SubmitSurveyRequest true "Survey"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /appointments/{id}/complete [post]
func (h *AppointmentHandler) Complete(c *gin.Context) {
	var req service.SubmitSurveyRequest
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.evaluations.SubmitSurvey(c.Request.Context(), v, c.Param("id"), req)
	})
}

// ShareResources godoc
// @Summary Share session resources
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body resourcesPayload true "Resources"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/resources [put]
func (h *AppointmentHandler) ShareResources(c *gin.Context) {
	var req resourcesPayload
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.ShareResources(c.Request.Context(), v, c.Param("id"), req.ResourceLink, req.ResourceNote)
	})
}

// UpdateLinks godoc
// @Summary Set online and file links
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body linksPayload true "Links"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/links [put]
func (h *AppointmentHandler) UpdateLinks(c *gin.Context) {
	var req linksPayload
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c, func(v service.Viewer) (*models.Appointment, error) {
		return h.sessions.UpdateLinks(c.Request.Context(), v, c.Param("id"), req.OnlineLink, req.FileLink)
	})
}

// Delete godoc
// @Summary Delete a pending session
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [delete]
func (h *AppointmentHandler) Delete(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), viewer, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Evaluation godoc
// @Summary Get the session evaluation
// @Tags Evaluations
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/evaluation [get]
func (h *AppointmentHandler) Evaluation(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.evaluations.Get(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SaveScores godoc
// @Summary Record pre and post test scores
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.SaveScoresRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/evaluation [put]
func (h *AppointmentHandler) SaveScores(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SaveScoresRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.evaluations.SaveScores(c.Request.Context(), viewer, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func (h *AppointmentHandler) respond(c *gin.Context, action func(service.Viewer) (*models.Appointment, error)) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	appt, err := action(viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}
