package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

// ProfileHandler serves profiles, the tutor directory and weekly availability.
type ProfileHandler struct {
	profiles     *service.ProfileService
	availability *service.AvailabilityService
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(profiles *service.ProfileService, availability *service.AvailabilityService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, availability: availability}
}

// Get godoc
// @Summary Get a profile
// @Tags Profiles
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /profiles/{userId} [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMe godoc
// @Summary Update own profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body service.UpdateProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /profiles/me [put]
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UploadImage godoc
// @Summary Upload own profile picture
// @Tags Profiles
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /profiles/me/image [post]
func (h *ProfileHandler) UploadImage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload, closeFn, ok := imageFromForm(c)
	if !ok {
		return
	}
	defer closeFn()
	profile, err := h.profiles.UploadImage(c.Request.Context(), claims.UserID, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Tutors godoc
// @Summary Tutor directory
// @Tags Profiles
// @Produce json
// @Param subject query string false "Specialization"
// @Param search query string false "Name or bio"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tutors [get]
func (h *ProfileHandler) Tutors(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.TutorFilter{Subject: c.Query("subject"), Search: c.Query("search"), Page: page, PageSize: size}
	tutors, pagination, err := h.profiles.ListTutors(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tutors, pagination)
}

// Availability godoc
// @Summary A tutor's weekly availability
// @Tags Availability
// @Produce json
// @Param id path string true "Tutor ID"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/availability [get]
func (h *ProfileHandler) Availability(c *gin.Context) {
	slots, err := h.availability.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// ReplaceAvailability godoc
// @Summary Replace own weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.SetAvailabilityRequest true "Slots"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tutors/me/availability [put]
func (h *ProfileHandler) ReplaceAvailability(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SetAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	slots, err := h.availability.Replace(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// imageFromForm opens the "image" multipart field. It writes the error response itself.
func imageFromForm(c *gin.Context) (service.ImageUpload, func(), bool) {
	header, err := c.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "image file required"))
		return service.ImageUpload{}, nil, false
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return service.ImageUpload{}, nil, false
	}
	upload := service.ImageUpload{Filename: header.Filename, Size: header.Size, Content: file}
	return upload, func() { _ = file.Close() }, true
}
