package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-registration-api/internal/dto"
	"github.com/noah-isme/sma-registration-api/internal/models"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
	"github.com/noah-isme/sma-registration-api/pkg/response"
)

type registrationService interface {
	Start(ctx context.Context) (*models.RegistrationSession, error)
	Get(ctx context.Context, id string) (*models.RegistrationSession, error)
	Discard(ctx context.Context, id string) error
	SelectAttendanceMode(ctx context.Context, id string, mode models.AttendanceMode) (*models.RegistrationSession, error)
	ContinueInfo(ctx context.Context, id string) (*models.RegistrationSession, error)
	AcceptTerms(ctx context.Context, id string, accepted bool) (*models.RegistrationSession, error)
	SetChildrenCount(ctx context.Context, id string, count int) (*models.RegistrationSession, error)
	SetStudentNames(ctx context.Context, id string, names []string) (*models.RegistrationSession, error)
	SubmitParentForm(ctx context.Context, id string, form models.ParentFormData) (*models.RegistrationSession, error)
	SelectEnrollmentType(ctx context.Context, id string, enrollmentType models.EnrollmentType) (*models.RegistrationSession, error)
	SubmitStudentForm(ctx context.Context, id string, form models.ChildFormData) (*models.RegistrationSession, error)
	SelectTimeSlots(ctx context.Context, id string, slots []models.TimeSlot) (*models.RegistrationSession, error)
	Back(ctx context.Context, id string) (*models.RegistrationSession, error)
	Edit(ctx context.Context, id string, section models.EditSection, childIndex int) (*models.RegistrationSession, error)
	Submit(ctx context.Context, id string) (*models.RegistrationResult, *models.RegistrationSession, error)
	SummaryPDF(ctx context.Context, id string) ([]byte, error)
}

// RegistrationHandler exposes the enrollment wizard over HTTP.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Start godoc
// @Summary Start registration
// @Description Open a new registration wizard session
// @Tags Registration
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Start(c *gin.Context) {
	session, err := h.service.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewRegistrationView(session))
}

// Get godoc
// @Summary Get registration
// @Description Return the current state of a registration session
// @Tags Registration
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, session, err)
}

// Discard godoc
// @Summary Discard registration
// @Tags Registration
// @Param id path string true "Registration ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Discard(c *gin.Context) {
	if err := h.service.Discard(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AttendanceMode godoc
// @Summary Select attendance mode
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.AttendanceModeRequest true "Attendance mode"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/attendance-mode [post]
func (h *RegistrationHandler) AttendanceMode(c *gin.Context) {
	var req dto.AttendanceModeRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SelectAttendanceMode(c.Request.Context(), c.Param("id"), req.Mode)
	h.respond(c, session, err)
}

// Info godoc
// @Summary Continue past the information step
// @Tags Registration
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/info [post]
func (h *RegistrationHandler) Info(c *gin.Context) {
	session, err := h.service.ContinueInfo(c.Request.Context(), c.Param("id"))
	h.respond(c, session, err)
}

// Terms godoc
// @Summary Accept terms and conditions
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.TermsRequest true "Acceptance"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/terms [post]
func (h *RegistrationHandler) Terms(c *gin.Context) {
	var req dto.TermsRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.AcceptTerms(c.Request.Context(), c.Param("id"), req.Accepted)
	h.respond(c, session, err)
}

// ChildrenCount godoc
// @Summary Set number of children
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.ChildrenCountRequest true "Children count"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/children-count [post]
func (h *RegistrationHandler) ChildrenCount(c *gin.Context) {
	var req dto.ChildrenCountRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SetChildrenCount(c.Request.Context(), c.Param("id"), req.Count)
	h.respond(c, session, err)
}

// StudentNames godoc
// @Summary Set student display names
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.StudentNamesRequest true "Names"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/student-names [post]
func (h *RegistrationHandler) StudentNames(c *gin.Context) {
	var req dto.StudentNamesRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SetStudentNames(c.Request.Context(), c.Param("id"), req.Names)
	h.respond(c, session, err)
}

// Parent godoc
// @Summary Submit parent data
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body models.ParentFormData true "Parent data"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/parent [post]
func (h *RegistrationHandler) Parent(c *gin.Context) {
	var req models.ParentFormData
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SubmitParentForm(c.Request.Context(), c.Param("id"), req)
	h.respond(c, session, err)
}

// EnrollmentType godoc
// @Summary Select enrollment type for the current child
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.EnrollmentTypeRequest true "Enrollment type"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/enrollment-type [post]
func (h *RegistrationHandler) EnrollmentType(c *gin.Context) {
	var req dto.EnrollmentTypeRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SelectEnrollmentType(c.Request.Context(), c.Param("id"), req.Type)
	h.respond(c, session, err)
}

// Student godoc
// @Summary Submit data for the current child
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body models.ChildFormData true "Child data"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/student [post]
func (h *RegistrationHandler) Student(c *gin.Context) {
	var req models.ChildFormData
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SubmitStudentForm(c.Request.Context(), c.Param("id"), req)
	h.respond(c, session, err)
}

// TimeSlots godoc
// @Summary Select attendance time slots
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.TimeSlotsRequest true "Time slots"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/time-slots [post]
func (h *RegistrationHandler) TimeSlots(c *gin.Context) {
	var req dto.TimeSlotsRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.SelectTimeSlots(c.Request.Context(), c.Param("id"), req.Slots)
	h.respond(c, session, err)
}

// Back godoc
// @Summary Go back one step
// @Tags Registration
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/back [post]
func (h *RegistrationHandler) Back(c *gin.Context) {
	session, err := h.service.Back(c.Request.Context(), c.Param("id"))
	h.respond(c, session, err)
}

// Edit godoc
// @Summary Reopen a section from the review
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.EditRequest true "Section"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/{id}/edit [post]
func (h *RegistrationHandler) Edit(c *gin.Context) {
	var req dto.EditRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.service.Edit(c.Request.Context(), c.Param("id"), req.Section, req.ChildIndex)
	h.respond(c, session, err)
}

// Submit godoc
// @Summary Submit registration
// @Description Create the parent and student accounts and records
// @Tags Registration
// @Produce json
// @Param id path string true "Registration ID"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "session incomplete, nothing written"
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /registrations/{id}/submit [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	result, session, err := h.service.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result == nil {
		view := dto.NewRegistrationView(session)
		response.JSON(c, http.StatusOK, dto.SubmitResponse{Submitted: false, Registration: &view}, nil)
		return
	}
	response.Created(c, dto.SubmitResponse{Submitted: true, Result: result})
}

// SummaryPDF godoc
// @Summary Download registration summary
// @Tags Registration
// @Produce application/pdf
// @Param id path string true "Registration ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id}/summary.pdf [get]
func (h *RegistrationHandler) SummaryPDF(c *gin.Context) {
	id := c.Param("id")
	payload, err := h.service.SummaryPDF(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("registration-%s.pdf", id), "application/pdf", payload)
}

func (h *RegistrationHandler) respond(c *gin.Context, session *models.RegistrationSession, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewRegistrationView(session), nil)
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}
